package listings

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"rwax/lending-portal/lending-portal-backend/internal/auth"
	"rwax/lending-portal/lending-portal-backend/internal/ledger"
	"rwax/lending-portal/lending-portal-backend/pkg/workflows"
)

// AssetRegistry is the slice of the NFT registry the listing lifecycle
// needs: moving collateral bundles in and out of contract escrow.
type AssetRegistry interface {
	TransferTx(tx *gorm.DB, from, to string, assetIDs []uint64, memo string) error
}

// TokenLedger moves fungible collateral between accounts inside the same
// transaction as the listing transition.
type TokenLedger interface {
	TransferTx(tx *gorm.DB, from, to string, quantity ledger.Asset, memo string) error
}

// Service drives the listing lifecycle. Every mutating action runs in one
// database transaction and finishes by re-checking that the global listing
// counter equals the number of listing rows.
type Service struct {
	db              *gorm.DB
	logger          *zap.Logger
	registry        AssetRegistry
	tokens          TokenLedger
	clock           ledger.Clock
	events          EventPublisher
	machine         *workflows.StateMachine[Status]
	contractAccount string
}

func NewService(db *gorm.DB, logger *zap.Logger, registry AssetRegistry,
	tokens TokenLedger, clock ledger.Clock, events EventPublisher,
	contractAccount string) *Service {
	if events == nil {
		events = NopPublisher{}
	}
	return &Service{
		db:              db,
		logger:          logger,
		registry:        registry,
		tokens:          tokens,
		clock:           clock,
		events:          events,
		machine:         NewStateMachine(),
		contractAccount: contractAccount,
	}
}

// Init creates the global state singleton. Only the contract account may
// call it; repeated calls are no-ops.
func (s *Service) Init(ctx context.Context, signer, version string) error {
	if err := auth.RequireAuthority(signer, s.contractAccount); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var state GlobalState
		err := tx.First(&state, "id = ?", globalStateID).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return tx.Create(&GlobalState{
			ID:             globalStateID,
			Version:        version,
			ListingCounter: 0,
			NextListingID:  1,
		}).Error
	})
	if err != nil {
		return err
	}

	s.logger.Info("listing contract initialized", zap.String("version", version))
	return nil
}

type CreateListingRequest struct {
	Owner                 string
	AssetIDs              []uint64
	Collateral            ledger.Asset
	DurationSecs          int64
	AllowEarlyTermination bool
}

// CreateListing escrows the owner's assets with the contract and opens a
// listing in AWAITING_DEPOSIT. Listing ids come from the global sequence
// and the counter is bumped in the same transaction.
func (s *Service) CreateListing(ctx context.Context, signer string, req CreateListingRequest) (*Listing, error) {
	if err := auth.RequireAuthority(signer, req.Owner); err != nil {
		return nil, err
	}
	if req.Collateral.Amount.Sign() <= 0 {
		return nil, ErrPositiveCollateral
	}
	if len(req.AssetIDs) == 0 {
		return nil, ErrNoAssets
	}
	if req.DurationSecs <= 0 {
		return nil, ErrPositiveDuration
	}

	var listing *Listing
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		state, err := s.loadState(tx)
		if err != nil {
			return err
		}

		id := state.NextListingID
		if err := s.registry.TransferTx(tx, req.Owner, s.contractAccount,
			req.AssetIDs, fmt.Sprintf("listing %d escrow", id)); err != nil {
			return err
		}

		listing = &Listing{
			ID:                    id,
			Owner:                 req.Owner,
			AssetIDs:              req.AssetIDs,
			Collateral:            req.Collateral,
			Status:                StatusAwaitingDeposit,
			DurationSecs:          req.DurationSecs,
			AllowEarlyTermination: req.AllowEarlyTermination,
		}
		if err := tx.Create(listing).Error; err != nil {
			return err
		}

		state.NextListingID++
		state.ListingCounter++
		if err := tx.Save(state).Error; err != nil {
			return err
		}
		return s.checkCounter(tx, state)
	})
	if err != nil {
		return nil, err
	}

	s.publish("create", listing, req.Owner)
	return listing, nil
}

// Deposit locks collateral against the listing. The payer must transfer
// exactly the requested quantity; anything else is rejected.
func (s *Service) Deposit(ctx context.Context, signer string, listingID uint64, payer string, quantity ledger.Asset) (*Listing, error) {
	if err := auth.RequireAuthority(signer, payer); err != nil {
		return nil, err
	}

	var listing *Listing
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		listing, err = s.get(tx, listingID)
		if err != nil {
			return err
		}
		if !s.machine.CanTransition(listing.Status, StatusDepositMade) {
			return ErrInvalidState
		}

		cmp, err := quantity.Cmp(listing.Collateral)
		if err != nil || cmp != 0 {
			return ErrCollateralMismatch
		}

		if err := s.tokens.TransferTx(tx, payer, s.contractAccount,
			quantity, fmt.Sprintf("deposit: listing %d", listingID)); err != nil {
			return err
		}

		now := s.clock.Now()
		listing.Depositor = &payer
		listing.DepositedAt = &now
		listing.Status = StatusDepositMade
		if err := tx.Save(listing).Error; err != nil {
			return err
		}
		return s.verifyCounter(tx)
	})
	if err != nil {
		return nil, err
	}

	s.publish("deposit", listing, payer)
	return listing, nil
}

// Borrow releases the escrowed assets to the depositor and starts the loan
// term. Only the account that made the deposit may borrow.
func (s *Service) Borrow(ctx context.Context, signer string, listingID uint64, borrower string) (*Listing, error) {
	if err := auth.RequireAuthority(signer, borrower); err != nil {
		return nil, err
	}

	var listing *Listing
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		listing, err = s.get(tx, listingID)
		if err != nil {
			return err
		}
		if !s.machine.CanTransition(listing.Status, StatusBorrowed) {
			return ErrInvalidState
		}
		if listing.Depositor == nil || *listing.Depositor != borrower {
			return auth.ErrNotAuthorized
		}

		if err := s.registry.TransferTx(tx, s.contractAccount, borrower,
			listing.AssetIDs, fmt.Sprintf("listing %d loan release", listingID)); err != nil {
			return err
		}

		now := s.clock.Now()
		due := now.Add(listing.Duration())
		listing.Borrower = &borrower
		listing.BorrowedAt = &now
		listing.DueAt = &due
		listing.Status = StatusBorrowed
		if err := tx.Save(listing).Error; err != nil {
			return err
		}
		return s.verifyCounter(tx)
	})
	if err != nil {
		return nil, err
	}

	s.publish("borrow", listing, borrower)
	return listing, nil
}

// Liquidate pays the locked collateral out to the listing owner. Anyone may
// liquidate once the loan is at or past due; before that only the owner may,
// and only when the listing allows early termination.
func (s *Service) Liquidate(ctx context.Context, signer string, listingID uint64) (*Listing, error) {
	var listing *Listing
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		listing, err = s.get(tx, listingID)
		if err != nil {
			return err
		}
		if !s.machine.CanTransition(listing.Status, StatusLiquidated) {
			return ErrInvalidState
		}

		now := s.clock.Now()
		if listing.DueAt == nil || now.Before(*listing.DueAt) {
			if signer != listing.Owner || !listing.AllowEarlyTermination {
				return ErrNotYetLiquidatable
			}
		}

		if err := s.tokens.TransferTx(tx, s.contractAccount, listing.Owner,
			listing.Collateral, fmt.Sprintf("listing %d liquidation", listingID)); err != nil {
			return err
		}

		listing.Status = StatusLiquidated
		listing.LiquidatedAt = &now
		if err := tx.Save(listing).Error; err != nil {
			return err
		}
		return s.verifyCounter(tx)
	})
	if err != nil {
		return nil, err
	}

	s.publish("liquidate", listing, signer)
	return listing, nil
}

// Cancel is the lifecycle's only backward edge: the deposit is refunded in
// full and the listing returns to AWAITING_DEPOSIT. The listing row stays;
// the counter does not move.
func (s *Service) Cancel(ctx context.Context, signer string, listingID uint64) (*Listing, error) {
	var listing *Listing
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		listing, err = s.get(tx, listingID)
		if err != nil {
			return err
		}
		if !s.machine.CanTransition(listing.Status, StatusAwaitingDeposit) {
			return ErrInvalidState
		}
		if signer != listing.Owner && (listing.Depositor == nil || *listing.Depositor != signer) {
			return auth.ErrNotAuthorized
		}

		if err := s.tokens.TransferTx(tx, s.contractAccount, *listing.Depositor,
			listing.Collateral, fmt.Sprintf("listing %d deposit refund", listingID)); err != nil {
			return err
		}

		listing.Depositor = nil
		listing.DepositedAt = nil
		listing.Status = StatusAwaitingDeposit
		if err := tx.Save(listing).Error; err != nil {
			return err
		}
		return s.verifyCounter(tx)
	})
	if err != nil {
		return nil, err
	}

	s.publish("cancel", listing, signer)
	return listing, nil
}

// LiquidateDue sweeps every borrowed listing whose term has elapsed. Each
// listing is liquidated in its own transaction so one failure does not
// block the rest. Returns the number liquidated.
func (s *Service) LiquidateDue(ctx context.Context) (int, error) {
	now := s.clock.Now()

	var due []Listing
	err := s.db.WithContext(ctx).
		Where("status = ? AND due_at <= ?", StatusBorrowed, now).
		Order("due_at").
		Find(&due).Error
	if err != nil {
		return 0, err
	}

	liquidated := 0
	for _, listing := range due {
		if _, err := s.Liquidate(ctx, s.contractAccount, listing.ID); err != nil {
			s.logger.Error("liquidation sweep failed",
				zap.Uint64("listing_id", listing.ID), zap.Error(err))
			continue
		}
		liquidated++
	}
	return liquidated, nil
}

// Get returns one listing by id.
func (s *Service) Get(ctx context.Context, listingID uint64) (*Listing, error) {
	var listing *Listing
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		listing, err = s.get(tx, listingID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return listing, nil
}

// List returns listings, optionally filtered by owner and status.
func (s *Service) List(ctx context.Context, owner string, status *Status) ([]Listing, error) {
	query := s.db.WithContext(ctx).Model(&Listing{})
	if owner != "" {
		query = query.Where("owner = ?", owner)
	}
	if status != nil {
		query = query.Where("status = ?", *status)
	}

	var result []Listing
	if err := query.Order("id").Find(&result).Error; err != nil {
		return nil, err
	}
	return result, nil
}

// State returns the global state singleton.
func (s *Service) State(ctx context.Context) (*GlobalState, error) {
	var state *GlobalState
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		state, err = s.loadState(tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

func (s *Service) get(tx *gorm.DB, listingID uint64) (*Listing, error) {
	var listing Listing
	err := tx.First(&listing, "id = ?", listingID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrListingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &listing, nil
}

func (s *Service) loadState(tx *gorm.DB) (*GlobalState, error) {
	var state GlobalState
	err := tx.First(&state, "id = ?", globalStateID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotInitialized
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *Service) verifyCounter(tx *gorm.DB) error {
	state, err := s.loadState(tx)
	if err != nil {
		return err
	}
	return s.checkCounter(tx, state)
}

func (s *Service) checkCounter(tx *gorm.DB, state *GlobalState) error {
	var count int64
	if err := tx.Model(&Listing{}).Count(&count).Error; err != nil {
		return err
	}
	if uint64(count) != state.ListingCounter {
		return fmt.Errorf("%w: counter %d, rows %d",
			ErrCounterMismatch, state.ListingCounter, count)
	}
	return nil
}

func (s *Service) publish(action string, listing *Listing, actor string) {
	s.events.PublishTransition(Event{
		ListingID:  listing.ID,
		Action:     action,
		Status:     listing.Status,
		StatusName: listing.Status.String(),
		Actor:      actor,
		OccurredAt: s.clock.Now(),
	})
	s.logger.Info("listing transition",
		zap.Uint64("listing_id", listing.ID),
		zap.String("action", action),
		zap.String("status", listing.Status.String()),
		zap.String("actor", actor))
}
