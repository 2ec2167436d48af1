package listings

import (
	"time"

	"gorm.io/datatypes"

	"rwax/lending-portal/lending-portal-backend/internal/ledger"
	"rwax/lending-portal/lending-portal-backend/pkg/workflows"
)

// Status is the listing lifecycle state. The ordinal values are part of the
// external contract and are stored as-is.
type Status uint8

const (
	StatusAwaitingDeposit Status = iota // 0
	StatusDepositMade                   // 1
	StatusBorrowed                      // 2
	StatusLiquidated                    // 3
)

func (s Status) String() string {
	switch s {
	case StatusAwaitingDeposit:
		return "AWAITING_DEPOSIT"
	case StatusDepositMade:
		return "DEPOSIT_MADE"
	case StatusBorrowed:
		return "BORROWED"
	case StatusLiquidated:
		return "LIQUIDATED"
	default:
		return "UNKNOWN"
	}
}

// NewStateMachine returns the listing transition table. Cancel is the only
// backward edge; LIQUIDATED is terminal.
func NewStateMachine() *workflows.StateMachine[Status] {
	return workflows.NewStateMachine(map[Status][]Status{
		StatusAwaitingDeposit: {StatusDepositMade},
		StatusDepositMade:     {StatusBorrowed, StatusAwaitingDeposit},
		StatusBorrowed:        {StatusLiquidated},
		StatusLiquidated:      {},
	})
}

// Listing is an asset bundle offered as loan collateral security, tracked
// through the deposit → borrow → liquidate lifecycle.
type Listing struct {
	ID                    uint64                      `json:"listing_id" gorm:"primaryKey"`
	Owner                 string                      `json:"owner" gorm:"index;not null"`
	Depositor             *string                     `json:"depositor,omitempty" gorm:"index"`
	Borrower              *string                     `json:"borrower,omitempty" gorm:"index"`
	AssetIDs              datatypes.JSONSlice[uint64] `json:"asset_ids"`
	Collateral            ledger.Asset                `json:"collateral" gorm:"type:text;not null"`
	Status                Status                      `json:"status" gorm:"not null;default:0;index"`
	DurationSecs          int64                       `json:"duration_secs" gorm:"not null"`
	AllowEarlyTermination bool                        `json:"allow_early_termination"`
	CreatedAt             time.Time                   `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt             time.Time                   `json:"updated_at" gorm:"autoUpdateTime"`
	DepositedAt           *time.Time                  `json:"deposited_at,omitempty"`
	BorrowedAt            *time.Time                  `json:"borrowed_at,omitempty"`
	DueAt                 *time.Time                  `json:"due_at,omitempty"`
	LiquidatedAt          *time.Time                  `json:"liquidated_at,omitempty"`
}

// Duration returns the agreed borrow term.
func (l *Listing) Duration() time.Duration {
	return time.Duration(l.DurationSecs) * time.Second
}

// GlobalState is the process-wide singleton row: the listing counter, the
// id sequence and contract configuration. Created once by init and mutated
// only inside listing transitions.
type GlobalState struct {
	ID             uint      `json:"-" gorm:"primaryKey"`
	Version        string    `json:"version"`
	ListingCounter uint64    `json:"listing_counter" gorm:"not null"`
	NextListingID  uint64    `json:"next_listing_id" gorm:"not null"`
	UpdatedAt      time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

const globalStateID = 1
