package token

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"rwax/lending-portal/lending-portal-backend/internal/auth"
	"rwax/lending-portal/lending-portal-backend/internal/ledger"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared",
		strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Currency{}, &Balance{}))

	return NewService(db, zap.NewNop())
}

func createAndIssue(t *testing.T, s *Service, issuer, maximum, issued string) {
	t.Helper()
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.CreateTx(tx, issuer, ledger.MustParseAsset(maximum), "", "", ""); err != nil {
			return err
		}
		return s.IssueTx(tx, issuer, ledger.MustParseAsset(issued), "seed")
	})
	require.NoError(t, err)
}

func TestCreateRejectsDuplicateSymbol(t *testing.T) {
	s := newTestService(t)

	err := s.db.Transaction(func(tx *gorm.DB) error {
		return s.CreateTx(tx, "rwax", ledger.MustParseAsset("1000.0000 WAX"), "Wax", "", "")
	})
	require.NoError(t, err)

	err = s.db.Transaction(func(tx *gorm.DB) error {
		return s.CreateTx(tx, "rwax", ledger.MustParseAsset("500.0000 WAX"), "", "", "")
	})
	assert.ErrorIs(t, err, ErrTokenExists)
}

func TestIssueBoundedByMaximumSupply(t *testing.T) {
	s := newTestService(t)
	createAndIssue(t, s, "rwax", "100.0000 WAX", "60.0000 WAX")

	err := s.db.Transaction(func(tx *gorm.DB) error {
		return s.IssueTx(tx, "rwax", ledger.MustParseAsset("50.0000 WAX"), "too much")
	})
	assert.ErrorIs(t, err, ErrExceedsMaxSupply)

	err = s.db.Transaction(func(tx *gorm.DB) error {
		return s.IssueTx(tx, "rwax", ledger.MustParseAsset("40.0000 WAX"), "to the cap")
	})
	require.NoError(t, err)

	balance, err := s.BalanceOf(s.db, "rwax", ledger.Symbol{Code: "WAX", Precision: 4})
	require.NoError(t, err)
	assert.Equal(t, "100.0000 WAX", balance.String())
}

func TestTransferDebitsAndCredits(t *testing.T) {
	s := newTestService(t)
	createAndIssue(t, s, "rwax", "100.0000 WAX", "100.0000 WAX")

	require.NoError(t, s.Transfer(context.Background(),
		"rwax", "rwax", "alice", ledger.MustParseAsset("30.0000 WAX"), "payout"))

	symbol := ledger.Symbol{Code: "WAX", Precision: 4}
	from, err := s.BalanceOf(s.db, "rwax", symbol)
	require.NoError(t, err)
	assert.Equal(t, "70.0000 WAX", from.String())

	to, err := s.BalanceOf(s.db, "alice", symbol)
	require.NoError(t, err)
	assert.Equal(t, "30.0000 WAX", to.String())
}

func TestTransferOverdrawn(t *testing.T) {
	s := newTestService(t)
	createAndIssue(t, s, "rwax", "100.0000 WAX", "10.0000 WAX")

	err := s.Transfer(context.Background(),
		"rwax", "rwax", "alice", ledger.MustParseAsset("11.0000 WAX"), "too much")
	assert.ErrorIs(t, err, ErrOverdrawnBalance)

	// Account with no balance row at all.
	err = s.Transfer(context.Background(),
		"alice", "alice", "bob", ledger.MustParseAsset("1.0000 WAX"), "nothing")
	assert.ErrorIs(t, err, ErrOverdrawnBalance)
}

func TestTransferRequiresSignerAuthority(t *testing.T) {
	s := newTestService(t)
	createAndIssue(t, s, "rwax", "100.0000 WAX", "100.0000 WAX")

	err := s.Transfer(context.Background(),
		"mallory", "rwax", "mallory", ledger.MustParseAsset("1.0000 WAX"), "steal")
	assert.True(t, auth.IsMissingAuthority(err))
}

func TestTransferEnforcesPrecision(t *testing.T) {
	s := newTestService(t)
	createAndIssue(t, s, "rwax", "100.0000 WAX", "100.0000 WAX")

	err := s.Transfer(context.Background(),
		"rwax", "rwax", "alice", ledger.MustParseAsset("1.00 WAX"), "wrong precision")
	assert.ErrorIs(t, err, ErrPrecisionMismatch)

	err = s.Transfer(context.Background(),
		"rwax", "rwax", "alice", ledger.MustParseAsset("1.0000 DUST"), "unknown token")
	assert.ErrorIs(t, err, ErrUnknownToken)
}

func TestTransferHookAbortsTransfer(t *testing.T) {
	s := newTestService(t)
	createAndIssue(t, s, "rwax", "100.0000 WAX", "100.0000 WAX")

	hookErr := fmt.Errorf("memo rejected")
	s.RegisterTransferHook(func(tx *gorm.DB, from, to string, quantity ledger.Asset, memo string) error {
		if memo == "bad" {
			return hookErr
		}
		return nil
	})

	err := s.Transfer(context.Background(),
		"rwax", "rwax", "alice", ledger.MustParseAsset("5.0000 WAX"), "bad")
	assert.ErrorIs(t, err, hookErr)

	balance, err := s.BalanceOf(s.db, "rwax", ledger.Symbol{Code: "WAX", Precision: 4})
	require.NoError(t, err)
	assert.Equal(t, "100.0000 WAX", balance.String())
}
