package registry

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
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared",
		strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Collection{}, &Schema{}, &Template{}, &Asset{}))

	return NewService(db, zap.NewNop())
}

func seedCollection(t *testing.T, s *Service) {
	t.Helper()
	ctx := context.Background()

	_, err := s.CreateCollection(ctx, "pixelartist", "pixelworld", []string{"curator"}, 0.05, nil)
	require.NoError(t, err)
	_, err = s.CreateSchema(ctx, "pixelartist", "pixelworld", "characters", []FormatField{
		{Name: "name", Type: "string"},
		{Name: "rarity", Type: "string"},
	})
	require.NoError(t, err)
}

func TestCreateCollectionAuthorIsAuthorized(t *testing.T) {
	s := newTestService(t)

	collection, err := s.CreateCollection(context.Background(),
		"pixelartist", "pixelworld", []string{"curator"}, 0.05, nil)
	require.NoError(t, err)

	assert.True(t, collection.HasAuthority("pixelartist"))
	assert.True(t, collection.HasAuthority("curator"))
	assert.False(t, collection.HasAuthority("stranger"))

	_, err = s.CreateCollection(context.Background(),
		"pixelartist", "pixelworld", nil, 0, nil)
	assert.ErrorIs(t, err, ErrCollectionExists)
}

func TestCheckCollectionAuth(t *testing.T) {
	s := newTestService(t)
	seedCollection(t, s)

	err := s.db.Transaction(func(tx *gorm.DB) error {
		require.NoError(t, s.CheckCollectionAuth(tx, "pixelworld", "curator"))

		err := s.CheckCollectionAuth(tx, "pixelworld", "stranger")
		assert.ErrorIs(t, err, auth.ErrNotAuthorized)
		assert.Equal(t, "Account is not authorized", err.Error())

		err = s.CheckCollectionAuth(tx, "missing", "curator")
		assert.ErrorIs(t, err, ErrCollectionNotFound)
		assert.Equal(t, "No collection with this name exists", err.Error())
		return nil
	})
	require.NoError(t, err)
}

func TestMintAssetBoundedByTemplateSupply(t *testing.T) {
	s := newTestService(t)
	seedCollection(t, s)
	ctx := context.Background()

	template, err := s.CreateTemplate(ctx, "pixelartist", "pixelworld", "characters", 2,
		map[string]interface{}{"rarity": "epic"})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := s.MintAsset(ctx, "pixelartist", "pixelworld", "characters",
			template.ID, "alice", nil, nil)
		require.NoError(t, err)
	}

	_, err = s.MintAsset(ctx, "pixelartist", "pixelworld", "characters",
		template.ID, "alice", nil, nil)
	assert.ErrorIs(t, err, ErrSupplyExhausted)

	assets, err := s.AccountAssets(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, assets, 2)
}

func TestTransferVerifiesOwnership(t *testing.T) {
	s := newTestService(t)
	seedCollection(t, s)
	ctx := context.Background()

	asset, err := s.MintAsset(ctx, "pixelartist", "pixelworld", "characters",
		-1, "alice", nil, nil)
	require.NoError(t, err)

	err = s.Transfer(ctx, "bob", "alice", []uint64{asset.ID}, "take this")
	require.Error(t, err)
	assert.Equal(t, fmt.Sprintf("asset %d is not owned by bob", asset.ID), err.Error())

	err = s.Transfer(ctx, "alice", "bob", []uint64{9999}, "nothing here")
	require.Error(t, err)
	assert.Equal(t, "Asset ID not found: 9999", err.Error())

	require.NoError(t, s.Transfer(ctx, "alice", "bob", []uint64{asset.ID}, "gift"))

	assets, err := s.AccountAssets(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, asset.ID, assets[0].ID)
}

func TestTransferHookAbortRollsBackOwnership(t *testing.T) {
	s := newTestService(t)
	seedCollection(t, s)
	ctx := context.Background()

	asset, err := s.MintAsset(ctx, "pixelartist", "pixelworld", "characters",
		-1, "alice", nil, nil)
	require.NoError(t, err)

	hookErr := fmt.Errorf("hook rejected")
	var observedMemo string
	s.RegisterTransferHook(func(tx *gorm.DB, from, to string, assetIDs []uint64, memo string) error {
		observedMemo = memo
		return hookErr
	})

	err = s.Transfer(ctx, "alice", "bob", []uint64{asset.ID}, "doomed")
	assert.ErrorIs(t, err, hookErr)
	assert.Equal(t, "doomed", observedMemo)

	// Ownership unchanged after the aborted transfer.
	assets, err := s.AccountAssets(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, "alice", assets[0].Owner)
}
