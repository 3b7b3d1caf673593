package catalog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newCatalog(t *testing.T) (*Catalog, *FileStore) {
	t.Helper()
	store := NewFileStore(filepath.Join(t.TempDir(), "strategies.yaml"))
	c, err := New(context.Background(), store, DefaultActive, discard())
	require.NoError(t, err)
	return c, store
}

// failingStore refuses every write.
type failingStore struct{ *FileStore }

var errDisk = errors.New("disk full")

func (failingStore) SaveProfile(context.Context, domain.RiskProfile) error { return errDisk }
func (failingStore) DeleteProfile(context.Context, string) error           { return errDisk }
func (failingStore) SaveActiveProfile(context.Context, string) error       { return errDisk }

func TestNewSeedsDefaults(t *testing.T) {
	c, _ := newCatalog(t)
	assert.Len(t, c.List(), 5)
	assert.Equal(t, "moderate", c.ActiveID())

	p := c.Active()
	assert.Equal(t, 0.10, p.MaxPositionSizePct)
	assert.Equal(t, 0.025, p.StopLossPct)
	assert.Equal(t, 2.0, p.MinRiskRewardRatio)
	assert.True(t, p.StopLossRequired)
	for _, p := range c.List() {
		assert.NoError(t, p.Validate(), p.ID)
	}
}

func TestSelectionSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	c, store := newCatalog(t)
	require.True(t, c.SetActive(ctx, "aggressive"))
	custom := Defaults()["breakout"]
	custom.Name = "Opening Range"
	require.True(t, c.AddOrUpdate(ctx, "opening_range", custom))

	reloaded, err := New(ctx, store, DefaultActive, discard())
	require.NoError(t, err)
	assert.Equal(t, "aggressive", reloaded.ActiveID())
	got, ok := reloaded.Get("opening_range")
	require.True(t, ok)
	assert.Equal(t, "Opening Range", got.Name)
	assert.Equal(t, "opening_range", got.ID)
}

func TestUnknownPersistedActiveFallsBack(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(filepath.Join(t.TempDir(), "strategies.yaml"))
	require.NoError(t, store.SaveProfile(ctx, Defaults()["conservative"]))
	require.NoError(t, store.SaveActiveProfile(ctx, "gone"))

	c, err := New(ctx, store, DefaultActive, discard())
	require.NoError(t, err)
	assert.Equal(t, "conservative", c.ActiveID(), "default missing, first id wins")
}

func TestSetActiveUnknownKeepsPrevious(t *testing.T) {
	ctx := context.Background()
	c, _ := newCatalog(t)
	assert.False(t, c.SetActive(ctx, "does_not_exist"))
	assert.Equal(t, "moderate", c.ActiveID())

	err := c.Activate(ctx, "does_not_exist")
	assert.ErrorIs(t, err, domain.ErrConfig)
}

func TestPutValidates(t *testing.T) {
	ctx := context.Background()
	c, _ := newCatalog(t)

	bad := Defaults()["moderate"]
	bad.Description = ""
	assert.False(t, c.AddOrUpdate(ctx, "bad", bad))
	_, ok := c.Get("bad")
	assert.False(t, ok)

	assert.ErrorIs(t, c.Put(ctx, "", Defaults()["moderate"]), domain.ErrConfig)

	upd := Defaults()["moderate"]
	upd.MaxOpenPositions = 3
	require.NoError(t, c.Put(ctx, "moderate", upd))
	assert.Equal(t, 3, c.Active().MaxOpenPositions, "updating the active profile is visible immediately")
}

func TestRemoveRules(t *testing.T) {
	ctx := context.Background()
	c, _ := newCatalog(t)

	assert.ErrorIs(t, c.Remove(ctx, "moderate"), domain.ErrConfig, "active")
	assert.ErrorIs(t, c.Remove(ctx, "nope"), domain.ErrNotFound)

	for _, id := range []string{"aggressive", "breakout", "conservative", "trend_following"} {
		require.NoError(t, c.Remove(ctx, id))
	}
	assert.Len(t, c.List(), 1)
	assert.ErrorIs(t, c.Remove(ctx, "moderate"), domain.ErrConfig)
}

func TestFailedWriteLeavesCatalogUnchanged(t *testing.T) {
	ctx := context.Background()
	_, fs := newCatalog(t)
	c, err := New(ctx, failingStore{fs}, DefaultActive, discard())
	require.NoError(t, err)

	assert.False(t, c.SetActive(ctx, "aggressive"))
	assert.Equal(t, "moderate", c.ActiveID())
	assert.ErrorIs(t, c.Remove(ctx, "breakout"), errDisk)
	_, ok := c.Get("breakout")
	assert.True(t, ok)
}

func TestFileStoreMissingFile(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(filepath.Join(t.TempDir(), "nested", "strategies.yaml"))
	ps, err := s.LoadProfiles(ctx)
	require.NoError(t, err)
	assert.Empty(t, ps)
	_, err = s.LoadActiveProfile(ctx)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, s.SaveActiveProfile(ctx, "moderate"))
	_, err = os.Stat(s.path)
	assert.NoError(t, err)
}

func TestFileStoreRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strategies.yaml")
	require.NoError(t, os.WriteFile(path, []byte("profiles: [this is: not a map"), 0o644))
	_, err := NewFileStore(path).LoadProfiles(context.Background())
	assert.ErrorIs(t, err, domain.ErrConfig)
}
