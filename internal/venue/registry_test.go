package venue_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradeloop/internal/domain"
	"github.com/alanyoungcy/tradeloop/internal/venue"
	"github.com/alanyoungcy/tradeloop/internal/venue/paper"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRegistry(t *testing.T) (*venue.Registry, *paper.Adapter, *paper.Adapter) {
	t.Helper()
	r := venue.NewRegistry(discardLogger())
	eq := paper.New(paper.Options{Name: "Equities", Type: domain.VenueTypeEquities, Cash: 1000})
	fx := paper.New(paper.Options{Name: "Forex", Type: domain.VenueTypeForex, Cash: 1000})
	require.NoError(t, r.Register("equities", eq, true))
	require.NoError(t, r.Register("forex", fx, true))
	return r, eq, fx
}

func TestRegistryRegisterDuplicate(t *testing.T) {
	r, eq, _ := newRegistry(t)
	err := r.Register("equities", eq, true)
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
	assert.ErrorIs(t, r.Register("", eq, true), domain.ErrConfig)
}

func TestRegistryActivate(t *testing.T) {
	r, eq, fx := newRegistry(t)
	assert.Nil(t, r.Active())

	require.NoError(t, r.Activate("equities"))
	assert.Same(t, eq, r.Active())
	assert.Equal(t, "equities", r.ActiveID())

	assert.True(t, r.SetActive("forex"))
	assert.Same(t, fx, r.Active())

	// Unknown venue leaves the selection untouched.
	assert.False(t, r.SetActive("crypto"))
	assert.Equal(t, "forex", r.ActiveID())
	assert.ErrorIs(t, r.Activate("crypto"), domain.ErrConfig)
}

func TestRegistryDisabledVenueCannotBeActivated(t *testing.T) {
	r := venue.NewRegistry(discardLogger())
	require.NoError(t, r.Register("off", paper.New(paper.Options{}), false))
	assert.ErrorIs(t, r.Activate("off"), domain.ErrConfig)
	assert.Nil(t, r.Active())
}

func TestRegistryConnectAll(t *testing.T) {
	r, eq, fx := newRegistry(t)
	fx.SetConnectable(false)
	disabled := paper.New(paper.Options{Name: "Disabled"})
	require.NoError(t, r.Register("disabled", disabled, false))

	got := r.ConnectAll(context.Background())
	assert.Equal(t, map[string]bool{"equities": true, "forex": false}, got)
	assert.True(t, eq.Connected())
	assert.False(t, disabled.Connected())

	got = r.DisconnectAll(context.Background())
	assert.Equal(t, map[string]bool{"equities": true, "forex": true}, got)
	assert.False(t, eq.Connected())
}

func TestRegistryVenues(t *testing.T) {
	r, _, _ := newRegistry(t)
	require.NoError(t, r.Activate("forex"))
	infos := r.Venues()
	require.Len(t, infos, 2)
	assert.Equal(t, "equities", infos[0].ID)
	assert.Equal(t, domain.VenueTypeForex, infos[1].Type)
	assert.True(t, infos[1].Active)
	assert.False(t, infos[0].Active)
	assert.False(t, infos[1].Live)
}
