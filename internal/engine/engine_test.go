package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestOpen_InMemory(t *testing.T) {
	eng, err := Open(context.Background(), Options{InMemory: true, BatchSize: 7, SuggestionDailyLimit: 4, VisibilityThreshold: 0.5}, zap.NewNop())
	require.NoError(t, err)
	defer eng.Close()

	assert.Equal(t, 7, eng.Resolver.BatchSize)
	assert.Equal(t, 4, eng.Suggestions.DailyLimit)
	assert.Equal(t, 0.5, eng.Profile.Threshold)
	assert.Empty(t, eng.Health)
}

func TestOpen_RequiresDatabase(t *testing.T) {
	_, err := Open(context.Background(), Options{}, zap.NewNop())
	assert.Error(t, err)
}

func TestOpenSideStore_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	eng := &Engine{Health: map[string]Pinger{}}
	defer eng.Close()

	side, err := openSideStore(context.Background(), eng, "redis://"+mr.Addr(), zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, side)
	assert.Contains(t, eng.Health, "redis")

	_, err = openSideStore(context.Background(), eng, "not a url", zap.NewNop())
	assert.Error(t, err)
}

func TestOpen_BadPersonaFileFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "personas.yaml")
	require.NoError(t, os.WriteFile(path, []byte("personas: [ {id: ''} ]"), 0o600))

	eng, err := Open(context.Background(), Options{InMemory: true, PersonasPath: path}, zap.NewNop())
	require.NoError(t, err)

	views, err := eng.Profile.Personas(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, views)
}

func TestNewLogger(t *testing.T) {
	_, err := NewLogger("debug")
	assert.NoError(t, err)
	_, err = NewLogger("loud")
	assert.Error(t, err)
}
