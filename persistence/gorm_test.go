package persistence

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tcriess/lightspeed-rooms/config"
)

func TestGormStoreContract(t *testing.T) {
	cfg := &config.Config{PersistenceConfig: config.PersistenceConfig{
		Type: "sqlite",
		DSN:  filepath.Join(t.TempDir(), "rooms.db"),
	}}
	store, err := NewGormStore(cfg)
	require.NoError(t, err)
	defer store.Close()
	runStoreContract(t, store)
}

func TestGormStoreRequiresDSN(t *testing.T) {
	_, err := NewGormStore(&config.Config{PersistenceConfig: config.PersistenceConfig{Type: "sqlite"}})
	require.Error(t, err)
}
