package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadflow/internal/config"
)

func TestInitStore_SQLite(t *testing.T) {
	cfg = &config.Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = filepath.Join(t.TempDir(), "test.db")

	st, err := initStore(context.Background())
	require.NoError(t, err)
	require.NoError(t, st.Close())
}

func TestInitStore_UnsupportedDriver(t *testing.T) {
	cfg = &config.Config{}
	cfg.Store.Driver = "cassandra"

	_, err := initStore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestInitLLM_Disabled(t *testing.T) {
	cfg = &config.Config{}
	cfg.Anthropic.Disabled = true
	cfg.Anthropic.Key = "sk-test"
	assert.Nil(t, initLLM())

	cfg.Anthropic.Disabled = false
	cfg.Anthropic.Key = ""
	assert.Nil(t, initLLM())
}

func TestInitSender_NoHost(t *testing.T) {
	cfg = &config.Config{}
	sender, err := initSender()
	require.NoError(t, err)
	assert.Nil(t, sender)
}

func TestInitSalesforce_NotConfigured(t *testing.T) {
	cfg = &config.Config{}
	client, err := initSalesforce()
	require.NoError(t, err)
	assert.Nil(t, client)
}
