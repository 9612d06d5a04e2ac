package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite3", cfg.Store.Driver)
	assert.Equal(t, "LEDGER_ENTRIES", cfg.Store.Table)
	assert.Equal(t, "AMOUNT", cfg.Store.AmountColumn)
	assert.Equal(t, "milvus", cfg.Search.Backend)
	assert.True(t, cfg.Search.PrefixDataType)
	assert.Equal(t, 5, cfg.Search.TopK)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	dir := chdirTemp(t)

	yaml := []byte("store:\n  driver: postgres\n  table: GL_DETAIL\nsearch:\n  backend: elasticsearch\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o644))
	t.Setenv("LEDGERLENS_SERVER_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "GL_DETAIL", cfg.Store.Table)
	assert.Equal(t, "elasticsearch", cfg.Search.Backend)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoad_DotEnvSuppliesAPIKey(t *testing.T) {
	dir := chdirTemp(t)
	t.Setenv("OPENAI_API_KEY", "")
	os.Unsetenv("OPENAI_API_KEY")

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("OPENAI_API_KEY=sk-from-dotenv\n"), 0o644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-from-dotenv", cfg.LLM.APIKey)
}

func TestValidate(t *testing.T) {
	base := Config{
		Store:  StoreConfig{Driver: "sqlite3", Table: "T", AmountColumn: "AMOUNT"},
		Search: SearchConfig{Backend: "none"},
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid"},
		{name: "bad driver", mutate: func(c *Config) { c.Store.Driver = "oracle" }, wantErr: "unsupported store driver"},
		{name: "no table", mutate: func(c *Config) { c.Store.Table = "" }, wantErr: "store.table"},
		{name: "no amount column", mutate: func(c *Config) { c.Store.AmountColumn = "" }, wantErr: "store.amountColumn"},
		{name: "bad backend", mutate: func(c *Config) { c.Search.Backend = "pinecone" }, wantErr: "unsupported search backend"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			if tt.mutate != nil {
				tt.mutate(&c)
			}
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
