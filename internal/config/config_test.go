package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/graphgate/internal/graph"
)

func TestParse_Valid(t *testing.T) {
	data := []byte(`
uri: bolt+s://db.example.com:7687
username: app
database: people
tenant: acme
page_size: 250
strict_compile: true
retry:
  attempts: 5
  delay: 250ms
`)

	cfg, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, "bolt+s://db.example.com:7687", cfg.URI)
	assert.Equal(t, "app", cfg.Username)
	assert.Equal(t, "people", cfg.Database)
	assert.Equal(t, "acme", cfg.Tenant)
	assert.Equal(t, 250, cfg.PageSize)
	assert.True(t, cfg.StrictCompile)
	assert.Equal(t, 5, cfg.Retry.Attempts)
	assert.Equal(t, Duration(250*time.Millisecond), cfg.Retry.Delay)

	def := Default()
	assert.Equal(t, def.NodeCacheSize, cfg.NodeCacheSize, "absent fields keep their default")
	assert.Equal(t, def.ConnectAttempts, cfg.ConnectAttempts)
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "unknown field", data: "urii: neo4j://localhost\n"},
		{name: "bad scheme", data: "uri: http://localhost:7474\n"},
		{name: "zero page size", data: "page_size: 0\n"},
		{name: "page size too large", data: "page_size: 1000000\n"},
		{name: "negative cache", data: "node_cache_size: -1\n"},
		{name: "too many retries", data: "retry:\n  attempts: 100\n"},
		{name: "delay without unit", data: "retry:\n  delay: \"100\"\n"},
		{name: "delay as number", data: "retry:\n  delay: 100\n"},
		{name: "empty tenant", data: "tenant: \"\"\n"},
		{name: "control character in tenant", data: "tenant: \"a\\tb\"\n"},
		{name: "wrong type", data: "strict_compile: yes please\n"},
		{name: "malformed yaml", data: "uri: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			require.Error(t, err)
			assert.ErrorIs(t, err, graph.ErrInvalidConfig)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graphgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte("password: from-file\ntenant: acme\n"), 0o600))

	t.Setenv(PasswordEnv, "")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Password)

	t.Setenv(PasswordEnv, "from-env")
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Password)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, graph.ErrInvalidConfig)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Password)
	assert.Equal(t, Default().URI, cfg.URI)
}

func TestConfig_Options(t *testing.T) {
	cfg := Default()
	cfg.Tenant = "acme"
	cfg.StrictCompile = true
	cfg.PageSize = 50
	cfg.Retry = Retry{Attempts: 4, Delay: Duration(time.Second)}

	assert.Equal(t, "acme", cfg.Graph().Tenant)
	assert.Equal(t, 4, cfg.Graph().Retry.Attempts)
	assert.Equal(t, time.Second, cfg.Graph().Retry.Delay)
	assert.True(t, cfg.Compiler().Strict)
	assert.Equal(t, 50, cfg.Index().PageSize)
	assert.Equal(t, cfg.URI, cfg.Neo4j().URI)
	assert.Equal(t, 5, cfg.Neo4j().ConnectAttempts)
}

func TestDuration_MarshalYAML(t *testing.T) {
	v, err := Duration(1500 * time.Millisecond).MarshalYAML()
	require.NoError(t, err)
	assert.Equal(t, "1.5s", v)
}
