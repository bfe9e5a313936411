package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func validConfig() Config {
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			WriteTimeout:    10 * time.Second,
			MaxMessageBytes: 65536,
			OutboundQueue:   256,
			ShutdownTimeout: 5 * time.Second,
		},
		Static: StaticConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    3001,
			Dir:     "./public",
		},
		World: WorldConfig{
			Width:        16,
			Height:       16,
			Depth:        16,
			GroundBlock:  1,
			ScatterBlock: 2,
			ScatterCount: 20,
		},
		Session: SessionConfig{
			Palette: []string{"#FF6B6B"},
		},
		RateLimit: RateLimitConfig{Burst: 20},
		Audit:     AuditConfig{Dir: "./data/audit"},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func TestValidConfig(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestAddrs(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, "0.0.0.0:3001", cfg.Static.Addr())
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("WS_PORT", "")
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 3001, cfg.Server.Port)
	assert.Equal(t, 3001, cfg.Static.Port)
	assert.True(t, cfg.SharedListener(), "page and sync endpoint share one origin by default")
	assert.Equal(t, "./public", cfg.Static.Dir)
	assert.Equal(t, 16, cfg.World.Width)
	assert.Equal(t, 16, cfg.World.Height)
	assert.Equal(t, 16, cfg.World.Depth)
	assert.Equal(t, 20, cfg.World.ScatterCount)
	assert.Len(t, cfg.Session.Palette, 10)
	assert.Equal(t, float64(0), cfg.RateLimit.EditsPerSecond)
	assert.False(t, cfg.Audit.Enabled)
	assert.Equal(t, 10*time.Second, cfg.Server.WriteTimeout)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	err := os.WriteFile(path, []byte(`
server:
  host: 127.0.0.1
  port: 9090
  write_timeout: 2s
static:
  enabled: false
world:
  width: 32
  height: 8
  depth: 32
  seed: 1337
session:
  palette: ["#111111", "#222222"]
rate_limit:
  edits_per_second: 15
  burst: 5
logging:
  level: debug
  format: console
`), 0644)
	require.NoError(t, err)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Addr())
	assert.Equal(t, 2*time.Second, cfg.Server.WriteTimeout)
	assert.False(t, cfg.Static.Enabled)
	assert.Equal(t, 32, cfg.World.Width)
	assert.Equal(t, uint64(1337), cfg.World.Seed)
	assert.Equal(t, []string{"#111111", "#222222"}, cfg.Session.Palette)
	assert.Equal(t, 15.0, cfg.RateLimit.EditsPerSecond)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadInvalidPath(t *testing.T) {
	_, err := Load("/nonexistent/path.yaml")
	assert.Error(t, err)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("VOXEL_WORLD_WIDTH", "24")
	t.Setenv("VOXEL_LOGGING_LEVEL", "warn")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 24, cfg.World.Width)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadLegacyPortEnv(t *testing.T) {
	t.Setenv("PORT", "4001")
	t.Setenv("WS_PORT", "9001")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 4001, cfg.Static.Port)
	assert.Equal(t, 9001, cfg.Server.Port)
}

func TestLoadLegacyPortMovesSharedListener(t *testing.T) {
	t.Setenv("PORT", "4001")
	t.Setenv("WS_PORT", "")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 4001, cfg.Static.Port)
	assert.Equal(t, 4001, cfg.Server.Port)
	assert.True(t, cfg.SharedListener())
}

func TestSharedListener(t *testing.T) {
	cfg := validConfig()
	assert.False(t, cfg.SharedListener())

	cfg.Server.Port = cfg.Static.Port
	assert.True(t, cfg.SharedListener())
	assert.NoError(t, cfg.Validate())

	cfg.Static.Enabled = false
	assert.False(t, cfg.SharedListener())
}

func TestValidateSharedListenerHosts(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = cfg.Static.Port
	cfg.Static.Host = "127.0.0.1"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "static.host")
}

func TestValidateWorldExtent(t *testing.T) {
	cfg := validConfig()
	cfg.World.Depth = 0
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.World.Height = 3
	assert.Error(t, cfg.Validate(), "default generator needs room for the scatter band")

	cfg.World.GeneratorScript = "gen.lua"
	assert.NoError(t, cfg.Validate())
}

func TestValidateWorldCellCeiling(t *testing.T) {
	cfg := validConfig()
	cfg.World.Width = 1 << 20
	cfg.World.Height = 1 << 20
	cfg.World.Depth = 1 << 20
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")
}

func TestValidateStaticOnlyWhenEnabled(t *testing.T) {
	cfg := validConfig()
	cfg.Static.Dir = ""
	assert.Error(t, cfg.Validate())
	cfg.Static.Enabled = false
	assert.NoError(t, cfg.Validate())
}

func TestValidatePaletteNotEmpty(t *testing.T) {
	cfg := validConfig()
	cfg.Session.Palette = nil
	assert.Error(t, cfg.Validate())
	cfg.Session.Palette = []string{""}
	assert.Error(t, cfg.Validate())
}

func TestValidateRateLimit(t *testing.T) {
	cfg := validConfig()
	cfg.RateLimit.EditsPerSecond = -1
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.RateLimit.EditsPerSecond = 10
	cfg.RateLimit.Burst = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateAuditDir(t *testing.T) {
	cfg := validConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.Dir = ""
	assert.Error(t, cfg.Validate())
}

func TestValidateOutboundQueue(t *testing.T) {
	cfg := validConfig()
	cfg.Server.OutboundQueue = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateLogging(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Level = "trace"
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Logging.Format = "xml"
	assert.Error(t, cfg.Validate())
}

func TestValidateCollectsAllViolations(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = -1
	cfg.Logging.Level = "loud"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
	assert.Contains(t, err.Error(), "logging.level")
}

func TestProperty_ValidPortsAccepted(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		port := rapid.IntRange(0, 65535).Draw(rt, "port")
		cfg := validConfig()
		cfg.Server.Port = port
		cfg.Static.Port = port
		assert.NoError(rt, cfg.Validate())
	})
}

func TestProperty_InvalidPortsRejected(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		port := rapid.OneOf(rapid.IntRange(-100000, -1), rapid.IntRange(65536, 200000)).Draw(rt, "port")
		cfg := validConfig()
		cfg.Server.Port = port
		assert.Error(rt, cfg.Validate())
	})
}
