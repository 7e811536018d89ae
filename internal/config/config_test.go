package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonylturner/tlvscope/internal/dissector"
	"github.com/tonylturner/tlvscope/internal/errors"
	"github.com/tonylturner/tlvscope/internal/logging"
	"github.com/tonylturner/tlvscope/internal/protocols"
)

const sample = `
engine:
  max_depth: 32
  step_budget: 5000
  workers: 8
logging:
  level: verbose
output:
  format: json
  hex: true
catalogs:
  - catalogs/vendor.yaml
  - /etc/tlvscope/site.yaml
bindings:
  - table: udp.port
    key: "10002"
    protocol: ubdp
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "tlvscope.yaml", sample)

	cfg, err := Load(path, true)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.Path)
	assert.Equal(t, EngineConfig{MaxDepth: 32, StepBudget: 5000, Workers: 8}, cfg.Engine)
	assert.Equal(t, dissector.Limits{MaxDepth: 32, StepBudget: 5000}, cfg.Limits())
	assert.Equal(t, "verbose", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, OutputConfig{Format: "json", Hex: true}, cfg.Output)
	assert.Equal(t, []string{filepath.Join(dir, "catalogs/vendor.yaml"), "/etc/tlvscope/site.yaml"}, cfg.Catalogs)
	assert.Equal(t, []Binding{{Table: "udp.port", Key: "10002", Protocol: "ubdp"}}, cfg.Bindings)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), false)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, dissector.DefaultMaxDepth, cfg.Engine.MaxDepth)
	assert.Equal(t, 4, cfg.Engine.Workers)
	assert.Equal(t, 0, cfg.Engine.StepBudget)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Output.Format)

	empty := writeFile(t, t.TempDir(), "empty.yaml", "")
	cfg, err = Load(empty, true)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Engine.Workers)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), true)
	require.Error(t, err)

	var ufe errors.UserFriendlyError
	require.True(t, stderrors.As(err, &ufe))
	assert.Contains(t, ufe.Reason, "config file not found")
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bad.yaml", "engine:\n  max_dpeth: 3\n")
	_, err := Load(path, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_dpeth")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"negative depth", func(c *Config) { c.Engine.MaxDepth = -1 }, "engine.max_depth"},
		{"negative budget", func(c *Config) { c.Engine.StepBudget = -5 }, "engine.step_budget"},
		{"negative workers", func(c *Config) { c.Engine.Workers = -2 }, "engine.workers"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"bad output format", func(c *Config) { c.Output.Format = "pdml" }, "output.format"},
		{"blank catalog", func(c *Config) { c.Catalogs = []string{" "} }, "catalogs[0]"},
		{"binding without protocol", func(c *Config) {
			c.Bindings = []Binding{{Table: "udp.port", Key: "1"}}
		}, "protocol is required"},
		{"duplicate binding", func(c *Config) {
			c.Bindings = []Binding{
				{Table: "udp.port", Key: "1", Protocol: "ubdp"},
				{Table: "udp.port", Key: "1", Protocol: "enttec"},
			}
		}, "duplicate binding"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestApplyBindings(t *testing.T) {
	cfg := Default()
	cfg.Bindings = []Binding{{Table: "udp.port", Key: "10002", Protocol: "ubdp"}}

	b := protocols.NewBuilder()
	cfg.ApplyBindings(b)
	reg, err := b.Build()
	require.NoError(t, err)

	p, ok := reg.LookupUint("udp.port", 10002)
	require.True(t, ok)
	assert.Equal(t, "ubdp", p.Name)

	cfg.Bindings = []Binding{{Table: "udp.port", Key: "10003", Protocol: "nosuch"}}
	b = protocols.NewBuilder()
	cfg.ApplyBindings(b)
	_, err = b.Build()
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	cfg := Default()
	cfg.Logging.Level = "debug"
	l, err := cfg.NewLogger()
	require.NoError(t, err)
	defer l.Close()
	assert.Equal(t, logging.LogLevelDebug, l.GetLevel())
}
