package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.yaml", `addr: :9999
models_dir: /tmp
model: m1
grammar: bundle://grammars/steps.gbnf
bundle_root: /opt/app
attempt_timeout: 45s
max_attempts: 2
acceleration:
  - min_memory_mb: 0
    discrete_layers: 10
    unified_layers: 10
  - min_memory_mb: 8000
    discrete_layers: 30
    unified_layers: 999
device:
  memory_mb: 4096
  unified: true
cloud:
  steps_url: https://example.test/steps
  legacy: true
cors:
  enabled: true
  origins: ["*"]
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9999" || cfg.ModelsDir != "/tmp" || cfg.Model != "m1" || cfg.BundleRoot != "/opt/app" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.AttemptTimeout.Std() != 45*time.Second || cfg.MaxAttempts != 2 {
		t.Fatalf("timeout=%v attempts=%d", cfg.AttemptTimeout.Std(), cfg.MaxAttempts)
	}
	if len(cfg.Acceleration) != 2 || cfg.Acceleration[1].UnifiedLayers != 999 {
		t.Fatalf("tiers: %+v", cfg.Acceleration)
	}
	if cfg.Device.MemoryMB == nil || *cfg.Device.MemoryMB != 4096 || cfg.Device.Unified == nil || !*cfg.Device.Unified || cfg.Device.Accelerated != nil {
		t.Fatalf("device: %+v", cfg.Device)
	}
	if !cfg.Cloud.Legacy || cfg.Cloud.StepsURL == "" || !cfg.CORS.Enabled {
		t.Fatalf("cloud/cors: %+v %+v", cfg.Cloud, cfg.CORS)
	}
}

func TestLoadJSON(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.json", `{"addr":":7070","models_dir":"/m","model":"m2","max_wait":"5s","cloud":{"connect_timeout":"3s"}}`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":7070" || cfg.ModelsDir != "/m" || cfg.Model != "m2" || cfg.MaxWait.Std() != 5*time.Second {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.Cloud.ConnectTimeout.Std() != 3*time.Second {
		t.Fatalf("connect timeout: %v", cfg.Cloud.ConnectTimeout.Std())
	}
}

func TestLoadTOML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.toml", "addr=\":8081\"\nmodels_dir=\"/x\"\nmodel=\"m3\"\nattempt_timeout=\"2m\"\n\n[[acceleration]]\nmin_memory_mb=0\ndiscrete_layers=20\nunified_layers=20\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8081" || cfg.ModelsDir != "/x" || cfg.Model != "m3" || cfg.AttemptTimeout.Std() != 2*time.Minute {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if len(cfg.Acceleration) != 1 || cfg.Acceleration[0].DiscreteLayers != 20 {
		t.Fatalf("tiers: %+v", cfg.Acceleration)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error on empty path")
	}
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.txt", "not supported")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected unsupported extension error")
	}
	if _, err := Load(filepath.Join(d, "missing.yaml")); err == nil {
		t.Fatalf("expected error for nonexistent file")
	}
	bad := map[string]string{
		"syntax.yaml":  "addr: :8080\n: broken\n",
		"syntax.json":  `{ "addr": ":8080", "models_dir": }`,
		"syntax.toml":  "addr=:8080\nmodels_dir\n",
		"timeout.yaml": "attempt_timeout: soon\n",
		"timeout.json": `{"max_wait": "5 minutes"}`,
		"timeout.toml": "[cloud]\nconnect_timeout = \"fast\"\n",
	}
	for name, body := range bad {
		if _, err := Load(writeTempFile(t, d, name, body)); err == nil {
			t.Fatalf("%s: expected parse error", name)
		}
	}
}

func TestApplyDefaultsAndValidate(t *testing.T) {
	var c Config
	c.ApplyDefaults()
	if c.Addr != DefaultAddr || c.Grammar != DefaultGrammar || c.RawAdapter != "engine" || c.MaxQueueDepth != DefaultMaxQueueDepth || c.MaxWait.Std() != DefaultMaxWait {
		t.Fatalf("defaults: %+v", c)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	c.RawAdapter = "subprocess"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected invalid raw adapter")
	}
	c.RawAdapter = "llama"
	c.MaxAttempts = -1
	if err := c.Validate(); err == nil {
		t.Fatalf("expected negative attempts error")
	}
}
