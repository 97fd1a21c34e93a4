package main

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after question are moved first",
			args:     []string{"what is the refund window", "-doc", "abc"},
			expected: []string{"-doc", "abc", "what is the refund window"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-doc", "abc", "what is the refund window"},
			expected: []string{"-doc", "abc", "what is the refund window"},
		},
		{
			name:     "question only returns unchanged",
			args:     []string{"refund"},
			expected: []string{"refund"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
		{
			name:     "multiple positionals then flags",
			args:     []string{"a.pdf", "b.pdf", "-server", "http://x"},
			expected: []string{"-server", "http://x", "a.pdf", "b.pdf"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := argsReorder(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("argsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuildQuestion(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"refund"}, "refund"},
		{"multiple words", []string{"refund", "window"}, "refund window"},
		{"quoted phrase", []string{"refund window"}, "refund window"},
		{"bengali", []string{"ফেরতের", "সময়সীমা"}, "ফেরতের সময়সীমা"},
		{"surrounding space", []string{"  refund  "}, "refund"},
		{"empty", []string{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildQuestion(tt.args); got != tt.expected {
				t.Errorf("buildQuestion(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  host: "localhost"
  port: 8000
storage:
  data_dir: "./data"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	chdir(t, dir)

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// On macOS, cwd can be /private/var/... while t.TempDir() is /var/...; compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s, want %s", resolvedCanon, configPathCanon)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
}

func TestLoadConfig_defaultsWhenNoFile(t *testing.T) {
	if _, err := os.Stat(defaultConfigPath); err == nil {
		t.Skip("a system config exists at the default path")
	}
	chdir(t, t.TempDir())
	t.Setenv("DATA_DIR", "")
	t.Setenv("MAX_UPLOAD_MB", "")

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != "" {
		t.Errorf("resolved = %q, want empty (nothing to persist)", resolved)
	}
	if cfg.Server.Port != 8000 || cfg.Server.MaxUploadMB != 25 {
		t.Errorf("defaults not applied: %+v", cfg.Server)
	}
	if !filepath.IsAbs(cfg.Storage.DataDir) {
		t.Errorf("data dir should be absolute, got %q", cfg.Storage.DataDir)
	}
}

func TestLoadConfig_invalidExplicitPath(t *testing.T) {
	if _, _, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for a missing explicit config")
	}
}
