package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func Test_Load_AppliesYAMLToEnv(t *testing.T) {
	// t.Setenv registers restoration of the original (unset) values, and
	// guards against applying leftover values from the surrounding env.
	for _, key := range []string{"RAGNAR_MODEL_PROVIDER", "OLLAMA_MODEL", "RAGNAR_CHUNK_MAX_SIZE", "RAGNAR_MODEL_TEMPERATURE", "QDRANT_TLS"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	path := writeConfig(t, `
model:
  provider: ollama
  temperature: 0.25
  ollama:
    model: llama3
chunking:
  max_size: 800
qdrant:
  tls: true
`)

	loaded, err := Load(path, testLogger())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded != path {
		t.Fatalf("Load() returned path %q, want %q", loaded, path)
	}

	if got := os.Getenv("RAGNAR_MODEL_PROVIDER"); got != "ollama" {
		t.Errorf("RAGNAR_MODEL_PROVIDER = %q", got)
	}
	if got := os.Getenv("OLLAMA_MODEL"); got != "llama3" {
		t.Errorf("OLLAMA_MODEL = %q", got)
	}
	if got := os.Getenv("RAGNAR_CHUNK_MAX_SIZE"); got != "800" {
		t.Errorf("RAGNAR_CHUNK_MAX_SIZE = %q", got)
	}
	if got := os.Getenv("RAGNAR_MODEL_TEMPERATURE"); got != "0.25" {
		t.Errorf("RAGNAR_MODEL_TEMPERATURE = %q", got)
	}
	if got := os.Getenv("QDRANT_TLS"); got != "true" {
		t.Errorf("QDRANT_TLS = %q", got)
	}
}

func Test_Load_EnvWins(t *testing.T) {
	t.Setenv("RAGNAR_MODEL_PROVIDER", "openai")

	path := writeConfig(t, "model:\n  provider: ollama\n")
	if _, err := Load(path, testLogger()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got := os.Getenv("RAGNAR_MODEL_PROVIDER"); got != "openai" {
		t.Errorf("RAGNAR_MODEL_PROVIDER = %q, env var should not be overridden", got)
	}
}

func Test_Load_ZeroValuesSkipped(t *testing.T) {
	for _, key := range []string{"RAGNAR_CHUNK_MAX_SIZE", "QDRANT_TLS"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	path := writeConfig(t, "chunking:\n  max_size: 0\nqdrant:\n  tls: false\n")
	if _, err := Load(path, testLogger()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if _, set := os.LookupEnv("RAGNAR_CHUNK_MAX_SIZE"); set {
		t.Error("zero max_size should not be applied to env")
	}
	if _, set := os.LookupEnv("QDRANT_TLS"); set {
		t.Error("false tls should not be applied to env")
	}
}

func Test_Load_NoFileIsNotAnError(t *testing.T) {
	t.Setenv("RAGNAR_CONFIG", "")
	os.Unsetenv("RAGNAR_CONFIG")
	t.Setenv("HOME", t.TempDir()) // keep ~/.ragnar/config.yaml out of reach
	t.Chdir(t.TempDir())

	loaded, err := Load("", testLogger())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded != "" {
		t.Fatalf("Load() returned path %q, want empty", loaded)
	}
}

func Test_Load_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "model: [}{")
	if _, err := Load(path, testLogger()); err == nil {
		t.Fatal("Load() should fail on invalid YAML")
	}
}

func Test_Load_ExplicitPathMissing(t *testing.T) {
	t.Setenv("RAGNAR_CONFIG", "")
	os.Unsetenv("RAGNAR_CONFIG")
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())

	// An explicit path that does not exist falls through to "no config".
	loaded, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), testLogger())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded != "" {
		t.Fatalf("Load() returned path %q, want empty", loaded)
	}
}

func Test_ResolveConfigPath_EnvVar(t *testing.T) {
	path := writeConfig(t, "model:\n  provider: ollama\n")
	t.Setenv("RAGNAR_CONFIG", path)

	if got := resolveConfigPath(""); got != path {
		t.Fatalf("resolveConfigPath() = %q, want %q", got, path)
	}
}

func Test_ResolveConfigPath_WorkingDirFallback(t *testing.T) {
	t.Setenv("RAGNAR_CONFIG", "")
	os.Unsetenv("RAGNAR_CONFIG")
	t.Setenv("HOME", t.TempDir())

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "ragnar.yaml"), []byte("{}\n"), 0o644); err != nil {
		t.Fatalf("write ragnar.yaml: %v", err)
	}
	t.Chdir(dir)

	if got := resolveConfigPath(""); got != "ragnar.yaml" {
		t.Fatalf("resolveConfigPath() = %q, want ragnar.yaml", got)
	}
}
