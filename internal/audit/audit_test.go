package audit

import (
	"bytes"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func Test_LogCommandStart_RedactsSecrets(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-supersecret")
	t.Setenv("RAGNAR_API_KEY", "bearer-token-value")
	t.Setenv("OLLAMA_MODEL", "llama3")

	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	LogCommandStart(log, "ask", "/etc/ragnar/config.yaml")
	out := buf.String()

	for _, secret := range []string{"sk-supersecret", "bearer-token-value"} {
		if strings.Contains(out, secret) {
			t.Errorf("audit log leaked secret value %q", secret)
		}
	}
	if !strings.Contains(out, "OPENAI_API_KEY=set") {
		t.Error("audit log should record OPENAI_API_KEY presence")
	}
	if !strings.Contains(out, "OLLAMA_MODEL=llama3") {
		t.Error("audit log should record non-secret values verbatim")
	}
	if !strings.Contains(out, "command=ask") {
		t.Error("audit log should record the command name")
	}
}

func Test_LogCommandStart_UnsetKeys(t *testing.T) {
	t.Setenv("AZURE_OPENAI_API_KEY", "")
	os.Unsetenv("AZURE_OPENAI_API_KEY")

	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	LogCommandStart(log, "index", "")
	out := buf.String()

	if !strings.Contains(out, "AZURE_OPENAI_API_KEY=unset") {
		t.Error("audit log should mark absent secrets as unset")
	}
	if !strings.Contains(out, "config_file=none") {
		t.Error("audit log should mark a missing config file as none")
	}
}

func Test_SanitiseKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		key   string
		value string
		want  string
	}{
		{"secret set", "OPENAI_API_KEY", "sk-abc", "set"},
		{"secret unset", "LANGFUSE_SECRET_KEY", "", "unset"},
		{"non-secret set", "OLLAMA_MODEL", "llama3", "llama3"},
		{"non-secret unset", "OLLAMA_MODEL", "", "unset"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := SanitiseKey(tt.key, tt.value); got != tt.want {
				t.Errorf("SanitiseKey(%q, %q) = %q, want %q", tt.key, tt.value, got, tt.want)
			}
		})
	}
}

func Test_SanitiseConfigPath_RedactsHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}

	got := sanitiseConfigPath(home + "/.ragnar/config.yaml")
	if got != "~/.ragnar/config.yaml" {
		t.Errorf("sanitiseConfigPath() = %q, want home replaced with ~", got)
	}
	if got := sanitiseConfigPath("/etc/ragnar.yaml"); got != "/etc/ragnar.yaml" {
		t.Errorf("sanitiseConfigPath() = %q, want path unchanged", got)
	}
}
