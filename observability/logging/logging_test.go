package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewRenamesCoreKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "lendingd", "test", slog.LevelInfo)
	logger.Debug("hidden")
	logger.Info("supplied", "asset", "0xaa")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line above debug, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for key, want := range map[string]string{
		"message":  "supplied",
		"severity": "INFO",
		"service":  "lendingd",
		"env":      "test",
		"asset":    "0xaa",
	} {
		if entry[key] != want {
			t.Fatalf("%s: got %v want %s", key, entry[key], want)
		}
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Fatalf("timestamp key missing: %v", entry)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("%q: got %v want %v", in, got, want)
		}
	}
}

func TestSetupWithOptionsWritesFile(t *testing.T) {
	defer slog.SetDefault(slog.Default())
	path := filepath.Join(t.TempDir(), "lendingd.log")
	logger, closer := SetupWithOptions("lendingd", "", Options{Level: "debug", File: path, MaxSizeMB: 1})
	logger.Debug("accrued", "reserve", "usdc")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), `"message":"accrued"`) {
		t.Fatalf("unexpected log file contents %q", data)
	}
}

func TestMaskField(t *testing.T) {
	if got := MaskField("token", "secret"); got.Value.String() != Redacted {
		t.Fatalf("token must be redacted, got %v", got)
	}
	if got := MaskField("token", " "); got.Value.String() != " " {
		t.Fatalf("empty values are left alone")
	}
}

func TestHandlerRedactsSensitiveKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "lendingd", "", slog.LevelInfo)
	logger.Info("request", "Authorization", "Bearer abc", "user", "0x0a")
	logger.WithGroup("auth").Info("config", "hmac_secret", "s3cret")

	out := buf.String()
	if strings.Contains(out, "Bearer abc") || strings.Contains(out, "s3cret") {
		t.Fatalf("secret leaked: %s", out)
	}
	if !strings.Contains(out, `"user":"0x0a"`) {
		t.Fatalf("regular attributes must pass through: %s", out)
	}
	if !IsSensitive(" TOKEN ") || IsSensitive("asset") {
		t.Fatalf("unexpected sensitivity classification")
	}
}
