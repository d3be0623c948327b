package main

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/tjfontaine/openapi-gateway/internal/config"
)

func TestRun_Usage(t *testing.T) {
	var stdout, stderr bytes.Buffer

	if code := run([]string{"/usr/local/bin/gateway"}, &stdout, &stderr); code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !strings.HasPrefix(stderr.String(), "Usage: gateway SPEC_FILE") {
		t.Errorf("stderr = %q", stderr.String())
	}
	if stdout.Len() != 0 {
		t.Errorf("stdout = %q", stdout.String())
	}
}

func TestRun_NothingMounted(t *testing.T) {
	t.Setenv("API_GW_CONFIG", "")
	t.Chdir(t.TempDir())
	var stdout, stderr bytes.Buffer

	if code := run([]string{"gateway", "does-not-exist.yaml"}, &stdout, &stderr); code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stdout.String(), "refusing to start") {
		t.Errorf("log = %s", stdout.String())
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		cfg       config.LogConfig
		wantDebug bool
		wantJSON  bool
	}{
		{config.LogConfig{Level: "debug", Format: "json"}, true, true},
		{config.LogConfig{Level: "info", Format: "text"}, false, false},
		{config.LogConfig{Level: "bogus"}, false, true},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		logger := newLogger(tt.cfg, &buf)

		if got := logger.Enabled(t.Context(), slog.LevelDebug); got != tt.wantDebug {
			t.Errorf("%+v: debug enabled = %v", tt.cfg, got)
		}
		logger.Info("hello")
		if got := strings.HasPrefix(buf.String(), "{"); got != tt.wantJSON {
			t.Errorf("%+v: output %q", tt.cfg, buf.String())
		}
	}
}
