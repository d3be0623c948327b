package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	// Run from an empty directory so no gateway.yaml is picked up
	t.Chdir(t.TempDir())

	t.Run("defaults", func(t *testing.T) {
		t.Setenv("API_GW_PORT", "")
		os.Unsetenv("API_GW_PORT")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}

		if cfg.Port != 7111 {
			t.Errorf("Load() port = %v, want 7111", cfg.Port)
		}
		if cfg.Parser.Limit != 5*1024*1024 {
			t.Errorf("Load() parser limit = %v, want 5MiB", cfg.Parser.Limit)
		}
		if !reflect.DeepEqual(cfg.Parser.Types, []string{"json", "application/*+json"}) {
			t.Errorf("Load() parser types = %v", cfg.Parser.Types)
		}
		if cfg.Server.Timeout != 30*time.Second {
			t.Errorf("Load() timeout = %v, want 30s", cfg.Server.Timeout)
		}
		if cfg.Router.DefaultPipe != PipeSwaggerControllers {
			t.Errorf("Load() default pipe = %q", cfg.Router.DefaultPipe)
		}
		if !reflect.DeepEqual(cfg.CORS.AllowHeaders, DefaultAllowHeaders) {
			t.Errorf("Load() allow headers = %v", cfg.CORS.AllowHeaders)
		}
		if cfg.CORS.MaxAge != 31536000 {
			t.Errorf("Load() max age = %d", cfg.CORS.MaxAge)
		}
		if got := cfg.Pipelines[PipeAnyControllers]; !reflect.DeepEqual(got, []string{"cors", "any_handler", "params_parser", "router"}) {
			t.Errorf("Load() any_controllers = %v", got)
		}
	})

	t.Run("env var port override", func(t *testing.T) {
		t.Setenv("API_GW_PORT", "9000")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}

		if cfg.Port != 9000 {
			t.Errorf("Load() port = %v, want 9000", cfg.Port)
		}
	})

	t.Run("nested env override", func(t *testing.T) {
		t.Setenv("API_GW_PARSER__LIMIT", "1024")
		t.Setenv("API_GW_ROUTER__MOCK_MODE", "false")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}

		if cfg.Parser.Limit != 1024 {
			t.Errorf("Load() parser limit = %v, want 1024", cfg.Parser.Limit)
		}
		if cfg.Router.MockMode {
			t.Error("Load() mock mode should be disabled")
		}
	})

	t.Run("explicit config file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "gw.yaml")
		content := `
port: 8000
pipelines:
  strict:
    - cors
    - params_parser
    - params_validator
    - router
router:
  default_pipe: strict
`
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		t.Setenv("API_GW_CONFIG", path)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}

		if cfg.Port != 8000 {
			t.Errorf("Load() port = %v, want 8000", cfg.Port)
		}
		if cfg.Router.DefaultPipe != "strict" {
			t.Errorf("Load() default pipe = %q", cfg.Router.DefaultPipe)
		}
		if len(cfg.Pipelines["strict"]) != 4 {
			t.Errorf("Load() strict pipe = %v", cfg.Pipelines["strict"])
		}
		// Built-in pipes survive next to configured ones
		if _, ok := cfg.Pipelines[PipeSwaggerControllers]; !ok {
			t.Error("Load() dropped the default pipe")
		}
	})

	t.Run("missing explicit config file", func(t *testing.T) {
		t.Setenv("API_GW_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))

		if _, err := Load(); err == nil {
			t.Fatal("expected error for missing explicit config file")
		}
	})
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Port != 7111 {
		t.Errorf("Default() port = %d", cfg.Port)
	}
	if len(cfg.Pipelines) != 2 {
		t.Errorf("Default() pipelines = %v", cfg.Pipelines)
	}
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{"already split", []string{"a", "b"}, []string{"a", "b"}},
		{"comma string", []string{"a, b,c"}, []string{"a", "b", "c"}},
		{"empty parts", []string{"a,,", " "}, []string{"a"}},
		{"nil", nil, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := splitList(tt.input); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("splitList() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfig_AnyPipes(t *testing.T) {
	cfg := Default()
	if got := cfg.AnyPipes(); !reflect.DeepEqual(got, []string{PipeAnyControllers}) {
		t.Errorf("default AnyPipes() = %v", got)
	}

	cfg.Pipelines["catch_all"] = []string{"cors", "any_handler", "router"}
	cfg.Pipelines["plain"] = []string{"cors", "router"}
	if got := cfg.AnyPipes(); !reflect.DeepEqual(got, []string{PipeAnyControllers, "catch_all"}) {
		t.Errorf("AnyPipes() = %v", got)
	}
}
