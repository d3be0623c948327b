package pipeline

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tjfontaine/openapi-gateway/internal/domain"
)

// mockStage is a test helper that records calls and returns a configured error.
type mockStage struct {
	name      string
	err       error
	halt      bool
	callOrder *[]string
}

func (s *mockStage) Name() string { return s.name }

func (s *mockStage) Process(rc *RequestContext, next func() error) error {
	if s.callOrder != nil {
		*s.callOrder = append(*s.callOrder, s.name)
	}
	if s.err != nil {
		return s.err
	}
	if s.halt {
		return nil
	}
	return next()
}

func newTestContext() *RequestContext {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	return NewRequestContext(httptest.NewRecorder(), r, "/", nil)
}

func TestExecutor_Run_Empty(t *testing.T) {
	e := NewExecutor("empty")
	rc := newTestContext()

	if err := e.Run(rc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rc.Pipeline != "empty" {
		t.Errorf("pipeline = %q", rc.Pipeline)
	}
}

func TestExecutor_Run_OrderedExecution(t *testing.T) {
	var callOrder []string
	e := NewExecutor("p",
		&mockStage{name: "first", callOrder: &callOrder},
		&mockStage{name: "second", callOrder: &callOrder},
		&mockStage{name: "third", callOrder: &callOrder},
	)

	if err := e.Run(newTestContext()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(callOrder) != 3 || callOrder[0] != "first" || callOrder[1] != "second" || callOrder[2] != "third" {
		t.Errorf("unexpected order: %v", callOrder)
	}
	if got := e.Stages(); len(got) != 3 || got[1] != "second" {
		t.Errorf("Stages() = %v", got)
	}
}

func TestExecutor_Run_HaltsOnError(t *testing.T) {
	var callOrder []string
	stageErr := domain.ErrBadRequest("nope")
	e := NewExecutor("p",
		&mockStage{name: "first", callOrder: &callOrder},
		&mockStage{name: "failing", err: stageErr, callOrder: &callOrder},
		&mockStage{name: "never", callOrder: &callOrder},
	)
	rc := newTestContext()

	err := e.Run(rc)
	if !errors.Is(err, stageErr) {
		t.Fatalf("expected stage error, got %v", err)
	}
	if len(callOrder) != 2 {
		t.Errorf("expected chain to halt after 2 stages, ran %v", callOrder)
	}
	if rc.FailedStage() != "failing" {
		t.Errorf("failed stage = %q, want failing", rc.FailedStage())
	}
}

func TestExecutor_Run_HaltWithoutError(t *testing.T) {
	var callOrder []string
	e := NewExecutor("p",
		&mockStage{name: "first", halt: true, callOrder: &callOrder},
		&mockStage{name: "never", callOrder: &callOrder},
	)

	if err := e.Run(newTestContext()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(callOrder) != 1 {
		t.Errorf("expected only first stage to run, got %v", callOrder)
	}
}

func TestParseStage(t *testing.T) {
	for name, want := range stageNames {
		got, err := ParseStage(name)
		if err != nil || got != want {
			t.Errorf("ParseStage(%q) = %v, %v", name, got, err)
		}
		if got.String() != name {
			t.Errorf("String() = %q, want %q", got.String(), name)
		}
	}

	_, err := ParseStage("swagger_security")
	if !errors.Is(err, domain.ErrConfiguration("")) {
		t.Errorf("expected configuration error, got %v", err)
	}
}
