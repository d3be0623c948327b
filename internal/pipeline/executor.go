package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/openapi-gateway/internal/domain"
)

const instrumentationName = "github.com/tjfontaine/openapi-gateway/internal/pipeline"

// tracer resolves the global provider per call so stage spans follow
// whatever provider telemetry.Init installed.
func tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// StageKind enumerates the stages a pipe may name.
type StageKind int

const (
	StageCORS StageKind = iota
	StageAnyHandler
	StageParamsParser
	StageParamsValidator
	StageRouter
)

var stageNames = map[string]StageKind{
	"cors":             StageCORS,
	"any_handler":      StageAnyHandler,
	"params_parser":    StageParamsParser,
	"params_validator": StageParamsValidator,
	"router":           StageRouter,
}

// String returns the configuration name of the stage.
func (k StageKind) String() string {
	for name, kind := range stageNames {
		if kind == k {
			return name
		}
	}
	return fmt.Sprintf("StageKind(%d)", int(k))
}

// ParseStage resolves a configured stage name. Unknown names are a
// configuration error.
func ParseStage(name string) (StageKind, error) {
	if kind, ok := stageNames[name]; ok {
		return kind, nil
	}
	known := make([]string, 0, len(stageNames))
	for n := range stageNames {
		known = append(known, n)
	}
	sort.Strings(known)
	return 0, domain.ErrConfiguration(fmt.Sprintf("unknown pipeline stage %q (known: %s)", name, strings.Join(known, ", ")))
}

// Stage processes a request and either calls next or halts with an error.
type Stage interface {
	// Name returns the registry name of the stage.
	Name() string
	Process(rc *RequestContext, next func() error) error
}

// Executor runs an immutable, ordered list of stages.
type Executor struct {
	name   string
	stages []Stage
}

// NewExecutor creates an executor for the pipe name.
func NewExecutor(name string, stages ...Stage) *Executor {
	return &Executor{name: name, stages: append([]Stage(nil), stages...)}
}

// Name returns the pipe name.
func (e *Executor) Name() string { return e.name }

// Stages returns the names of the stages, in order.
func (e *Executor) Stages() []string {
	names := make([]string, len(e.stages))
	for i, s := range e.stages {
		names[i] = s.Name()
	}
	return names
}

// Run executes the chain left to right. The first error halts it; the name
// of the stage that produced it is recorded on rc.
func (e *Executor) Run(rc *RequestContext) error {
	rc.Pipeline = e.name
	return e.run(rc, 0)
}

func (e *Executor) run(rc *RequestContext, i int) error {
	if i == len(e.stages) {
		return nil
	}
	stage := e.stages[i]

	parent := rc.ctx
	ctx, span := tracer().Start(parent, "pipeline."+stage.Name(),
		trace.WithAttributes(
			attribute.String("pipeline", e.name),
			attribute.String("stage", stage.Name()),
		))
	rc.ctx = ctx

	err := stage.Process(rc, func() error {
		return e.run(rc, i+1)
	})

	if err != nil {
		if rc.failedAt == "" {
			rc.failedAt = stage.Name()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.End()
	rc.ctx = parent

	return err
}
