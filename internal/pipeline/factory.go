package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"

	"github.com/tjfontaine/openapi-gateway/internal/codec"
	"github.com/tjfontaine/openapi-gateway/internal/config"
	"github.com/tjfontaine/openapi-gateway/internal/controller"
	"github.com/tjfontaine/openapi-gateway/internal/domain"
	"github.com/tjfontaine/openapi-gateway/internal/metrics"
	"github.com/tjfontaine/openapi-gateway/internal/params"
	"github.com/tjfontaine/openapi-gateway/internal/router"
	"github.com/tjfontaine/openapi-gateway/internal/server"
	"github.com/tjfontaine/openapi-gateway/internal/spec"
)

// ControllerLookup resolves the controller of an operation.
type ControllerLookup interface {
	Lookup(op *spec.Operation) (controller.Func, bool)
}

// Options configures Assemble.
type Options struct {
	CORS        config.CORSConfig
	Parser      config.ParserConfig
	DefaultPipe string
	// MockMode answers operations without a controller from their
	// documented responses instead of failing assembly.
	MockMode bool
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

// Instance is every pipe of one document, bound to its route table.
// It is read-only after Assemble and safe for concurrent use.
type Instance struct {
	table       *router.Table
	pipes       map[string]*Executor
	defaultPipe string
	// unrouted serves requests outside the base path of a lone instance.
	unrouted *Executor
	binders     map[*spec.Operation]*params.Binder
	controllers map[*spec.Operation]controller.Func
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// Assemble resolves defs against the stage registry and binds them to
// table. Unknown stage or pipe names and unresolvable controllers are
// configuration errors; an uncompilable parameter schema is an invalid_spec
// error for the document.
func Assemble(defs map[string][]string, table *router.Table, lookup ControllerLookup, opts Options) (*Instance, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.DefaultPipe == "" {
		opts.DefaultPipe = config.PipeSwaggerControllers
	}

	inst := &Instance{
		table:       table,
		pipes:       make(map[string]*Executor, len(defs)),
		defaultPipe: opts.DefaultPipe,
		binders:     make(map[*spec.Operation]*params.Binder),
		controllers: make(map[*spec.Operation]controller.Func),
		logger:      opts.Logger,
		metrics:     opts.Metrics,
	}

	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		stages := make([]Stage, 0, len(defs[name]))
		for _, stageName := range defs[name] {
			kind, err := ParseStage(stageName)
			if err != nil {
				return nil, fmt.Errorf("pipe %s: %w", name, err)
			}
			stages = append(stages, inst.newStage(kind, opts))
		}
		inst.pipes[name] = NewExecutor(name, stages...)
	}

	doc := table.Document()
	if err := inst.checkPipe(opts.DefaultPipe, "router.default_pipe"); err != nil {
		return nil, err
	}
	inst.unrouted = NewExecutor(opts.DefaultPipe, NewCORS(opts.CORS))

	compiler, err := params.NewCompiler(doc)
	if err != nil {
		return nil, err
	}

	for _, route := range table.Routes() {
		if err := inst.checkPipe(route.Pipe, route.Template); err != nil {
			return nil, err
		}

		ops := make([]*spec.Operation, 0, len(route.Operations)+1)
		for _, op := range route.Operations {
			ops = append(ops, op)
		}
		if route.Any != nil {
			ops = append(ops, route.Any)
		}

		for _, op := range ops {
			if err := inst.checkPipe(op.Pipe, op.String()); err != nil {
				return nil, err
			}

			binder, err := compiler.Binder(op)
			if err != nil {
				return nil, domain.ErrInvalidSpec(doc.Source, "compile parameter schema").WithCause(err)
			}
			inst.binders[op] = binder

			fn, ok := lookup.Lookup(op)
			switch {
			case ok:
			case opts.MockMode:
				fn = controller.Mock(doc, op)
				opts.Logger.Debug("using mock controller",
					slog.String("source", doc.Source),
					slog.String("operation", op.String()))
			default:
				return nil, domain.ErrConfiguration(fmt.Sprintf("no controller for %s (tried %v)", op, controller.Keys(op))).
					WithSource(doc.Source)
			}
			inst.controllers[op] = fn
		}
	}

	return inst, nil
}

func (inst *Instance) newStage(kind StageKind, opts Options) Stage {
	switch kind {
	case StageCORS:
		return NewCORS(opts.CORS)
	case StageAnyHandler:
		return &anyStage{inst: inst}
	case StageParamsParser:
		return NewParser(opts.Parser)
	case StageParamsValidator:
		return &validatorStage{inst: inst}
	default:
		return &routerStage{inst: inst}
	}
}

func (inst *Instance) checkPipe(name, where string) error {
	if name == "" {
		return nil
	}
	if _, ok := inst.pipes[name]; !ok {
		return domain.ErrConfiguration(fmt.Sprintf("%s: unknown pipe %q", where, name)).
			WithSource(inst.table.Document().Source)
	}
	return nil
}

// Table returns the route table the instance serves.
func (inst *Instance) Table() *router.Table { return inst.table }

// Document returns the mounted document.
func (inst *Instance) Document() *spec.Document { return inst.table.Document() }

// Pipe returns the executor serving method and path (relative to the base
// path): the route's pipe when the path matches one, else the default.
func (inst *Instance) Pipe(method, path string) *Executor {
	if route, _ := inst.table.Lookup(path); route != nil {
		if name := route.PipeFor(method); name != "" {
			return inst.pipes[name]
		}
	}
	return inst.pipes[inst.defaultPipe]
}

// Serve runs the chain for a request whose path is relative to the base
// path. Errors are written as structured responses; the returned
// RequestContext describes the outcome.
func (inst *Instance) Serve(w http.ResponseWriter, r *http.Request, path string) *RequestContext {
	rc := NewRequestContext(w, r, path, inst.logger)
	rc.RequestID = server.GetRequestID(r.Context())

	pipe := inst.Pipe(r.Method, path)
	server.AddLogField(r.Context(), "pipeline", pipe.Name())

	err := pipe.Run(rc)
	if err == nil && !rc.Written() {
		// Nothing in the chain produced a response
		err = domain.ErrRouteNotFound(path)
		rc.failedAt = pipe.Name()
	}
	if err != nil {
		Fail(rc, err, inst.metrics)
	}
	if rc.Operation != nil && rc.Operation.OperationID != "" {
		server.AddLogField(r.Context(), "operation_id", rc.Operation.OperationID)
	}

	return rc
}

// ServeUnrouted answers a request whose path lies outside the document base
// path: pre-flights still get their CORS headers, then the request fails
// with route_not_found.
func (inst *Instance) ServeUnrouted(w http.ResponseWriter, r *http.Request) *RequestContext {
	rc := NewRequestContext(w, r, r.URL.Path, inst.logger)
	rc.RequestID = server.GetRequestID(r.Context())
	server.AddLogField(r.Context(), "pipeline", inst.unrouted.Name())

	err := inst.unrouted.Run(rc)
	if err == nil {
		err = domain.ErrRouteNotFound(r.URL.Path)
		rc.failedAt = inst.unrouted.Name()
	}
	Fail(rc, err, inst.metrics)
	return rc
}

// Fail writes err as the response of rc, logging and counting it.
func Fail(rc *RequestContext, err error, m *metrics.Metrics) {
	rc.Errors = append(rc.Errors, err)
	gwErr := codec.ToCanonicalError(err)
	if rc.failedAt == "" {
		rc.failedAt = rc.Pipeline
	}

	server.AddError(rc.Request.Context(), err)
	m.IncStageError(rc.failedAt, string(gwErr.Type))

	if gwErr.HTTPStatusCode() >= http.StatusInternalServerError {
		rc.Logger.Error("request failed",
			slog.String("request_id", rc.RequestID),
			slog.String("stage", rc.failedAt),
			slog.String("error", err.Error()))
	}

	if rc.Written() {
		return
	}
	codec.WriteError(rc.Writer, gwErr)
}

// validate resolves the operation and binds its parameters once per request.
func (inst *Instance) validate(rc *RequestContext) error {
	if rc.validated {
		return nil
	}
	rc.validated = true

	if rc.Operation == nil {
		m, err := inst.table.Match(rc.Request.Method, rc.Path)
		if err != nil {
			var gwErr *domain.Error
			if rc.Request.Method == http.MethodOptions && errors.As(err, &gwErr) &&
				gwErr.Type == domain.ErrorTypeMethodNotAllowed {
				rc.allow = gwErr.Allow
				return nil
			}
			return err
		}
		rc.Route, rc.Operation, rc.PathParams = m.Route, m.Operation, m.PathParams
	}

	r := rc.Request
	values, err := inst.binders[rc.Operation].Bind(params.Input{
		PathParams: rc.PathParams,
		Query:      r.URL.Query(),
		Header:     r.Header,
		Cookies:    r.Cookies(),
		Form:       rc.Form,
		Body:       rc.Body,
		HasBody:    rc.HasBody,
	})
	if err != nil {
		return err
	}
	rc.Params = values
	return nil
}
