package pipeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/tjfontaine/openapi-gateway/internal/codec"
	"github.com/tjfontaine/openapi-gateway/internal/config"
	"github.com/tjfontaine/openapi-gateway/internal/controller"
	"github.com/tjfontaine/openapi-gateway/internal/domain"
	"github.com/tjfontaine/openapi-gateway/internal/server"
)

// corsStage answers pre-flight requests with the configured permissions.
type corsStage struct {
	methods string
	headers string
	expose  string
	maxAge  string
}

// NewCORS creates the cors stage.
func NewCORS(cfg config.CORSConfig) Stage {
	return &corsStage{
		methods: strings.Join(cfg.AllowMethods, ", "),
		headers: strings.Join(cfg.AllowHeaders, ","),
		expose:  strings.Join(cfg.ExposeHeaders, ", "),
		maxAge:  strconv.Itoa(cfg.MaxAge),
	}
}

func (s *corsStage) Name() string { return "cors" }

func (s *corsStage) Process(rc *RequestContext, next func() error) error {
	if rc.Request.Method == http.MethodOptions {
		h := rc.Writer.Header()
		if origin := rc.Request.Header.Get("Origin"); origin != "" {
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
		}
		h.Set("Access-Control-Allow-Methods", s.methods)
		h.Set("Access-Control-Allow-Headers", s.headers)
		if s.expose != "" {
			h.Set("Access-Control-Expose-Headers", s.expose)
		}
		h.Set("Access-Control-Max-Age", s.maxAge)
	}
	return next()
}

// anyStage binds the any-method operation when the request method has no
// declared operation on the matched route.
type anyStage struct {
	inst *Instance
}

func (s *anyStage) Name() string { return "any_handler" }

func (s *anyStage) Process(rc *RequestContext, next func() error) error {
	if rc.Operation == nil {
		route, pathParams := s.inst.table.Lookup(rc.Path)
		if route != nil && route.Any != nil {
			if _, declared := route.Operations[rc.Request.Method]; !declared {
				rc.Route = route
				rc.Operation = route.Any
				rc.PathParams = pathParams
				server.AddLogField(rc.Context(), "any_handler", route.Template)
			}
		}
	}
	return next()
}

// parserStage reads JSON and urlencoded bodies within a byte limit.
type parserStage struct {
	types []string
	limit int64
}

// NewParser creates the params_parser stage.
func NewParser(cfg config.ParserConfig) Stage {
	types := make([]string, len(cfg.Types))
	for i, t := range cfg.Types {
		types[i] = normalizeType(t)
	}
	return &parserStage{types: types, limit: cfg.Limit}
}

func (s *parserStage) Name() string { return "params_parser" }

func (s *parserStage) Process(rc *RequestContext, next func() error) error {
	r := rc.Request
	if r.Body == nil || r.Body == http.NoBody {
		return next()
	}

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return next()
	}
	isJSON := s.matches(mediaType)
	isForm := mediaType == "application/x-www-form-urlencoded"
	if !isJSON && !isForm {
		return next()
	}

	if r.ContentLength > s.limit {
		return domain.ErrPayloadTooLarge(s.limit)
	}

	data, err := io.ReadAll(http.MaxBytesReader(rc.Writer, r.Body, s.limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return domain.ErrPayloadTooLarge(s.limit)
		}
		return domain.ErrBadRequest("failed to read request body").WithCause(err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return next()
	}

	if isForm {
		form, err := url.ParseQuery(string(data))
		if err != nil {
			return domain.ErrBadRequest("malformed form body").WithCause(err)
		}
		rc.Form = form
		return next()
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var body any
	if err := dec.Decode(&body); err != nil {
		return domain.ErrBadRequest("malformed JSON body").WithCause(err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return domain.ErrBadRequest("malformed JSON body: trailing data")
	}
	rc.Body, rc.HasBody = body, true

	return next()
}

func (s *parserStage) matches(mediaType string) bool {
	for _, t := range s.types {
		if matchMediaType(mediaType, t) {
			return true
		}
	}
	return false
}

// normalizeType expands a bare subtype such as "json" to a media type.
func normalizeType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	if strings.Contains(t, "/") {
		return t
	}
	if ext := mime.TypeByExtension("." + t); ext != "" {
		mt, _, _ := mime.ParseMediaType(ext)
		return mt
	}
	return "application/" + t
}

// matchMediaType matches a media type against a pattern with "*" wildcards
// in type or subtype position, e.g. application/*+json.
func matchMediaType(mediaType, pattern string) bool {
	mt, mst, ok := strings.Cut(mediaType, "/")
	if !ok {
		return false
	}
	pt, pst, ok := strings.Cut(pattern, "/")
	if !ok {
		return false
	}
	if pt != "*" && pt != mt {
		return false
	}
	switch {
	case pst == "*" || pst == mst:
		return true
	case strings.HasPrefix(pst, "*+"):
		return strings.HasSuffix(mst, pst[1:])
	default:
		return false
	}
}

// validatorStage resolves the operation and binds its parameters.
type validatorStage struct {
	inst *Instance
}

func (s *validatorStage) Name() string { return "params_validator" }

func (s *validatorStage) Process(rc *RequestContext, next func() error) error {
	if err := s.inst.validate(rc); err != nil {
		return err
	}
	return next()
}

// routerStage invokes the controller of the resolved operation.
type routerStage struct {
	inst *Instance
}

func (s *routerStage) Name() string { return "router" }

// invoke runs the operation's controller. A panicking controller becomes a
// server error so the envelope, stage metrics and log fields stay intact.
func (s *routerStage) invoke(rc *RequestContext) (result any, err error) {
	defer func() {
		p := recover()
		if p == nil {
			return
		}
		if p == http.ErrAbortHandler {
			panic(p)
		}
		rc.Logger.Error("controller panic",
			slog.String("request_id", rc.RequestID),
			slog.String("operation_id", rc.Operation.OperationID),
			slog.Any("panic", p),
			slog.String("stack", string(debug.Stack())))
		result = nil
		err = fmt.Errorf("controller panic: %v", p)
	}()

	fn := s.inst.controllers[rc.Operation]
	return fn(rc.Context(), rc.Params)
}

func (s *routerStage) Process(rc *RequestContext, next func() error) error {
	if err := s.inst.validate(rc); err != nil {
		return err
	}

	if rc.allow != nil {
		rc.Writer.Header().Set("Allow", strings.Join(rc.allow, ", "))
		rc.Writer.WriteHeader(http.StatusNoContent)
		return nil
	}

	result, err := s.invoke(rc)
	if err != nil {
		var gwErr *domain.Error
		if errors.As(err, &gwErr) {
			return err
		}
		return domain.ErrServer("internal server error").WithCause(err)
	}

	if err := writeResult(rc.Writer, result); err != nil {
		rc.Logger.Error("failed to write controller result",
			slog.String("request_id", rc.RequestID),
			slog.String("error", err.Error()))
	}
	return nil
}

func writeResult(w http.ResponseWriter, result any) error {
	status := http.StatusOK
	var body any = result

	switch r := result.(type) {
	case nil:
		w.WriteHeader(http.StatusNoContent)
		return nil
	case *controller.Response:
		for k, vs := range r.Header {
			for _, v := range vs {
				w.Header().Add(k, v)
			}
		}
		if r.Status != 0 {
			status = r.Status
		}
		body = r.Body
	case controller.Response:
		return writeResult(w, &r)
	}

	if body == nil && status == http.StatusOK {
		status = http.StatusNoContent
	}
	return codec.WriteJSON(w, status, body)
}
