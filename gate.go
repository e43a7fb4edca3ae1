package microapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Request sections a method schema may declare.
const (
	SectionPath   = "path"
	SectionQuery  = "query"
	SectionBody   = "body"
	SectionHeader = "header"
)

// objectSections are validated as one wrapped object each.
var objectSections = []string{SectionPath, SectionQuery, SectionBody}

// GateOption configures BuildGate.
type GateOption func(*gateConfig)

type gateConfig struct {
	engine  Engine
	route   string
	logger  *slog.Logger
	metrics *Metrics
	tracer  SpanStarter
}

// WithEngine sets the engine that compiles schemas. Defaults to
// NewJSONSchemaEngine.
func WithEngine(e Engine) GateOption {
	return func(c *gateConfig) {
		if e != nil {
			c.engine = e
		}
	}
}

// WithRoute names the route the gate guards. It labels logs, metrics and
// spans.
func WithRoute(path string) GateOption {
	return func(c *gateConfig) {
		c.route = path
	}
}

// WithGateLogger sets the logger for response warnings and contained
// validator panics.
func WithGateLogger(l *slog.Logger) GateOption {
	return func(c *gateConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics records gate outcomes on m.
func WithMetrics(m *Metrics) GateOption {
	return func(c *gateConfig) {
		c.metrics = m
	}
}

// WithTracer opens a span around every gate run.
func WithTracer(s SpanStarter) GateOption {
	return func(c *gateConfig) {
		c.tracer = s
	}
}

// SpanStarter is a tracing hook interface for creating spans per request.
// Implement this with your preferred tracing backend (e.g., OpenTelemetry).
type SpanStarter interface {
	StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, func())
}

type sectionCheck struct {
	name    string
	schema  *Schema
	checker Checker
}

type headerCheck struct {
	name    string
	schema  *Schema
	checker Checker
}

type responseCheck struct {
	schema  *Schema
	checker Checker
}

type gate struct {
	method      string
	route       string
	sections    []sectionCheck
	headers     []headerCheck
	responses   map[string]responseCheck
	validations Validations

	logger  *slog.Logger
	metrics *Metrics
	tracer  SpanStarter
}

// BuildGate compiles the validation gate for one method of a schema node.
// The gate checks the request sections, runs the custom request validator,
// calls next, then shapes and checks the response. Schemas are resolved
// and compiled here, once.
func BuildGate(method string, schemas *SchemaNode, r *Resolver, opts ...GateOption) (Stage, error) {
	cfg := &gateConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.engine == nil {
		cfg.engine = NewJSONSchemaEngine()
	}
	if r == nil {
		var err error
		if r, err = NewResolver(nil); err != nil {
			return nil, err
		}
	}

	g := &gate{
		method:  strings.ToUpper(method),
		route:   cfg.route,
		logger:  cfg.logger,
		metrics: cfg.metrics,
		tracer:  cfg.tracer,
	}

	ms := schemas.Method(strings.ToLower(method))
	if ms == nil {
		return g.run, nil
	}
	g.validations = ms.Validations

	if err := g.compileRequest(ms, r, cfg.engine); err != nil {
		return nil, err
	}
	if err := g.compileResponses(ms, r, cfg.engine); err != nil {
		return nil, err
	}

	return g.run, nil
}

func (g *gate) compileRequest(ms *MethodSchema, r *Resolver, engine Engine) error {
	for _, name := range objectSections {
		fields, ok := ms.Request[name]
		if !ok {
			continue
		}
		resolved, err := r.ResolveFields(fields)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", name, err)
		}
		if resolved == nil {
			resolved = Fields{}
		}

		wrapped := Object(resolved)
		checker, err := engine.Compile(wrapped)
		if err != nil {
			return fmt.Errorf("compile %s schema: %w", name, err)
		}
		g.sections = append(g.sections, sectionCheck{name: name, schema: wrapped, checker: checker})
	}

	header := ms.Request[SectionHeader]
	for _, name := range slices.Sorted(maps.Keys(header)) {
		resolved, err := r.Resolve(header[name])
		if err != nil {
			return fmt.Errorf("resolve header %s: %w", name, err)
		}
		checker, err := engine.Compile(resolved)
		if err != nil {
			return fmt.Errorf("compile header %s schema: %w", name, err)
		}
		g.headers = append(g.headers, headerCheck{name: name, schema: resolved, checker: checker})
	}

	return nil
}

func (g *gate) compileResponses(ms *MethodSchema, r *Resolver, engine Engine) error {
	for status, rs := range ms.Responses {
		if g.responses == nil {
			g.responses = make(map[string]responseCheck)
		}
		// A declared status without a body still wins over default; it
		// passes the body through unchecked.
		if rs.Body == nil {
			g.responses[status] = responseCheck{}
			continue
		}
		resolved, err := r.Resolve(rs.Body)
		if err != nil {
			return fmt.Errorf("resolve response %s: %w", status, err)
		}
		checker, err := engine.Compile(resolved)
		if err != nil {
			return fmt.Errorf("compile response %s schema: %w", status, err)
		}
		g.responses[status] = responseCheck{schema: resolved, checker: checker}
	}
	return nil
}

func (g *gate) run(c *Context, next Next) error {
	start := time.Now()
	if g.tracer != nil {
		ctx, end := g.tracer.StartSpan(c.Context(), "gate "+g.method+" "+g.route, map[string]string{
			"http.request.method": g.method,
			"http.route":          g.route,
		})
		c.SetContext(ctx)
		defer end()
	}

	outcome := g.serve(c, next)
	g.metrics.observe(g.method, g.route, outcome, time.Since(start))
	return nil
}

func (g *gate) serve(c *Context, next Next) string {
	if err := g.checkRequest(c); err != nil {
		g.reject(c, err, http.StatusBadRequest)
		return OutcomeRejected
	}

	if v := g.validations.Request; v != nil {
		if err := protect(func() error { return v(c.Context(), c.Request) }); err != nil {
			g.reject(c, err, http.StatusBadRequest)
			return OutcomeRejected
		}
	}

	if err := next(); err != nil {
		g.reject(c, err, http.StatusInternalServerError)
		return OutcomeFailed
	}

	if g.checkResponse(c) {
		return OutcomeWarned
	}
	return OutcomeOK
}

// reject writes the status and body carried by err. The handler and the
// response checks are skipped.
func (g *gate) reject(c *Context, err error, fallback int) {
	var pe *panicError
	if errors.As(err, &pe) {
		g.logger.ErrorContext(c.Context(), "validator panicked",
			"method", g.method,
			"route", g.route,
			"err", err,
			"stack", string(pe.stack),
		)
		c.Response.Status, c.Response.Body = http.StatusInternalServerError, internalError()
		return
	}
	c.Response.Status, c.Response.Body = errorResponse(err, fallback)
}

type sectionResult struct {
	name  string
	value any
	err   error
}

// checkRequest validates every declared section concurrently. The first
// failure is returned; the remaining checks finish in the background and
// their results are dropped. Shaped values are written back only when all
// checks pass.
func (g *gate) checkRequest(c *Context) error {
	total := len(g.sections) + len(g.headers)
	if total == 0 {
		return nil
	}

	req := c.Request
	results := make(chan sectionResult, total)

	for _, sc := range g.sections {
		raw := sectionValue(req, sc.name)
		go func() {
			var shaped any
			err := protect(func() error {
				shaped = shape(raw, sc.schema, requestShape)
				return sc.checker.Check(shaped)
			})
			results <- sectionResult{name: sc.name, value: shaped, err: sectionError(sc.name, err)}
		}()
	}

	for _, hc := range g.headers {
		values, present := req.Header[http.CanonicalHeaderKey(hc.name)]
		go func() {
			results <- sectionResult{err: hc.check(values, present)}
		}()
	}

	shaped := make(map[string]any, len(g.sections))
	for range total {
		select {
		case res := <-results:
			if res.err != nil {
				return res.err
			}
			if res.name != "" {
				shaped[res.name] = res.value
			}
		case <-c.Context().Done():
			return c.Context().Err()
		}
	}

	if v, ok := shaped[SectionPath].(map[string]any); ok {
		req.Params = v
	}
	if v, ok := shaped[SectionQuery].(map[string]any); ok {
		req.Query = v
	}
	if v, ok := shaped[SectionBody]; ok {
		req.Body = v
	}
	return nil
}

func (hc headerCheck) check(values []string, present bool) error {
	field := qualify(SectionHeader, strings.ToLower(hc.name))
	if !present || len(values) == 0 {
		if hc.schema != nil && hc.schema.Required {
			return invalid(SectionHeader, []ValidationError{{Field: field, Message: "is required"}})
		}
		return nil
	}

	err := protect(func() error {
		return hc.checker.Check(shape(values[0], hc.schema, requestShape))
	})
	if err == nil {
		return nil
	}

	var se *SchemaError
	if errors.As(err, &se) {
		errs := make([]ValidationError, len(se.Errors))
		for i, e := range se.Errors {
			e.Field = qualify(field, e.Field)
			errs[i] = e
		}
		return invalid(SectionHeader, errs)
	}
	return err
}

// sectionValue returns the decoded value of a request section. An absent
// section is checked as an empty object.
func sectionValue(req *Request, name string) any {
	switch name {
	case SectionPath:
		if req.Params == nil {
			return map[string]any{}
		}
		return req.Params
	case SectionQuery:
		if req.Query == nil {
			return map[string]any{}
		}
		return req.Query
	case SectionBody:
		if req.Body == nil {
			return map[string]any{}
		}
		return req.Body
	}
	return nil
}

func sectionError(section string, err error) error {
	if err == nil {
		return nil
	}
	var se *SchemaError
	if errors.As(err, &se) {
		return invalid(section, prefixErrors(section, se.Errors))
	}
	return err
}

// invalid is the body written for a request that fails its schema.
func invalid(section string, errs []ValidationError) *ProblemDetail {
	return &ProblemDetail{
		Title:  http.StatusText(http.StatusBadRequest),
		Status: http.StatusBadRequest,
		Detail: "invalid request " + section,
		Errors: errs,
	}
}

// checkResponse shapes the response body against the schema for its status
// and runs the custom response validator. Mismatches are recorded as
// warnings; the status is never changed. It reports whether any warning
// was recorded.
func (g *gate) checkResponse(c *Context) bool {
	resp := c.Response
	before := len(resp.Warnings)

	if rc, ok := g.responseFor(resp.Status); ok && rc.checker != nil {
		if body, err := g.shapeResponse(rc, resp.Body); err != nil {
			g.warn(c, "schema", err)
		} else if body != nil {
			resp.Body = body
		}
	}

	if v := g.validations.Response; v != nil {
		if err := protect(func() error { return v(c.Context(), resp) }); err != nil {
			g.warn(c, "validator", err)
		}
	}

	return len(resp.Warnings) > before
}

func (g *gate) shapeResponse(rc responseCheck, body any) (any, error) {
	var shaped any
	err := protect(func() error {
		normalized, err := normalize(body)
		if err != nil {
			return err
		}
		shaped = shape(normalized, rc.schema, responseShape)
		return rc.checker.Check(shaped)
	})
	if err != nil {
		return nil, err
	}
	return shaped, nil
}

// responseFor picks the schema by exact status, then "default".
func (g *gate) responseFor(status int) (responseCheck, bool) {
	if len(g.responses) == 0 {
		return responseCheck{}, false
	}
	if status == 0 {
		status = http.StatusOK
	}
	if rc, ok := g.responses[strconv.Itoa(status)]; ok {
		return rc, true
	}
	rc, ok := g.responses["default"]
	return rc, ok
}

func (g *gate) warn(c *Context, source string, err error) {
	w := &ResponseWarning{Source: source, Err: err}
	c.Response.Warnings = append(c.Response.Warnings, w)

	attrs := []any{
		"method", g.method,
		"route", g.route,
		"status", c.Response.Status,
		"err", err,
	}
	var pe *panicError
	if errors.As(err, &pe) {
		attrs = append(attrs, "stack", string(pe.stack))
	}
	g.logger.WarnContext(c.Context(), "response check failed", attrs...)
}
