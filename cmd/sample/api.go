package main

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cast"

	"github.com/bjaus/microapi"
	"github.com/bjaus/microapi/internal/config"
	"github.com/bjaus/microapi/loader"
	"github.com/bjaus/microapi/otelspan"
)

//go:embed all:api
var apiFiles embed.FS

// newRouter loads the API description and compiles it with the sample
// handlers.
func newRouter(cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer) (*microapi.Router, error) {
	fsys, err := apiFS(cfg.API.Dir)
	if err != nil {
		return nil, err
	}

	api, err := loader.Load(fsys, ".")
	if err != nil {
		return nil, err
	}
	if err := loader.Attach(api, routes(cfg)); err != nil {
		return nil, err
	}
	api.Middleware = []microapi.Middleware{
		microapi.Recovery(logger),
		microapi.RequestID(),
		microapi.Logger(logger),
		microapi.Timeout(cfg.Server.Timeout),
	}

	metrics, err := microapi.NewMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	scope := microapi.UseScopeLevel
	if cfg.Validate.UseScope == microapi.UseScopeFirstLeaf.String() {
		scope = microapi.UseScopeFirstLeaf
	}

	r := microapi.New(
		microapi.WithTitle(cfg.API.Title),
		microapi.WithVersion(cfg.API.Version),
		microapi.WithLogger(logger),
		microapi.WithBodyLimit(cfg.Limits.BodyBytes),
		microapi.WithCompileOptions(
			microapi.WithUseScope(scope),
			microapi.WithGateOptions(
				microapi.WithMetrics(metrics),
				microapi.WithTracer(otelspan.New(nil)),
			),
		),
	)

	if cfg.API.Prefix != "" {
		err = r.Group(cfg.API.Prefix).Define(*api)
	} else {
		err = r.Define(*api)
	}
	if err != nil {
		return nil, err
	}

	r.ServeSpec("/openapi.json")
	r.ServeSpecYAML("/openapi.yaml")
	if g, ok := reg.(prometheus.Gatherer); ok {
		r.Mount("GET /metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	}
	return r, nil
}

func apiFS(dir string) (fs.FS, error) {
	if dir != "" {
		return os.DirFS(dir), nil
	}
	return fs.Sub(apiFiles, "api")
}

func routes(cfg *config.Config) *microapi.RouteNode {
	limit := microapi.RateLimit(microapi.RateLimitConfig{
		Rate:  cfg.Limits.Rate,
		Burst: cfg.Limits.Burst,
	})

	return microapi.Routes(
		microapi.Dir("health",
			microapi.Get(handleHealth),
		),
		microapi.Dir("users",
			microapi.Use(limit),
			microapi.Get(handleListUsers),
			microapi.Post(handleCreateUser),
			microapi.Dir("_id",
				microapi.Get(handleGetUser),
				microapi.Put(handleUpdateUser),
				microapi.Delete(handleDeleteUser),
			),
		),
	)
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func handleHealth(_ *microapi.Context) (*microapi.Result, error) {
	return &microapi.Result{Body: map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	}}, nil
}

func handleListUsers(c *microapi.Context) (*microapi.Result, error) {
	role := cast.ToString(c.Request.Query["role"])
	limit := cast.ToInt(c.Request.Query["limit"])
	return &microapi.Result{Body: store.list(role, limit)}, nil
}

func handleCreateUser(c *microapi.Context) (*microapi.Result, error) {
	body := cast.ToStringMap(c.Request.Body)
	u := store.create(
		cast.ToString(body["name"]),
		cast.ToString(body["email"]),
		cast.ToString(body["role"]),
	)
	return &microapi.Result{Status: http.StatusCreated, Body: u}, nil
}

func handleGetUser(c *microapi.Context) (*microapi.Result, error) {
	u, ok := store.get(cast.ToString(c.Param("id")))
	if !ok {
		return nil, microapi.Error(http.StatusNotFound, "user not found")
	}
	return &microapi.Result{Body: u}, nil
}

func handleUpdateUser(c *microapi.Context) (*microapi.Result, error) {
	u, ok := store.update(cast.ToString(c.Param("id")), cast.ToStringMap(c.Request.Body))
	if !ok {
		return nil, microapi.Error(http.StatusNotFound, "user not found")
	}
	return &microapi.Result{Body: u}, nil
}

func handleDeleteUser(c *microapi.Context) (*microapi.Result, error) {
	if !store.delete(cast.ToString(c.Param("id"))) {
		return nil, microapi.Error(http.StatusNotFound, "user not found")
	}
	return &microapi.Result{Status: http.StatusNoContent}, nil
}

// ---------------------------------------------------------------------------
// In-memory store
// ---------------------------------------------------------------------------

// User is the sample resource.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
}

var store = &userStore{
	users: map[string]*User{
		"1": {ID: "1", Name: "Alice", Email: "alice@example.com", Role: "admin"},
		"2": {ID: "2", Name: "Bob", Email: "bob@example.com", Role: "member"},
	},
	nextID: 3,
}

type userStore struct {
	mu     sync.RWMutex
	users  map[string]*User
	nextID int
}

func (s *userStore) list(role string, limit int) []User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		if role != "" && u.Role != role {
			continue
		}
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *userStore) get(id string) (*User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, false
	}
	cp := *u
	return &cp, true
}

func (s *userStore) create(name, email, role string) *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := &User{
		ID:    fmt.Sprintf("%d", s.nextID),
		Name:  name,
		Email: email,
		Role:  role,
	}
	s.nextID++
	s.users[u.ID] = u
	cp := *u
	return &cp
}

func (s *userStore) update(id string, fields map[string]any) (*User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, false
	}
	if v, ok := fields["name"]; ok {
		u.Name = cast.ToString(v)
	}
	if v, ok := fields["email"]; ok {
		u.Email = cast.ToString(v)
	}
	if v, ok := fields["role"]; ok {
		u.Role = cast.ToString(v)
	}
	cp := *u
	return &cp, true
}

func (s *userStore) delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return false
	}
	delete(s.users, id)
	return true
}
