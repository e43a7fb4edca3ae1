package microapi_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/bjaus/microapi"
	"github.com/bjaus/microapi/apitest"
)

func userAPI() microapi.API {
	schemas := microapi.NewSchemaNode()
	users := schemas.Dir("users")
	users.Set("get", &microapi.MethodSchema{
		Request: map[string]microapi.Fields{
			"query": {
				"limit": microapi.Integer().WithDefault(10),
				"tag":   microapi.Array(microapi.String()),
			},
		},
	})
	users.Set("post", &microapi.MethodSchema{
		Summary: "Create a user",
		Request: map[string]microapi.Fields{
			"body": {
				"name": microapi.String().Require(),
				"age":  microapi.Integer().Min(0),
			},
		},
		Responses: map[string]microapi.ResponseSchema{
			"201": {Body: microapi.Ref("User")},
		},
	})
	users.Dir("_id").Set("get", &microapi.MethodSchema{
		Request: map[string]microapi.Fields{
			"path": {"id": microapi.Integer()},
		},
	})

	routes := microapi.Routes(
		microapi.Dir("users",
			microapi.Get(func(c *microapi.Context) (*microapi.Result, error) {
				return &microapi.Result{Body: c.Request.Query}, nil
			}),
			microapi.Post(func(c *microapi.Context) (*microapi.Result, error) {
				body := c.Request.Body.(map[string]any)
				return &microapi.Result{
					Status: http.StatusCreated,
					Body:   map[string]any{"id": 1, "name": body["name"], "secret": "kept"},
				}, nil
			}),
			microapi.Dir("_id",
				microapi.Get(func(c *microapi.Context) (*microapi.Result, error) {
					id, _ := c.Param("id").(int64)
					return &microapi.Result{Body: map[string]any{"id": id, "even": id%2 == 0}}, nil
				}),
				microapi.Delete(func(*microapi.Context) (*microapi.Result, error) {
					return nil, nil
				}),
			),
		),
	)

	return microapi.API{
		Routes:  routes,
		Schemas: schemas,
		Definitions: microapi.Definitions{
			"User": microapi.Object(microapi.Fields{
				"id":   microapi.Integer().Require(),
				"name": microapi.String().Require(),
				"role": microapi.String().WithDefault("member"),
			}).Label("User"),
		},
	}
}

func newUserRouter(t *testing.T, opts ...microapi.RouterOption) *microapi.Router {
	t.Helper()
	opts = append([]microapi.RouterOption{microapi.WithLogger(discardLogger())}, opts...)
	r := microapi.New(opts...)
	require.NoError(t, r.Define(userAPI()))
	return r
}

func TestRouter_Define(t *testing.T) {
	t.Parallel()

	client := apitest.NewClient(t, newUserRouter(t))

	t.Run("rejects invalid body", func(t *testing.T) {
		t.Parallel()

		resp := client.Post(t, "/users", map[string]any{})

		assert.Equal(t, http.StatusBadRequest, resp.Status)
		assert.Equal(t, "application/problem+json", resp.Headers.Get("Content-Type"))
		body := resp.Object(t)
		assert.Equal(t, "invalid request body", body["detail"])
		assert.Equal(t, []any{map[string]any{"field": "body.name", "message": "is required"}}, body["errors"])
	})

	t.Run("strips unknown fields and shapes the response", func(t *testing.T) {
		t.Parallel()

		resp := client.Post(t, "/users", map[string]any{"name": "ada", "admin": true})

		assert.Equal(t, http.StatusCreated, resp.Status)
		assert.Equal(t, map[string]any{
			"id":     1.0,
			"name":   "ada",
			"role":   "member",
			"secret": "kept",
		}, resp.Object(t))
	})

	t.Run("coerces path params", func(t *testing.T) {
		t.Parallel()

		resp := client.Get(t, "/users/42")

		assert.Equal(t, http.StatusOK, resp.Status)
		assert.Equal(t, map[string]any{"id": 42.0, "even": true}, resp.Object(t))
	})

	t.Run("rejects bad path params", func(t *testing.T) {
		t.Parallel()

		resp := client.Get(t, "/users/abc")

		assert.Equal(t, http.StatusBadRequest, resp.Status)
	})

	t.Run("query defaults and repeated keys", func(t *testing.T) {
		t.Parallel()

		resp := client.Get(t, "/users?tag=a&tag=b&other=x")

		assert.Equal(t, http.StatusOK, resp.Status)
		assert.Equal(t, map[string]any{"limit": 10.0, "tag": []any{"a", "b"}}, resp.Object(t))
	})

	t.Run("no content", func(t *testing.T) {
		t.Parallel()

		resp := client.Delete(t, "/users/1")

		assert.Equal(t, http.StatusNoContent, resp.Status)
		assert.Empty(t, resp.Raw)
	})

	t.Run("unknown route", func(t *testing.T) {
		t.Parallel()

		resp := client.Get(t, "/posts")

		assert.Equal(t, http.StatusNotFound, resp.Status)
	})
}

func TestRouter_body_decoding(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(newUserRouter(t, microapi.WithBodyLimit(64)))
	t.Cleanup(srv.Close)

	tests := map[string]struct {
		contentType string
		accept      string
		body        string
		wantStatus  int
		wantType    string
		wantBody    string
	}{
		"malformed json": {
			contentType: "application/json",
			body:        `{"name":`,
			wantStatus:  http.StatusBadRequest,
		},
		"unsupported media type": {
			contentType: "text/plain",
			body:        "name=ada",
			wantStatus:  http.StatusUnsupportedMediaType,
		},
		"too large": {
			contentType: "application/json",
			body:        `{"name":"` + strings.Repeat("a", 100) + `"}`,
			wantStatus:  http.StatusRequestEntityTooLarge,
		},
		"yaml in and out": {
			contentType: "application/yaml",
			accept:      "application/yaml",
			body:        "name: ada\nage: 3\n",
			wantStatus:  http.StatusCreated,
			wantType:    "application/yaml",
			wantBody:    "name: ada",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, srv.URL+"/users", strings.NewReader(tc.body))
			require.NoError(t, err)
			req.Header.Set("Content-Type", tc.contentType)
			if tc.accept != "" {
				req.Header.Set("Accept", tc.accept)
			}

			resp, err := srv.Client().Do(req)
			require.NoError(t, err)
			defer func() { require.NoError(t, resp.Body.Close()) }()

			raw, err := io.ReadAll(resp.Body)
			require.NoError(t, err)

			assert.Equal(t, tc.wantStatus, resp.StatusCode, string(raw))
			if tc.wantType != "" {
				assert.Equal(t, tc.wantType, resp.Header.Get("Content-Type"))
			}
			if tc.wantBody != "" {
				assert.Contains(t, string(raw), tc.wantBody)
			}
		})
	}
}

func TestRouter_yaml_response_is_shaped(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(newUserRouter(t))
	t.Cleanup(srv.Close)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, srv.URL+"/users", strings.NewReader(`{"name":"ada"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/yaml")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer func() { require.NoError(t, resp.Body.Close()) }()

	var body map[string]any
	require.NoError(t, yaml.NewDecoder(resp.Body).Decode(&body))

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "member", body["role"])
}

func TestRouter_Define_errors(t *testing.T) {
	t.Parallel()

	t.Run("definition cycle", func(t *testing.T) {
		t.Parallel()

		api := userAPI()
		api.Definitions["Loop"] = microapi.Ref("Loop2")
		api.Definitions["Loop2"] = microapi.Ref("Loop")

		err := microapi.New(microapi.WithLogger(discardLogger())).Define(api)

		assert.ErrorIs(t, err, microapi.ErrDefinitionCycle)
	})

	t.Run("conflicting routes", func(t *testing.T) {
		t.Parallel()

		r := newUserRouter(t)

		err := r.Define(userAPI())

		require.Error(t, err)
		assert.Contains(t, err.Error(), "GET /users")
	})
}

func TestRouter_Routes(t *testing.T) {
	t.Parallel()

	r := newUserRouter(t)

	var keys []string
	for _, spec := range r.Routes() {
		keys = append(keys, spec.HTTPMethod()+" "+spec.Path)
	}

	assert.Equal(t, []string{
		"GET /users/:id",
		"DELETE /users/:id",
		"GET /users",
		"POST /users",
	}, keys)
}

func TestRouter_middleware(t *testing.T) {
	t.Parallel()

	var order []string
	mw := func(name string) microapi.Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	api := userAPI()
	api.Middleware = []microapi.Middleware{mw("first"), mw("second")}

	r := microapi.New(microapi.WithLogger(discardLogger()))
	require.NoError(t, r.Define(api))
	r.Use(mw("third"))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestRouter_Mount(t *testing.T) {
	t.Parallel()

	r := newUserRouter(t)
	r.Mount("GET /ping", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "pong")
	}))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.Equal(t, "pong", rec.Body.String())
}

func TestRouter_Timeout(t *testing.T) {
	t.Parallel()

	slow := func(c *microapi.Context) (*microapi.Result, error) {
		<-c.Context().Done()
		return nil, c.Context().Err()
	}

	r := microapi.New(microapi.WithLogger(discardLogger()))
	require.NoError(t, r.Define(microapi.API{
		Routes:     microapi.Routes(microapi.Dir("slow", microapi.Get(slow))),
		Middleware: []microapi.Middleware{microapi.Timeout(20 * time.Millisecond)},
	}))

	resp := apitest.NewClient(t, r).Get(t, "/slow")

	assert.Equal(t, http.StatusServiceUnavailable, resp.Status)
	assert.Equal(t, "request timed out", resp.Object(t)["message"])
}

func TestRouter_root_route(t *testing.T) {
	t.Parallel()

	r := microapi.New(microapi.WithLogger(discardLogger()))
	require.NoError(t, r.Define(microapi.API{
		Routes: microapi.Routes(microapi.Get(reply("home"))),
	}))
	client := apitest.NewClient(t, r)

	assert.Equal(t, "home", client.Get(t, "/").Body)
	assert.Equal(t, http.StatusNotFound, client.Get(t, "/other").Status)
}

func TestRouter_ListenAndServe(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := newUserRouter(t).ListenAndServe(ctx, "127.0.0.1:0")

	assert.NoError(t, err)
}
