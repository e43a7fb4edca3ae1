package loader_test

import (
	"context"
	"net/http"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjaus/microapi"
	"github.com/bjaus/microapi/loader"
)

func file(s string) *fstest.MapFile {
	return &fstest.MapFile{Data: []byte(s)}
}

var apiFS = fstest.MapFS{
	"api/definitions/User.yaml": file(`
type: object
class: User
properties:
  id: {type: string, required: true}
  age: {type: integer, minimum: 0}
`),
	"api/definitions/UserList.yml": file(`
type: array
items: {class: User}
`),
	"api/definitions/README.md": file("ignored"),
	"api/schemas/users/get.yaml": file(`
summary: List users
tags: [users]
request:
  query:
    limit: {type: integer, default: 20}
responses:
  "200":
    body: {class: UserList}
`),
	"api/schemas/users/post.yaml": file(`
request:
  body:
    name: {type: string, required: true}
    age: {type: integer}
responses:
  "201":
    description: Created
    body: {class: User}
validations:
  request:
    - rule: body.age >= 18
      status: 422
      message: must be an adult
  response:
    - rule: status != 201 || body.id != nil
`),
	"api/schemas/users/_id/GET.yaml": file(`
request:
  path:
    id: {type: string, pattern: "^[0-9]+$"}
`),
}

func TestLoad(t *testing.T) {
	t.Parallel()

	api, err := loader.Load(apiFS, "api")
	require.NoError(t, err)

	require.Len(t, api.Definitions, 2)
	user := api.Definitions["User"]
	require.NotNil(t, user)
	assert.Equal(t, "object", user.Type)
	assert.Equal(t, "User", user.Class)
	assert.True(t, user.Properties["id"].Required)
	assert.InDelta(t, 0.0, *user.Properties["age"].Minimum, 0)
	assert.Equal(t, "User", api.Definitions["UserList"].Items.Class)

	users := api.Schemas.Segment("users")
	list := users.Method("get")
	require.NotNil(t, list)
	assert.Equal(t, "List users", list.Summary)
	assert.Equal(t, []string{"users"}, list.Tags)
	assert.Equal(t, 20, list.Request["query"]["limit"].Default)
	assert.Equal(t, "UserList", list.Responses["200"].Body.Class)

	create := users.Method("post")
	require.NotNil(t, create)
	assert.Equal(t, "Created", create.Responses["201"].Description)
	assert.NotNil(t, create.Validations.Request)
	assert.NotNil(t, create.Validations.Response)

	byID := users.Segment("_id").Method("get")
	require.NotNil(t, byID)
	assert.Equal(t, "^[0-9]+$", byID.Request["path"]["id"].Pattern)
	assert.Nil(t, byID.Validations.Request)

	_, err = microapi.NewResolver(api.Definitions)
	assert.NoError(t, err)
}

func TestLoad_missing_directories(t *testing.T) {
	t.Parallel()

	api, err := loader.Load(fstest.MapFS{}, "")
	require.NoError(t, err)

	assert.Empty(t, api.Definitions)
	assert.Empty(t, api.Schemas.Methods)
	assert.Empty(t, api.Schemas.Segments)
}

func TestLoad_errors(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		fsys fstest.MapFS
		want error
	}{
		"unknown method file": {
			fsys: fstest.MapFS{"schemas/users/patch.yaml": file("summary: x")},
			want: loader.ErrUnknownMethodFile,
		},
		"malformed definition": {
			fsys: fstest.MapFS{"definitions/User.yaml": file("type: [object")},
		},
		"malformed schema": {
			fsys: fstest.MapFS{"schemas/get.yaml": file("request: 3")},
		},
		"bad rule": {
			fsys: fstest.MapFS{"schemas/get.yaml": file(`
validations:
  request:
    - rule: "body.age >>> 1"
`)},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := loader.Load(tc.fsys, ".")
			require.Error(t, err)
			if tc.want != nil {
				assert.ErrorIs(t, err, tc.want)
			}
		})
	}
}

func TestRules_request(t *testing.T) {
	t.Parallel()

	api, err := loader.Load(apiFS, "api")
	require.NoError(t, err)
	validate := api.Schemas.Segment("users").Method("post").Validations.Request

	tests := map[string]struct {
		body       any
		wantStatus int
	}{
		"holds": {
			body: map[string]any{"name": "ada", "age": 36},
		},
		"does not hold": {
			body:       map[string]any{"name": "kid", "age": 9},
			wantStatus: http.StatusUnprocessableEntity,
		},
		"fails to evaluate": {
			body:       map[string]any{"name": "anon"},
			wantStatus: http.StatusUnprocessableEntity,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			err := validate(context.Background(), &microapi.Request{Body: tc.body, Header: http.Header{}})
			if tc.wantStatus == 0 {
				assert.NoError(t, err)
				return
			}

			var pd *microapi.ProblemDetail
			require.ErrorAs(t, err, &pd)
			assert.Equal(t, tc.wantStatus, pd.Status)
			assert.Contains(t, pd.Detail, "must be an adult")
		})
	}
}

func TestRules_header_and_path(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{"schemas/_id/delete.yaml": file(`
validations:
  request:
    - rule: header["x-role"] == "admin" && path.id != "0"
`)}
	api, err := loader.Load(fsys, ".")
	require.NoError(t, err)
	validate := api.Schemas.Segment("_id").Method("delete").Validations.Request

	ok := validate(context.Background(), &microapi.Request{
		Params: map[string]any{"id": "7"},
		Header: http.Header{"X-Role": {"admin"}},
	})
	assert.NoError(t, ok)

	err = validate(context.Background(), &microapi.Request{
		Params: map[string]any{"id": "7"},
		Header: http.Header{"X-Role": {"guest"}},
	})
	var pd *microapi.ProblemDetail
	require.ErrorAs(t, err, &pd)
	assert.Equal(t, http.StatusBadRequest, pd.Status)
	assert.Equal(t, `rule failed: header["x-role"] == "admin" && path.id != "0"`, pd.Detail)
}

func TestRules_response(t *testing.T) {
	t.Parallel()

	api, err := loader.Load(apiFS, "api")
	require.NoError(t, err)
	validate := api.Schemas.Segment("users").Method("post").Validations.Response

	assert.NoError(t, validate(context.Background(), &microapi.Response{Status: 201, Body: map[string]any{"id": "1"}}))
	assert.NoError(t, validate(context.Background(), &microapi.Response{Status: 400, Body: nil}))

	err = validate(context.Background(), &microapi.Response{Status: 201, Body: map[string]any{}})
	var pd *microapi.ProblemDetail
	require.ErrorAs(t, err, &pd)
	assert.Equal(t, http.StatusInternalServerError, pd.Status)
}

func noop(*microapi.Context) (*microapi.Result, error) { return nil, nil }

func TestAttach(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		routes  *microapi.RouteNode
		orphans string
	}{
		"every schema routed": {
			routes: microapi.Routes(
				microapi.Dir("users",
					microapi.Get(noop),
					microapi.Post(noop),
					microapi.Put(noop),
					microapi.Dir("_id", microapi.Get(noop)),
				),
			),
		},
		"missing leaves": {
			routes: microapi.Routes(
				microapi.Dir("users", microapi.Get(noop)),
			),
			orphans: "GET /users/_id, POST /users",
		},
		"no routes": {
			routes:  nil,
			orphans: "GET /users, GET /users/_id, POST /users",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			api, err := loader.Load(apiFS, "api")
			require.NoError(t, err)

			err = loader.Attach(api, tc.routes)
			if tc.orphans == "" {
				require.NoError(t, err)
				assert.Same(t, tc.routes, api.Routes)
				return
			}
			require.ErrorIs(t, err, loader.ErrOrphanSchema)
			assert.Contains(t, err.Error(), tc.orphans)
			assert.Nil(t, api.Routes)
		})
	}
}

func TestLoad_compiles_on_router(t *testing.T) {
	t.Parallel()

	api, err := loader.Load(apiFS, "api")
	require.NoError(t, err)

	create := func(c *microapi.Context) (*microapi.Result, error) {
		body := c.Request.Body.(map[string]any)
		return &microapi.Result{Status: http.StatusCreated, Body: map[string]any{"id": "1", "age": body["age"]}}, nil
	}
	require.NoError(t, loader.Attach(api, microapi.Routes(
		microapi.Dir("users", microapi.Get(noop), microapi.Post(create), microapi.Dir("_id", microapi.Get(noop))),
	)))

	r := microapi.New()
	require.NoError(t, r.Define(*api))
	assert.Len(t, r.Routes(), 3)
}
