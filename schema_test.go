package microapi_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjaus/microapi"
)

func TestSchema_JSONSchema(t *testing.T) {
	t.Parallel()

	s := microapi.Object(microapi.Fields{
		"name":  microapi.String().Require().Min(1).Max(40),
		"email": microapi.String().WithFormat("email").Require(),
		"age":   microapi.Integer().Min(0),
		"tags":  microapi.Array(microapi.String()).Max(5),
		"role":  microapi.String().OneOf("admin", "member").WithDefault("member"),
	})

	js := s.JSONSchema()

	assert.Equal(t, "object", js.Type)
	assert.Equal(t, []string{"email", "name"}, js.Required)
	require.Contains(t, js.Properties, "name")
	assert.Equal(t, 1, *js.Properties["name"].MinLength)
	assert.Equal(t, 40, *js.Properties["name"].MaxLength)
	assert.Equal(t, "email", js.Properties["email"].Format)
	assert.InDelta(t, 0.0, *js.Properties["age"].Minimum, 0)
	assert.Equal(t, "array", js.Properties["tags"].Type)
	assert.Equal(t, 5, *js.Properties["tags"].MaxItems)
	assert.Equal(t, "string", js.Properties["tags"].Items.Type)
	assert.Equal(t, []any{"admin", "member"}, js.Properties["role"].Enum)
	assert.Equal(t, "member", js.Properties["role"].Default)
}

func TestSchema_JSONSchema_infers_container_type(t *testing.T) {
	t.Parallel()

	obj := (&microapi.Schema{Properties: microapi.Fields{"a": microapi.Any()}}).JSONSchema()
	arr := (&microapi.Schema{Items: microapi.Any()}).JSONSchema()

	assert.Equal(t, "object", obj.Type)
	assert.Equal(t, "array", arr.Type)
}

func TestSchema_builders_chain(t *testing.T) {
	t.Parallel()

	s := microapi.Number().Describe("price").Min(1).Max(10).Label("Price")

	assert.Equal(t, "number", s.Type)
	assert.Equal(t, "price", s.Description)
	assert.Equal(t, "Price", s.Class)
	assert.InDelta(t, 1.0, *s.Minimum, 0)
	assert.InDelta(t, 10.0, *s.Maximum, 0)
}

func TestRef(t *testing.T) {
	t.Parallel()

	s := microapi.Ref("User").Require()

	assert.Equal(t, "User", s.Class)
	assert.True(t, s.Required)
	assert.Empty(t, s.Type)
}
