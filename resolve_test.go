package microapi_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjaus/microapi"
)

func userDefinitions() microapi.Definitions {
	return microapi.Definitions{
		"User": microapi.Object(microapi.Fields{
			"id":      microapi.String().Require(),
			"name":    microapi.String().Require(),
			"address": microapi.Ref("Address"),
		}).Label("User"),
		"Address": microapi.Object(microapi.Fields{
			"city": microapi.String(),
		}).Label("Address"),
		"UserList": microapi.Array(microapi.Ref("User")),
	}
}

// hasReference reports whether any node under s still names a definition
// that is not the definition itself.
func hasReference(s *microapi.Schema, r *microapi.Resolver) bool {
	if s == nil {
		return false
	}
	if s.Class != "" {
		if _, ok := r.Label(s); !ok {
			return true
		}
	}
	for _, child := range s.Properties {
		if hasReference(child, r) {
			return true
		}
	}
	return hasReference(s.Items, r)
}

func TestNewResolver(t *testing.T) {
	t.Parallel()

	r, err := microapi.NewResolver(userDefinitions())
	require.NoError(t, err)

	user, ok := r.Definition("User")
	require.True(t, ok)
	address, ok := r.Definition("Address")
	require.True(t, ok)
	list, ok := r.Definition("UserList")
	require.True(t, ok)

	assert.Same(t, address, user.Properties["address"])
	assert.Same(t, user, list.Items)
	assert.Empty(t, r.Gaps())

	for name, def := range r.Definitions() {
		assert.False(t, hasReference(def, r), "definition %s", name)
	}
}

func TestResolver_Resolve(t *testing.T) {
	t.Parallel()

	r, err := microapi.NewResolver(userDefinitions())
	require.NoError(t, err)
	user, _ := r.Definition("User")

	tests := map[string]struct {
		in    *microapi.Schema
		check func(t *testing.T, out *microapi.Schema)
	}{
		"nil": {
			in: nil,
			check: func(t *testing.T, out *microapi.Schema) {
				assert.Nil(t, out)
			},
		},
		"plain schema is unchanged": {
			in: microapi.String(),
			check: func(t *testing.T, out *microapi.Schema) {
				assert.Equal(t, "string", out.Type)
			},
		},
		"top-level reference": {
			in: microapi.Ref("User"),
			check: func(t *testing.T, out *microapi.Schema) {
				assert.Same(t, user, out)
			},
		},
		"nested reference": {
			in: microapi.Object(microapi.Fields{
				"owner": microapi.Ref("User"),
				"items": microapi.Array(microapi.Ref("Address")),
			}),
			check: func(t *testing.T, out *microapi.Schema) {
				assert.Same(t, user, out.Properties["owner"])
				assert.Equal(t, "object", out.Properties["items"].Items.Type)
				assert.False(t, hasReference(out, r))
			},
		},
		"required reference keeps its flag": {
			in: microapi.Object(microapi.Fields{"owner": microapi.Ref("User").Require()}),
			check: func(t *testing.T, out *microapi.Schema) {
				owner := out.Properties["owner"]
				assert.True(t, owner.Required)
				assert.Equal(t, user.Properties, owner.Properties)
				assert.False(t, user.Required)

				name, ok := r.Label(owner)
				assert.True(t, ok)
				assert.Equal(t, "User", name)
			},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			out, err := r.Resolve(tc.in)
			require.NoError(t, err)
			tc.check(t, out)
		})
	}
}

func TestResolver_Resolve_idempotent(t *testing.T) {
	t.Parallel()

	r, err := microapi.NewResolver(userDefinitions())
	require.NoError(t, err)

	in := microapi.Object(microapi.Fields{"owner": microapi.Ref("User"), "n": microapi.Integer()})
	once, err := r.Resolve(in)
	require.NoError(t, err)
	twice, err := r.Resolve(once)
	require.NoError(t, err)

	assert.Equal(t, once, twice)
}

func TestResolver_Resolve_does_not_mutate_input(t *testing.T) {
	t.Parallel()

	r, err := microapi.NewResolver(userDefinitions())
	require.NoError(t, err)

	ref := microapi.Ref("User")
	in := microapi.Object(microapi.Fields{"owner": ref})

	_, err = r.Resolve(in)
	require.NoError(t, err)

	assert.Same(t, ref, in.Properties["owner"])
	assert.Nil(t, ref.Properties)
}

func TestResolver_unknown_reference(t *testing.T) {
	t.Parallel()

	r, err := microapi.NewResolver(userDefinitions())
	require.NoError(t, err)

	in := microapi.Object(microapi.Fields{
		"pet": (&microapi.Schema{Class: "Pet"}).Describe("unregistered"),
		"vet": microapi.Object(microapi.Fields{"owner": microapi.Ref("User")}).Label("Vet"),
	})

	out, err := r.Resolve(in)
	require.NoError(t, err)

	assert.Equal(t, "Pet", out.Properties["pet"].Class)
	assert.Equal(t, "unregistered", out.Properties["pet"].Description)

	user, _ := r.Definition("User")
	assert.Same(t, user, out.Properties["vet"].Properties["owner"])
	assert.Equal(t, []string{"Pet", "Vet"}, r.Gaps())
}

func TestNewResolver_cycle(t *testing.T) {
	t.Parallel()

	tests := map[string]microapi.Definitions{
		"self": {
			"Node": microapi.Object(microapi.Fields{"next": microapi.Ref("Node")}).Label("Node"),
		},
		"mutual": {
			"A": microapi.Object(microapi.Fields{"b": microapi.Ref("B")}),
			"B": microapi.Object(microapi.Fields{"a": microapi.Array(microapi.Ref("A"))}),
		},
		"alias": {
			"A": microapi.Ref("B"),
			"B": microapi.Ref("A"),
		},
	}

	for name, defs := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := microapi.NewResolver(defs)
			require.ErrorIs(t, err, microapi.ErrDefinitionCycle)

			var ce *microapi.CycleError
			require.ErrorAs(t, err, &ce)
			assert.GreaterOrEqual(t, len(ce.Path), 2)
			assert.Equal(t, ce.Path[0], ce.Path[len(ce.Path)-1])
		})
	}
}

func TestNewResolver_alias(t *testing.T) {
	t.Parallel()

	defs := userDefinitions()
	defs["Member"] = microapi.Ref("User")

	r, err := microapi.NewResolver(defs)
	require.NoError(t, err)

	user, _ := r.Definition("User")
	member, _ := r.Definition("Member")
	assert.Same(t, user, member)
}

func TestResolver_concurrent(t *testing.T) {
	t.Parallel()

	r, err := microapi.NewResolver(userDefinitions())
	require.NoError(t, err)
	user, _ := r.Definition("User")

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := r.Resolve(microapi.Object(microapi.Fields{
				"u": microapi.Ref("User"),
				"x": microapi.Ref("Missing"),
			}))
			assert.NoError(t, err)
			assert.Same(t, user, out.Properties["u"])
		}()
	}
	wg.Wait()

	assert.Equal(t, []string{"Missing"}, r.Gaps())
}
