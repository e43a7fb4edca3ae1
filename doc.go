// Package microapi is a declarative API-definition layer for net/http.
// An API is described by three trees: a route tree of handlers, a parallel
// schema tree of request/response contracts, and a registry of named
// schema definitions. The package resolves definition references, flattens
// the route tree into method/path registrations, and wraps every handler in
// a two-phase validation gate.
//
// Route trees are built with typed nodes. A segment whose name starts with
// an underscore becomes a path parameter:
//
//	routes := microapi.Routes(
//	    microapi.Dir("users",
//	        microapi.Use(authenticate),
//	        microapi.Get(listUsers),
//	        microapi.Post(createUser),
//	        microapi.Dir("_id",
//	            microapi.Get(getUser),
//	        ),
//	    ),
//	)
//
// Schema trees mirror the route tree and carry the contract per method:
//
//	schemas := microapi.NewSchemaNode()
//	schemas.Dir("users").Set("post", &microapi.MethodSchema{
//	    Request: map[string]microapi.Fields{
//	        "body": {"name": microapi.String().Require()},
//	    },
//	    Responses: map[string]microapi.ResponseSchema{
//	        "201": {Body: microapi.Ref("User")},
//	    },
//	})
//
// Everything is registered on a Router, which implements http.Handler:
//
//	r := microapi.New(microapi.WithTitle("Users"), microapi.WithVersion("1.0.0"))
//	err := r.Define(microapi.API{Routes: routes, Schemas: schemas, Definitions: defs})
//
// Each compiled route runs the chain [gate, use-middleware, handler]. The
// gate validates path, query, body and header sections concurrently,
// strips unknown fields, runs the custom request validator, invokes the
// rest of the chain, and then shapes the response against the schema for
// its status code. Response-side failures are recorded as warnings on the
// response and never replace what the handler produced.
//
// OpenAPI 3.1 documents are derived from the compiled routes:
//
//	r.ServeSpec("/openapi.json")
package microapi
