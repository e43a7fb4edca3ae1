package microapi

// Test-only exports for internal functions.
var (
	CapturePath = capturePath
	MuxPath     = muxPath
	PathParams  = pathParams
	Normalize   = normalize
	CloneValue  = cloneValue
)

// ShapeRequest shapes v the way request sections are shaped.
func ShapeRequest(v any, s *Schema) any { return shape(v, s, requestShape) }

// ShapeResponse shapes v the way response bodies are shaped.
func ShapeResponse(v any, s *Schema) any { return shape(v, s, responseShape) }
