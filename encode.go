package microapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Encoder encodes response values to a wire format.
type Encoder interface {
	ContentType() string
	Encode(w io.Writer, v any) error
}

// Decoder decodes request bodies from a wire format.
type Decoder interface {
	ContentType() string
	Decode(r io.Reader, v any) error
}

const (
	mediaJSON    = "application/json"
	mediaProblem = "application/problem+json"
	mediaYAML    = "application/yaml"
)

type jsonCodec struct{}

func (jsonCodec) ContentType() string { return mediaJSON }

func (jsonCodec) Encode(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}

func (jsonCodec) Decode(r io.Reader, v any) error {
	return ignoreEOF(json.NewDecoder(r).Decode(v))
}

type yamlCodec struct{}

func (yamlCodec) ContentType() string { return mediaYAML }

func (yamlCodec) Encode(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func (yamlCodec) Decode(r io.Reader, v any) error {
	return ignoreEOF(yaml.NewDecoder(r).Decode(v))
}

// ignoreEOF treats an empty body as no value.
func ignoreEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// codecs reads request bodies into the untyped values a chain validates and
// writes chain responses back out. JSON is always first and is the fallback
// in both directions.
type codecs struct {
	encoders []Encoder
	decoders []Decoder
	limit    int64
}

func newCodecs(limit int64, encoders []Encoder, decoders []Decoder) *codecs {
	cs := &codecs{limit: limit}
	cs.encoders = append([]Encoder{jsonCodec{}, yamlCodec{}}, encoders...)
	cs.decoders = append([]Decoder{jsonCodec{}, yamlCodec{}}, decoders...)
	return cs
}

// decode reads the request body. An absent body decodes to nil. A content
// type no decoder serves is 415, a body over the limit is 413 and a body
// that does not parse is 400.
func (cs *codecs) decode(w http.ResponseWriter, req *http.Request) (any, error) {
	if req.Body == nil || req.Body == http.NoBody || req.ContentLength == 0 {
		return nil, nil
	}

	ct := req.Header.Get("Content-Type")
	dec := cs.decoderFor(ct)
	if dec == nil {
		return nil, Errorf(http.StatusUnsupportedMediaType, "unsupported content type %q", ct)
	}

	src := req.Body
	if cs.limit > 0 {
		src = http.MaxBytesReader(w, req.Body, cs.limit)
	}

	var body any
	if err := dec.Decode(src, &body); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, Errorf(http.StatusRequestEntityTooLarge, "request body exceeds %d bytes", mbe.Limit)
		}
		return nil, fmt.Errorf("%w: %w", ErrBindBody, Error(http.StatusBadRequest, "invalid request body: "+err.Error()))
	}
	return body, nil
}

func (cs *codecs) decoderFor(contentType string) Decoder {
	if contentType == "" {
		return cs.decoders[0]
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil
	}
	for _, dec := range cs.decoders {
		if dec.ContentType() == mt {
			return dec
		}
	}
	return nil
}

// encode writes resp: headers, then the status (200 by default, 204 when
// there is no body), then the body in the format Accept negotiates.
func (cs *codecs) encode(w http.ResponseWriter, req *http.Request, resp *Response) error {
	for key, vals := range resp.Header {
		for _, v := range vals {
			w.Header().Add(key, v)
		}
	}

	status := resp.Status
	if status == 0 {
		status = http.StatusOK
		if resp.Body == nil {
			status = http.StatusNoContent
		}
	}
	if resp.Body == nil || status == http.StatusNoContent || status == http.StatusNotModified {
		w.WriteHeader(status)
		return nil
	}

	enc := cs.accept(req.Header.Get("Accept"))
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", contentType(enc, resp.Body))
	}
	w.WriteHeader(status)
	return enc.Encode(w, resp.Body)
}

// contentType labels JSON problem details as application/problem+json.
func contentType(enc Encoder, body any) string {
	ct := enc.ContentType()
	if _, ok := body.(*ProblemDetail); ok && ct == mediaJSON {
		return mediaProblem
	}
	return ct
}

// accept picks the encoder for an Accept header: the registered type with
// the highest quality. Missing, wildcard or unmatched headers get JSON.
func (cs *codecs) accept(header string) Encoder {
	best, bestQ := cs.encoders[0], -1.0
	for _, mr := range mediaRanges(header) {
		if mr.q <= bestQ {
			continue
		}
		if enc := cs.encoderFor(mr.typ); enc != nil {
			best, bestQ = enc, mr.q
		}
	}
	return best
}

// encoderFor matches one media range. */* and problem+json select JSON; a
// type wildcard such as application/* selects the first encoder under it.
func (cs *codecs) encoderFor(mediaType string) Encoder {
	switch mediaType {
	case "*/*", mediaProblem:
		return cs.encoders[0]
	}
	prefix, wildcard := strings.CutSuffix(mediaType, "/*")
	for _, enc := range cs.encoders {
		ct := enc.ContentType()
		if ct == mediaType || wildcard && strings.HasPrefix(ct, prefix+"/") {
			return enc
		}
	}
	return nil
}

type mediaRange struct {
	typ string
	q   float64
}

// mediaRanges parses an Accept header. Unparseable entries are skipped; a
// missing or malformed q counts as 1.
func mediaRanges(header string) []mediaRange {
	var out []mediaRange
	for part := range strings.SplitSeq(header, ",") {
		mt, params, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		q := 1.0
		if parsed, err := strconv.ParseFloat(params["q"], 64); err == nil {
			q = parsed
		}
		out = append(out, mediaRange{typ: mt, q: q})
	}
	return out
}
