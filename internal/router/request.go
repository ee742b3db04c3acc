package router

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/nerrad567/canvas-link/internal/infrastructure/mqtt"
)

// Request is a decoded remote request.
type Request struct {
	// Path is the command path, e.g. "/printer/move".
	Path   string
	Header mqtt.Header
	Method string
	Query  json.RawMessage
}

// Response is the status and body sent back to the requester.
type Response struct {
	Status int
	Body   any
}

// Response bodies.
var (
	noContentBody      = map[string]string{"response": "No Content"}
	gatewayTimeoutBody = map[string]string{
		"response": "The server was acting as a gateway or proxy and did not receive a timely response from the upstream server",
	}
)

// NoContent is the default response.
func NoContent() Response {
	return Response{Status: 204, Body: noContentBody}
}

// OK is a 200 response with body.
func OK(body any) Response {
	return Response{Status: 200, Body: body}
}

// GatewayTimeout is sent when the printer or palette never came up.
func GatewayTimeout() Response {
	return Response{Status: 504, Body: gatewayTimeoutBody}
}

type inbound struct {
	Header  *mqtt.Header `json:"header"`
	Payload struct {
		Query  json.RawMessage `json:"query"`
		Method string          `json:"method"`
	} `json:"payload"`
}

// parseRequest decodes an inbound request message.
func parseRequest(path string, payload []byte) (*Request, error) {
	var in inbound
	if err := json.Unmarshal(payload, &in); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedMessage, path, err)
	}
	if in.Header == nil || in.Header.OriginID == "" {
		return nil, fmt.Errorf("%w: %s: missing header", ErrMalformedMessage, path)
	}
	return &Request{
		Path:   path,
		Header: *in.Header,
		Method: strings.ToLower(in.Payload.Method),
		Query:  in.Payload.Query,
	}, nil
}

// Decode unmarshals the query into v. An absent query leaves v untouched.
func (r *Request) Decode(v any) error {
	if len(r.Query) == 0 || string(r.Query) == "null" {
		return nil
	}
	if err := json.Unmarshal(r.Query, v); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrBadQuery, r.Path, err)
	}
	return nil
}

// flexInt accepts a number, a numeric string or "auto". Auto and absent
// values leave Set false.
type flexInt struct {
	Value int
	Set   bool
}

func (f *flexInt) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		f.Value, f.Set = int(n), true
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" || strings.EqualFold(s, "auto") {
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	f.Value, f.Set = v, true
	return nil
}
