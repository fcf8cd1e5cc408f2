package broker

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrFatal marks errors after which a connection is torn down.
var ErrFatal = errors.New("broker: fatal protocol error")

// ErrClosed is returned by Serve once Shutdown has started.
var ErrClosed = errors.New("broker: shut down")

const (
	groupAuth  = "auth"
	groupAdmin = "admin"

	actionSubscriptionData = "rtm/subscription/data"
)

var defaultID = json.RawMessage("1")

// Request is one inbound PDU.
type Request struct {
	Action string
	ID     json.RawMessage
	Body   map[string]interface{}

	// raw is the PDU as received; publish stores it verbatim.
	raw []byte
}

// Response is one outbound PDU.
type Response struct {
	Action string          `json:"action,omitempty"`
	ID     json.RawMessage `json:"id,omitempty"`
	Body   interface{}     `json:"body"`
}

type envelope struct {
	Action *string          `json:"action"`
	ID     json.RawMessage  `json:"id"`
	Body   *json.RawMessage `json:"body"`
}

// ParseRequest decodes a PDU. The body must be an object when present.
func ParseRequest(data []byte) (*Request, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	req := &Request{ID: env.ID, raw: data}
	if env.Action != nil {
		req.Action = *env.Action
	}
	if len(req.ID) == 0 || bytes.Equal(req.ID, []byte("null")) {
		req.ID = defaultID
	}
	if env.Body != nil && !bytes.Equal(*env.Body, []byte("null")) {
		if err := json.Unmarshal(*env.Body, &req.Body); err != nil {
			return nil, fmt.Errorf("body: %w", err)
		}
	}
	if req.Body == nil {
		req.Body = map[string]interface{}{}
	}
	return req, nil
}

// String returns a string field of the body.
func (r *Request) String(key string) (string, bool) {
	s, ok := r.Body[key].(string)
	return s, ok
}

func (r *Request) ok(body interface{}) Response {
	if body == nil {
		body = struct{}{}
	}
	return Response{Action: r.Action + "/ok", ID: r.ID, Body: body}
}

// ProtocolError is a request that failed. Fatal errors end the connection
// once the error PDU is written.
type ProtocolError struct {
	Fatal bool
	Body  map[string]interface{}
}

func (e *ProtocolError) Error() string {
	if msg, ok := e.Body["error"].(string); ok {
		if reason, ok := e.Body["reason"].(string); ok {
			return msg + ": " + reason
		}
		return msg
	}
	return "protocol error"
}

func (e *ProtocolError) Unwrap() error {
	if e.Fatal {
		return ErrFatal
	}
	return nil
}

func (e *ProtocolError) response(req *Request) Response {
	return Response{Action: req.Action + "/error", ID: req.ID, Body: e.Body}
}

func requestError(format string, args ...interface{}) error {
	return &ProtocolError{Body: map[string]interface{}{"error": fmt.Sprintf(format, args...)}}
}

func fatalError(format string, args ...interface{}) error {
	return &ProtocolError{Fatal: true, Body: map[string]interface{}{"error": fmt.Sprintf(format, args...)}}
}

func badSchema(reason string) Response {
	return Response{Body: map[string]interface{}{"error": "bad_schema", "reason": reason}}
}
