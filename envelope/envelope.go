// Package envelope defines the request and reply envelopes exchanged over
// the broker and the codec that serializes their bodies.
//
// A Request Envelope is a structured body plus two transport fields: the
// correlation id (unique per call) and the reply address (the caller's
// private reply queue). A Reply Envelope carries the same correlation id and
// either the backend's success body or an ErrorRecord.
package envelope

import (
	"errors"
	"fmt"

	"github.com/hupe1980/brokermesh/broker"
)

// ErrMalformed marks a body that could not be decoded.
var ErrMalformed = errors.New("envelope: malformed body")

// ErrorRecord is the reply body a backend sends instead of a result.
type ErrorRecord struct {
	Error      string `json:"error"`
	StatusCode int    `json:"status_code,omitempty"`
}

// StatusCoder is implemented by errors that carry a status code for the
// error record.
type StatusCoder interface {
	StatusCode() int
}

// Request is an outgoing or incoming request envelope. Immutable once sent.
type Request struct {
	CorrelationID string
	ReplyAddress  string
	Body          []byte
	ContentType   string
}

// NewRequest encodes body and attaches the transport fields.
func NewRequest(c Codec, correlationID, replyAddress string, body any) (Request, error) {
	data, err := c.Encode(body)
	if err != nil {
		return Request{}, fmt.Errorf("encode request: %w", err)
	}
	return Request{
		CorrelationID: correlationID,
		ReplyAddress:  replyAddress,
		Body:          data,
		ContentType:   c.ContentType(),
	}, nil
}

// Message converts the envelope into a broker message.
func (r Request) Message() broker.Message {
	return broker.Message{
		Body:          r.Body,
		ContentType:   r.ContentType,
		CorrelationID: r.CorrelationID,
		ReplyTo:       r.ReplyAddress,
	}
}

// RequestFromMessage reads a request envelope from a consumed message.
func RequestFromMessage(m broker.Message) Request {
	return Request{
		CorrelationID: m.CorrelationID,
		ReplyAddress:  m.ReplyTo,
		Body:          m.Body,
		ContentType:   m.ContentType,
	}
}

// DecodeBody decodes the request body into v. Decode failures wrap
// ErrMalformed.
func (r Request) DecodeBody(c Codec, v any) error {
	if err := c.Decode(r.Body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// Reply is a reply envelope.
type Reply struct {
	CorrelationID string
	Body          []byte
	ContentType   string
}

// Message converts the reply into a broker message.
func (r Reply) Message() broker.Message {
	return broker.Message{Body: r.Body, ContentType: r.ContentType, CorrelationID: r.CorrelationID}
}

// NewReply builds the reply for a handler outcome. A non-nil handlerErr
// produces an ErrorRecord; otherwise result is encoded as the success body.
// If result cannot be encoded the reply degrades to an ErrorRecord so the
// caller is always answered.
func NewReply(c Codec, correlationID string, result any, handlerErr error) Reply {
	reply := Reply{CorrelationID: correlationID, ContentType: c.ContentType()}
	if handlerErr == nil {
		data, err := c.Encode(result)
		if err == nil {
			reply.Body = data
			return reply
		}
		handlerErr = fmt.Errorf("encode reply: %w", err)
	}

	rec := ErrorRecord{Error: handlerErr.Error()}
	var sc StatusCoder
	if errors.As(handlerErr, &sc) {
		rec.StatusCode = sc.StatusCode()
	}
	data, err := c.Encode(rec)
	if err != nil {
		// a codec that cannot encode two fields is unusable; fall back to JSON text
		data = []byte(fmt.Sprintf(`{"error":%q}`, rec.Error))
	}
	reply.Body = data
	return reply
}

// InspectReply reports whether body is an ErrorRecord. A body the codec
// cannot decode returns an error wrapping ErrMalformed. Success bodies
// return (nil, nil).
func InspectReply(c Codec, body []byte) (*ErrorRecord, error) {
	var raw any
	if err := c.Decode(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, nil
	}
	v, ok := obj["error"]
	if !ok || v == nil {
		return nil, nil
	}
	rec := &ErrorRecord{}
	if s, ok := v.(string); ok {
		rec.Error = s
	} else {
		rec.Error = fmt.Sprint(v)
	}
	switch code := obj["status_code"].(type) {
	case float64:
		rec.StatusCode = int(code)
	case int:
		rec.StatusCode = code
	}
	return rec, nil
}
