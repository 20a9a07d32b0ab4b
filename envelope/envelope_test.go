package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type geoRequest struct {
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	UserID      string  `json:"user_id"`
	Age         *int    `json:"age,omitempty"`
	MotionState string  `json:"motion_state,omitempty"`
}

type codedErr struct{ code int }

func (e codedErr) Error() string   { return fmt.Sprintf("upstream said %d", e.code) }
func (e codedErr) StatusCode() int { return e.code }

func TestRequest_RoundTripThroughMessage(t *testing.T) {
	age := 30
	in := geoRequest{Lat: 37.77, Lon: -122.41, UserID: "user123", Age: &age, MotionState: "walking"}

	req, err := NewRequest(Default, "corr-1", "amq.gen-1", in)
	require.NoError(t, err)

	msg := req.Message()
	assert.Equal(t, "corr-1", msg.CorrelationID)
	assert.Equal(t, "amq.gen-1", msg.ReplyTo)
	assert.Equal(t, "application/json", msg.ContentType)

	received := RequestFromMessage(msg)
	var out geoRequest
	require.NoError(t, received.DecodeBody(Default, &out))
	assert.Equal(t, in, out)
	assert.Equal(t, "corr-1", received.CorrelationID)
	assert.Equal(t, "amq.gen-1", received.ReplyAddress)
}

func TestRequest_DecodeBodyMalformed(t *testing.T) {
	req := Request{Body: []byte("{not json")}
	var out geoRequest
	err := req.DecodeBody(Default, &out)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestNewReply_Success(t *testing.T) {
	reply := NewReply(Default, "corr-2", map[string]string{"display_name": "San Francisco, CA"}, nil)
	assert.Equal(t, "corr-2", reply.CorrelationID)
	assert.JSONEq(t, `{"display_name":"San Francisco, CA"}`, string(reply.Body))

	rec, err := InspectReply(Default, reply.Body)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestNewReply_ErrorRecord(t *testing.T) {
	reply := NewReply(Default, "corr-3", nil, errors.New("Both 'state' and 'country' must be provided"))
	assert.JSONEq(t, `{"error":"Both 'state' and 'country' must be provided"}`, string(reply.Body))

	coded := NewReply(Default, "corr-4", nil, fmt.Errorf("wrapped: %w", codedErr{code: 404}))
	rec, err := InspectReply(Default, coded.Body)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "wrapped: upstream said 404", rec.Error)
	assert.Equal(t, 404, rec.StatusCode)
}

func TestNewReply_UnencodableResult(t *testing.T) {
	reply := NewReply(Default, "corr-5", map[string]any{"ch": make(chan int)}, nil)
	rec, err := InspectReply(Default, reply.Body)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Contains(t, rec.Error, "encode reply")
}

func TestInspectReply(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantRec *ErrorRecord
		wantErr error
	}{
		{name: "object payload", body: `{"temperature":18.5,"description":"fog"}`},
		{name: "array payload", body: `[1,2,3]`},
		{name: "null error field", body: `{"error":null,"events":[]}`},
		{name: "error record", body: `{"error":"boom","status_code":500}`, wantRec: &ErrorRecord{Error: "boom", StatusCode: 500}},
		{name: "non-string error", body: `{"error":{"reason":"x"}}`, wantRec: &ErrorRecord{Error: "map[reason:x]"}},
		{name: "garbage", body: `<html>`, wantErr: ErrMalformed},
		{name: "empty", body: ``, wantErr: ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := InspectReply(Default, []byte(tt.body))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRec, rec)
		})
	}
}

func TestJSONCodec_PassThrough(t *testing.T) {
	raw := json.RawMessage(`{"a":1}`)
	data, err := Default.Encode(raw)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(data))

	data, err = Default.Encode(nil)
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(data))

	var target []byte
	require.NoError(t, Default.Decode([]byte("xyz"), &target))
	assert.Equal(t, "xyz", string(target))
}
