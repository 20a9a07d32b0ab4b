package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/rpc/v2/json2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/brokermesh/envelope"
	"github.com/hupe1980/brokermesh/jobs"
	"github.com/hupe1980/brokermesh/orchestrator"
	"github.com/hupe1980/brokermesh/rpc"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Recommend(ctx context.Context, req orchestrator.Request) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockService) Enqueue(ctx context.Context, req orchestrator.Request) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockService) Poll(ctx context.Context, userID string) (jobs.Entry, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(jobs.Entry), args.Error(1)
}

func newServer(t *testing.T, svc Service) *httptest.Server {
	t.Helper()
	h, err := New(svc)
	require.NoError(t, err)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	return resp.StatusCode
}

var sfRequest = orchestrator.Request{UserID: "u1", Lat: 37.77, Lon: -122.41}

func TestRecommend(t *testing.T) {
	svc := new(MockService)
	want := orchestrator.Request{UserID: "u1", Lat: 37.77, Lon: -122.41, Age: 34, Gender: "female", TimeOfDay: "01:25 PM", MotionState: "walking"}
	svc.On("Recommend", mock.Anything, want).Return("Walk to the Ferry Building.", nil)
	srv := newServer(t, svc)

	var got RecommendResponse
	code := getJSON(t, srv.URL+"/recommendation?user_id=u1&lat=37.77&lon=-122.41&age=34&gender=female&time_of_day=01:25+PM&motion_state=walking", &got)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, RecommendResponse{Status: jobs.StatusReady, Recommendation: "Walk to the Ferry Building."}, got)
	svc.AssertExpectations(t)
}

func TestRecommend_ErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"timeout", &rpc.TimeoutError{Queue: "weather_rpc", CorrelationID: "c1", Timeout: time.Second}, http.StatusGatewayTimeout},
		{"backend", &orchestrator.PhaseError{Phase: orchestrator.PhaseSequential, Step: "location", Err: &rpc.BackendError{Queue: "location_rpc", Message: "geocoder down", StatusCode: 503}}, http.StatusBadGateway},
		{"malformed reply", &rpc.BackendError{Queue: "places_rpc", Message: "bad body", Err: envelope.ErrMalformed}, http.StatusBadGateway},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"other", errors.New("generator crashed"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			svc.On("Recommend", mock.Anything, sfRequest).Return("", tt.err)
			srv := newServer(t, svc)

			var got errorResponse
			code := getJSON(t, srv.URL+"/recommendation?user_id=u1&lat=37.77&lon=-122.41", &got)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.err.Error(), got.Detail)
		})
	}
}

func TestRecommend_InvalidQuery(t *testing.T) {
	svc := new(MockService)
	srv := newServer(t, svc)

	for _, q := range []string{
		"lat=1&lon=1",
		"user_id=u1&lon=1",
		"user_id=u1&lat=north&lon=1",
		"user_id=u1&lat=95&lon=1",
		"user_id=u1&lat=1&lon=1&age=old",
		"user_id=u1&lat=1&lon=1&time_of_day=noon",
	} {
		var got errorResponse
		code := getJSON(t, srv.URL+"/recommendation?"+q, &got)
		assert.Equal(t, http.StatusBadRequest, code, q)
		assert.NotEmpty(t, got.Detail, q)
	}
	svc.AssertNotCalled(t, "Recommend", mock.Anything, mock.Anything)
}

func TestEnqueue(t *testing.T) {
	svc := new(MockService)
	svc.On("Enqueue", mock.Anything, sfRequest).Return("job-1", nil)
	srv := newServer(t, svc)

	var got EnqueueResponse
	code := getJSON(t, srv.URL+"/recommendation/async?user_id=u1&lat=37.77&lon=-122.41", &got)
	assert.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, "job-1", got.JobID)
	assert.Contains(t, got.Message, "u1")
}

func TestResult(t *testing.T) {
	svc := new(MockService)
	svc.On("Poll", mock.Anything, "u1").Return(jobs.Entry{Status: jobs.StatusReady, Recommendation: "Go surfing."}, nil).Once()
	svc.On("Poll", mock.Anything, "u1").Return(jobs.Entry{Status: jobs.StatusPending}, nil).Once()
	srv := newServer(t, svc)

	var got jobs.Entry
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/recommendation/result?user_id=u1", &got))
	assert.Equal(t, jobs.Entry{Status: jobs.StatusReady, Recommendation: "Go surfing."}, got)

	got = jobs.Entry{}
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/recommendation/result?user_id=u1", &got))
	assert.Equal(t, jobs.StatusPending, got.Status)

	var bad errorResponse
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/recommendation/result", &bad))
}

func TestHealthz(t *testing.T) {
	srv := newServer(t, new(MockService))
	var got map[string]string
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/healthz", &got))
	assert.Equal(t, "ok", got["status"])
}

func callRPC(t *testing.T, url, method string, params, reply any) error {
	t.Helper()
	body, err := json2.EncodeClientRequest(method, params)
	require.NoError(t, err)
	resp, err := http.Post(url+"/rpc", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	return json2.DecodeClientResponse(resp.Body, reply)
}

func TestJSONRPC_Recommend(t *testing.T) {
	svc := new(MockService)
	svc.On("Recommend", mock.Anything, sfRequest).Return("Catch a Giants game.", nil)
	srv := newServer(t, svc)

	var got RecommendResponse
	require.NoError(t, callRPC(t, srv.URL, "Recommendation.Recommend", sfRequest, &got))
	assert.Equal(t, "Catch a Giants game.", got.Recommendation)
	assert.Equal(t, jobs.StatusReady, got.Status)
}

func TestJSONRPC_Errors(t *testing.T) {
	svc := new(MockService)
	svc.On("Recommend", mock.Anything, sfRequest).Return("", &rpc.TimeoutError{Queue: "events_rpc", Timeout: time.Second})
	srv := newServer(t, svc)

	var got RecommendResponse
	err := callRPC(t, srv.URL, "Recommendation.Recommend", sfRequest, &got)
	var rpcErr *json2.Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, json2.E_SERVER, rpcErr.Code)
	assert.Contains(t, rpcErr.Message, "events_rpc")

	err = callRPC(t, srv.URL, "Recommendation.Recommend", orchestrator.Request{Lat: 1, Lon: 1}, &got)
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, json2.E_BAD_PARAMS, rpcErr.Code)
}

func TestJSONRPC_EnqueueAndPoll(t *testing.T) {
	svc := new(MockService)
	svc.On("Enqueue", mock.Anything, sfRequest).Return("job-7", nil)
	svc.On("Poll", mock.Anything, "u1").Return(jobs.Entry{Status: jobs.StatusFailed, Error: "weather_rpc: timeout"}, nil)
	srv := newServer(t, svc)

	var queued EnqueueResponse
	require.NoError(t, callRPC(t, srv.URL, "Recommendation.Enqueue", sfRequest, &queued))
	assert.Equal(t, "job-7", queued.JobID)

	var entry jobs.Entry
	require.NoError(t, callRPC(t, srv.URL, "Recommendation.Poll", PollArgs{UserID: "u1"}, &entry))
	assert.Equal(t, jobs.StatusFailed, entry.Status)
}

func TestNew_NilService(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}
