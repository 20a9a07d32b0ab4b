// Package gateway exposes a Service over HTTP.
//
// REST endpoints (all GET):
//
//	/recommendation         ?user_id&lat&lon[&age&gender&time_of_day&motion_state]
//	/recommendation/async   same parameters; enqueues and answers 202
//	/recommendation/result  ?user_id; pending, ready or failed
//	/healthz
//
// Failures answer {"detail": "..."} with 400 for invalid input, 502 for
// backend errors, 504 for timeouts and 500 otherwise.
//
// A JSON-RPC 2.0 endpoint at /rpc serves the same operations as the
// "Recommendation" service (Recommendation.Recommend, Recommendation.Enqueue,
// Recommendation.Poll).
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	gorillarpc "github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json2"

	"github.com/hupe1980/brokermesh/internal/util"
	"github.com/hupe1980/brokermesh/jobs"
	"github.com/hupe1980/brokermesh/logging"
	"github.com/hupe1980/brokermesh/orchestrator"
	"github.com/hupe1980/brokermesh/rpc"
)

// Service is the recommendation surface. *brokermesh.Mesh implements it.
type Service interface {
	Recommend(ctx context.Context, req orchestrator.Request) (string, error)
	Enqueue(ctx context.Context, req orchestrator.Request) (string, error)
	Poll(ctx context.Context, userID string) (jobs.Entry, error)
}

// Options configures a Handler.
type Options struct {
	// RequestTimeout bounds a synchronous recommendation. Zero leaves the
	// request context untouched.
	RequestTimeout time.Duration
	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Handler routes the REST and JSON-RPC endpoints.
type Handler struct {
	svc    Service
	opts   Options
	mux    *http.ServeMux
	logger logging.Logger
}

// New creates the HTTP handler for svc.
func New(svc Service, optFns ...func(o *Options)) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("gateway: service must not be nil")
	}
	opts := Options{
		RequestTimeout: 3 * time.Minute,
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	h := &Handler{svc: svc, opts: opts, mux: http.NewServeMux(), logger: opts.Logger}

	rpcServer := gorillarpc.NewServer()
	rpcServer.RegisterCodec(json2.NewCodec(), "application/json")
	if err := rpcServer.RegisterService(&RecommendationService{h: h}, "Recommendation"); err != nil {
		return nil, fmt.Errorf("gateway: register rpc service: %w", err)
	}

	h.mux.HandleFunc("GET /recommendation", h.recommend)
	h.mux.HandleFunc("GET /recommendation/async", h.enqueue)
	h.mux.HandleFunc("GET /recommendation/result", h.result)
	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.Handle("POST /rpc", rpcServer)
	return h, nil
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// RecommendResponse is the body of a synchronous recommendation.
type RecommendResponse struct {
	Status         jobs.Status `json:"status"`
	Recommendation string      `json:"recommendation"`
}

// EnqueueResponse is the body of an accepted async request.
type EnqueueResponse struct {
	Message string `json:"message"`
	JobID   string `json:"job_id"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func (h *Handler) recommend(w http.ResponseWriter, r *http.Request) {
	req, err := parseRequest(r.URL.Query())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	text, err := h.recommendWithTimeout(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RecommendResponse{Status: jobs.StatusReady, Recommendation: text})
}

func (h *Handler) recommendWithTimeout(ctx context.Context, req orchestrator.Request) (string, error) {
	if h.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opts.RequestTimeout)
		defer cancel()
	}
	return h.svc.Recommend(ctx, req)
}

func (h *Handler) enqueue(w http.ResponseWriter, r *http.Request) {
	req, err := parseRequest(r.URL.Query())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := h.svc.Enqueue(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, EnqueueResponse{
		Message: fmt.Sprintf("Recommendation request for user %s queued", req.UserID),
		JobID:   id,
	})
}

func (h *Handler) result(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		h.fail(w, r, &util.ValidationError{Field: "user_id", Message: "is required"})
		return
	}
	entry, err := h.svc.Poll(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := StatusCode(err)
	if code >= http.StatusInternalServerError {
		h.logger.Error("gateway.request.failed", "path", r.URL.Path, "status", code, "error", err.Error())
	} else {
		h.logger.Debug("gateway.request.rejected", "path", r.URL.Path, "status", code, "error", err.Error())
	}
	writeJSON(w, code, errorResponse{Detail: err.Error()})
}

// StatusCode maps an error to its HTTP status.
func StatusCode(err error) int {
	switch {
	case util.IsValidationError(err):
		return http.StatusBadRequest
	case errors.Is(err, rpc.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, rpc.ErrBackend):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// parseRequest reads the query parameters of a recommendation request.
func parseRequest(q url.Values) (orchestrator.Request, error) {
	req := orchestrator.Request{
		UserID:      q.Get("user_id"),
		Gender:      q.Get("gender"),
		TimeOfDay:   q.Get("time_of_day"),
		MotionState: q.Get("motion_state"),
	}
	var err error
	if req.Lat, err = parseFloat(q, "lat"); err != nil {
		return req, err
	}
	if req.Lon, err = parseFloat(q, "lon"); err != nil {
		return req, err
	}
	if v := q.Get("age"); v != "" {
		if req.Age, err = strconv.Atoi(v); err != nil {
			return req, &util.ValidationError{Field: "age", Value: v, Message: "must be an integer"}
		}
	}
	return req, req.Validate()
}

func parseFloat(q url.Values, field string) (float64, error) {
	v := q.Get(field)
	if v == "" {
		return 0, &util.ValidationError{Field: field, Message: "is required"}
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, &util.ValidationError{Field: field, Value: v, Message: "must be a number"}
	}
	return f, nil
}
