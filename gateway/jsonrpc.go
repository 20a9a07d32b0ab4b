package gateway

import (
	"net/http"

	"github.com/gorilla/rpc/v2/json2"

	"github.com/hupe1980/brokermesh/internal/util"
	"github.com/hupe1980/brokermesh/jobs"
	"github.com/hupe1980/brokermesh/orchestrator"
)

// RecommendationService is the JSON-RPC 2.0 service registered as
// "Recommendation".
type RecommendationService struct {
	h *Handler
}

// PollArgs selects the result to collect.
type PollArgs struct {
	UserID string `json:"user_id"`
}

// Recommend runs a synchronous recommendation.
func (s *RecommendationService) Recommend(r *http.Request, args *orchestrator.Request, reply *RecommendResponse) error {
	if err := args.Validate(); err != nil {
		return rpcError(err)
	}
	text, err := s.h.recommendWithTimeout(r.Context(), *args)
	if err != nil {
		return rpcError(err)
	}
	*reply = RecommendResponse{Status: jobs.StatusReady, Recommendation: text}
	return nil
}

// Enqueue queues an async recommendation.
func (s *RecommendationService) Enqueue(r *http.Request, args *orchestrator.Request, reply *EnqueueResponse) error {
	id, err := s.h.svc.Enqueue(r.Context(), *args)
	if err != nil {
		return rpcError(err)
	}
	*reply = EnqueueResponse{Message: "Recommendation request for user " + args.UserID + " queued", JobID: id}
	return nil
}

// Poll collects an async result.
func (s *RecommendationService) Poll(r *http.Request, args *PollArgs, reply *jobs.Entry) error {
	if args.UserID == "" {
		return rpcError(&util.ValidationError{Field: "user_id", Message: "is required"})
	}
	entry, err := s.h.svc.Poll(r.Context(), args.UserID)
	if err != nil {
		return rpcError(err)
	}
	*reply = entry
	return nil
}

// rpcError carries the HTTP status of err in the error data.
func rpcError(err error) *json2.Error {
	code := StatusCode(err)
	rpcCode := json2.E_SERVER
	if code == http.StatusBadRequest {
		rpcCode = json2.E_BAD_PARAMS
	}
	return &json2.Error{Code: rpcCode, Message: err.Error(), Data: map[string]int{"status": code}}
}
