package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/me/nodelet/internal/schedqueue"
	"github.com/me/nodelet/pkg/model"
)

func (s *Server) handleQueueCounts(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if s.scheduler == nil {
		respondError(w, reqID, http.StatusServiceUnavailable,
			&model.APIError{Code: model.ErrInternal, Message: "scheduler not running"})
		return
	}
	respondOK(w, reqID, s.scheduler.QueueCounts())
}

func (s *Server) handleQueueBucket(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if s.scheduler == nil {
		respondError(w, reqID, http.StatusServiceUnavailable,
			&model.APIError{Code: model.ErrInternal, Message: "scheduler not running"})
		return
	}

	name := chi.URLParam(r, "bucket")
	state, ok := model.ParseTaskState(name)
	if !ok || state.IsTerminal() {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("bucket", name))
		return
	}
	bucket, _ := schedqueue.BucketForState(state)

	tasks := s.scheduler.BucketTasks(bucket)
	respondList(w, reqID, tasks, &model.Pagination{Total: len(tasks), Limit: len(tasks)})
}
