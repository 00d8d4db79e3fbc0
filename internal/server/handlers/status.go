package handlers

import (
	"context"
	"net/http"

	"github.com/3leaps/runprogress/pkg/jobstatus"
)

// StatusService answers job status queries.
type StatusService interface {
	GetStatus(ctx context.Context, key, jobName string) (*jobstatus.StatusResponse, error)
}

// JobStatusHandler serves GET /job/status?key=<key>&name=<jobName>.
func JobStatusHandler(svc StatusService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		resp, err := svc.GetStatus(r.Context(), q.Get("key"), q.Get("name"))
		if err != nil {
			respondWithError(w, r, err)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, resp)
	}
}
