package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/kalambet/wisestar/internal/backend"
)

// tutorError maps a backend failure onto an HTTP status. The body keeps the
// success/error shape callers of the tutoring backend already understand.
func tutorError(w http.ResponseWriter, err error) {
	code := http.StatusBadGateway
	var se *backend.StatusError
	switch {
	case errors.Is(err, backend.ErrUnavailable):
		code = http.StatusServiceUnavailable
	case errors.Is(err, backend.ErrUnsuccessful):
		code = http.StatusUnprocessableEntity
	case errors.As(err, &se) && se.StatusCode >= 400 && se.StatusCode < 500:
		code = se.StatusCode
	}
	writeJSON(w, code, map[string]any{"success": false, "error": err.Error()})
}

func handleDaily(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := deps.Tutor.Daily(r.Context())
		if err != nil {
			tutorError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, q)
	}
}

func handleSubmitDaily(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var sub backend.DailySubmission
		if !decodeBody(w, r, &sub) {
			return
		}
		if strings.TrimSpace(sub.Answer) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "answer is required")
			return
		}
		v, err := deps.Tutor.SubmitDaily(r.Context(), sub)
		if err != nil {
			tutorError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func handleGeneratePlot(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req backend.PlotGenerateRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Description) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "description is required")
			return
		}
		code, err := deps.Tutor.GeneratePlot(r.Context(), req.Description)
		if err != nil {
			tutorError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, code)
	}
}

func handleExecutePlot(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req backend.PlotExecuteRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Code) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "code is required")
			return
		}
		img, err := deps.Tutor.ExecutePlot(r.Context(), req.Code)
		if err != nil {
			tutorError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, img)
	}
}
