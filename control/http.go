package control

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jmrcs97/FlowCapture-sub000/idgen"
)

type captureRequest struct {
	Label string `json:"label"`
	Mode  string `json:"mode,omitempty"`
}

// NewHTTPHandler exposes the Controller over HTTP.
//
//	POST /recording/start
//	POST /recording/stop
//	POST /checkpoint        {"label": "..."}
//	POST /capture           {"label": "...", "mode": "viewport|full|dynamic"}
//	GET  /status
//	GET  /trace?compiler=interpret|compile
//	GET  /health
func NewHTTPHandler(c *Controller) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware(c.cfg.Logger, idgen.Prefixed("req_", idgen.UUIDv7()))...)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/recording", func(r chi.Router) {
		r.Post("/start", func(w http.ResponseWriter, r *http.Request) {
			st, err := c.StartRecording(withTransport(r.Context(), "http"))
			reply(w, st, err)
		})
		r.Post("/stop", func(w http.ResponseWriter, r *http.Request) {
			st, err := c.StopRecording(withTransport(r.Context(), "http"))
			reply(w, st, err)
		})
	})

	r.Post("/checkpoint", func(w http.ResponseWriter, r *http.Request) {
		var req captureRequest
		if !decodeBody(w, r, &req) {
			return
		}
		st, err := c.CaptureCheckpoint(withTransport(r.Context(), "http"), req.Label)
		reply(w, st, err)
	})

	r.Post("/capture", func(w http.ResponseWriter, r *http.Request) {
		var req captureRequest
		if !decodeBody(w, r, &req) {
			return
		}
		st, err := c.MarkCapture(withTransport(r.Context(), "http"), req.Label, req.Mode)
		reply(w, st, err)
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		st, err := c.Status(r.Context())
		reply(w, st, err)
	})

	r.Get("/trace", func(w http.ResponseWriter, r *http.Request) {
		res, err := c.GetTrace(withTransport(r.Context(), "http"), r.URL.Query().Get("compiler"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	})

	return r
}

// decodeBody decodes an optional JSON body. An empty body leaves v zero.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return false
	}
	return true
}

func reply(w http.ResponseWriter, st Status, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrNotRecording), errors.Is(err, ErrAlreadyRecording):
		code = http.StatusConflict
	case errors.Is(err, ErrUnknownCompiler):
		code = http.StatusBadRequest
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
