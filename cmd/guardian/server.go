package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/deadlineshield/guardian/guardian"
)

// newRouter exposes the operational surface: health, stats, the external
// cycle trigger, and the management API the dashboard layer calls.
func newRouter(svc *guardian.Service, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/stats", func(w http.ResponseWriter, req *http.Request) {
		stats, err := svc.Stats(req.Context())
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	})

	// The scheduling trigger: an external cadence service POSTs here.
	r.Post("/cycle", func(w http.ResponseWriter, req *http.Request) {
		stats, err := svc.RunCycle(req.Context())
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/tenants", func(w http.ResponseWriter, req *http.Request) {
			var t guardian.Tenant
			if err := json.NewDecoder(req.Body).Decode(&t); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
				return
			}
			if err := svc.UpsertTenant(req.Context(), &t); err != nil {
				writeError(w, logger, err)
				return
			}
			writeJSON(w, http.StatusOK, t)
		})

		r.Post("/sources", func(w http.ResponseWriter, req *http.Request) {
			var in guardian.AddSourceInput
			if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
				return
			}
			src, err := svc.AddSource(req.Context(), in)
			if err != nil {
				writeError(w, logger, err)
				return
			}
			writeJSON(w, http.StatusCreated, src)
		})

		r.Get("/sources", func(w http.ResponseWriter, req *http.Request) {
			sources, err := svc.ListSources(req.Context(), req.URL.Query().Get("tenant"))
			if err != nil {
				writeError(w, logger, err)
				return
			}
			writeJSON(w, http.StatusOK, sources)
		})

		r.Get("/sources/{id}", func(w http.ResponseWriter, req *http.Request) {
			src, err := svc.GetSource(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				writeError(w, logger, err)
				return
			}
			writeJSON(w, http.StatusOK, src)
		})

		r.Delete("/sources/{id}", func(w http.ResponseWriter, req *http.Request) {
			if err := svc.DeleteSource(req.Context(), chi.URLParam(req, "id"), actor(req)); err != nil {
				writeError(w, logger, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})

		r.Post("/sources/{id}/pause", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Reason string `json:"reason"`
			}
			json.NewDecoder(req.Body).Decode(&body)
			if err := svc.PauseSource(req.Context(), chi.URLParam(req, "id"), actor(req), body.Reason); err != nil {
				writeError(w, logger, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})

		r.Post("/sources/{id}/resume", func(w http.ResponseWriter, req *http.Request) {
			if err := svc.ResumeSource(req.Context(), chi.URLParam(req, "id"), actor(req)); err != nil {
				writeError(w, logger, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})

		r.Post("/sources/{id}/verify", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Reason string `json:"reason"`
			}
			json.NewDecoder(req.Body).Decode(&body)
			if err := svc.VerifySource(req.Context(), chi.URLParam(req, "id"), actor(req), body.Reason); err != nil {
				writeError(w, logger, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})

		r.Get("/sources/{id}/changes", func(w http.ResponseWriter, req *http.Request) {
			changes, err := svc.ListSourceChanges(req.Context(), chi.URLParam(req, "id"), limitParam(req))
			if err != nil {
				writeError(w, logger, err)
				return
			}
			writeJSON(w, http.StatusOK, changes)
		})

		r.Get("/sources/{id}/fetchlog", func(w http.ResponseWriter, req *http.Request) {
			entries, err := svc.RecentFetchLog(req.Context(), chi.URLParam(req, "id"), limitParam(req))
			if err != nil {
				writeError(w, logger, err)
				return
			}
			writeJSON(w, http.StatusOK, entries)
		})

		r.Get("/changes", func(w http.ResponseWriter, req *http.Request) {
			changes, err := svc.ListChanges(req.Context(), req.URL.Query().Get("tenant"), limitParam(req))
			if err != nil {
				writeError(w, logger, err)
				return
			}
			writeJSON(w, http.StatusOK, changes)
		})

		r.Post("/changes/{id}/ack", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Status guardian.AckStatus `json:"status"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
				return
			}
			applied, err := svc.AcknowledgeChange(req.Context(), chi.URLParam(req, "id"), body.Status, actor(req))
			if err != nil {
				writeError(w, logger, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]bool{"applied": applied})
		})

		r.Get("/audit", func(w http.ResponseWriter, req *http.Request) {
			entries, err := svc.AuditTrail(req.Context(), req.URL.Query().Get("tenant"), limitParam(req))
			if err != nil {
				writeError(w, logger, err)
				return
			}
			writeJSON(w, http.StatusOK, entries)
		})
	})

	return r
}

// actor identifies who performed a management action, for the audit trail.
func actor(req *http.Request) string {
	if v := req.Header.Get("X-Actor"); v != "" {
		return v
	}
	return "api"
}

func limitParam(req *http.Request) int {
	if v := req.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return 50
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, guardian.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, guardian.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, guardian.ErrDuplicateSource):
		status = http.StatusConflict
	case errors.Is(err, guardian.ErrQuotaExceeded):
		status = http.StatusForbidden
	}
	if status == http.StatusInternalServerError {
		logger.Error("request failed", slog.Any("error", err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
