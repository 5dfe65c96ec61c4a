package httpadapter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kirillkom/care-assistant/internal/config"
	"github.com/kirillkom/care-assistant/internal/core/domain"
	"github.com/kirillkom/care-assistant/internal/core/ports"
	"github.com/kirillkom/care-assistant/internal/infrastructure/export/xlsx"
	"github.com/kirillkom/care-assistant/internal/observability/metrics"
)

const maxBodyBytes = 1 << 20

// Services are the inbound ports served over HTTP. Scheduler may be nil
// when the API process does not run scheduler passes itself.
type Services struct {
	Conversations ports.MessageProcessor
	Calls         ports.CallIntake
	Scheduler     ports.SchedulerRunner
	// Trigger serves async scheduler runs; nil disables them.
	Trigger       ports.SchedulerTrigger
	CommandCentre ports.CommandCentreReader
}

type Router struct {
	cfg      config.Config
	services Services
	metrics  *metrics.HTTPServerMetrics
	logger   *slog.Logger
}

func NewRouter(cfg config.Config, services Services, httpMetrics *metrics.HTTPServerMetrics, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		cfg:      cfg,
		services: services,
		metrics:  httpMetrics,
		logger:   logger,
	}
}

// Handler assembles the API. Health and metrics bypass traffic control and
// request validation.
func (rt *Router) Handler() (http.Handler, error) {
	api := http.NewServeMux()
	api.HandleFunc("POST /v1/conversations/messages", rt.processMessage)
	api.HandleFunc("POST /v1/conversations/abandon", rt.abandonConversation)
	api.HandleFunc("POST /v1/calls", rt.recordCall)
	api.HandleFunc("POST /v1/calls/{call_id}/resolve", rt.resolveCall)
	api.HandleFunc("POST /v1/scheduler/run", rt.runScheduler)
	api.HandleFunc("GET /v1/command-centre", rt.commandCentre)
	api.HandleFunc("GET /v1/command-centre/export", rt.exportCommandCentre)

	validator, err := newRequestValidator()
	if err != nil {
		return nil, err
	}

	var guarded http.Handler = validator.middleware(api)
	guarded = backpressureMiddleware(guarded, rt.cfg.APIMaxInFlight, rt.cfg.APIQueueTimeout, rt.reject)
	guarded = rateLimitMiddleware(guarded, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, rt.reject)

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", rt.healthz)
	if rt.metrics != nil {
		root.Handle("GET /metrics", rt.metrics.Handler())
		guarded = rt.metrics.Middleware(guarded)
	}
	root.Handle("/", guarded)

	return requestIDMiddleware(accessLogMiddleware(rt.logger, root)), nil
}

func (rt *Router) reject(reason string) {
	if rt.metrics != nil {
		rt.metrics.RecordRejected(reason)
	}
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type messageRequest struct {
	Message string                    `json:"message"`
	State   *domain.ConversationState `json:"state,omitempty"`
}

func (rt *Router) processMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := rt.services.Conversations.ProcessMessage(r.Context(), req.Message, req.State)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type abandonRequest struct {
	State domain.ConversationState `json:"state"`
}

func (rt *Router) abandonConversation(w http.ResponseWriter, r *http.Request) {
	var req abandonRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	created, err := rt.services.Conversations.Abandon(r.Context(), req.State)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversation_id": req.State.ConversationID,
		"tasks_created":   created,
	})
}

func (rt *Router) recordCall(w http.ResponseWriter, r *http.Request) {
	var req domain.CallInput
	if !decodeJSON(w, r, &req) {
		return
	}
	call, err := rt.services.Calls.RecordCall(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, call)
}

func (rt *Router) resolveCall(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("call_id"))
	if err := rt.services.Calls.ResolveCall(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(domain.CallStatusResolved)})
}

func (rt *Router) runScheduler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("async") == "true" {
		rt.requestSchedulerRun(w, r)
		return
	}
	if rt.services.Scheduler == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "scheduler is not available in this process"})
		return
	}
	result, err := rt.services.Scheduler.RunFullScheduler(r.Context())
	if err != nil {
		payload := map[string]any{"error": err.Error()}
		if result != nil {
			payload["result"] = result
		}
		writeJSON(w, mapErrorToHTTPStatus(err), payload)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) requestSchedulerRun(w http.ResponseWriter, r *http.Request) {
	if rt.services.Trigger == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "async scheduler runs are disabled"})
		return
	}
	requestedBy := "api:" + requestIDFromContext(r.Context())
	if err := rt.services.Trigger.RequestRun(r.Context(), requestedBy); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "requested", "requested_by": requestedBy})
}

func (rt *Router) commandCentre(w http.ResponseWriter, r *http.Request) {
	view, err := rt.services.CommandCentre.Build(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (rt *Router) exportCommandCentre(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if format == "" {
		format = "xlsx"
	}
	if format != "xlsx" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("unsupported export format %q", format)})
		return
	}

	view, err := rt.services.CommandCentre.Build(r.Context())
	if err != nil {
		rt.recordExport(format, err)
		writeError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := xlsx.WriteCommandCentre(&buf, view); err != nil {
		rt.recordExport(format, err)
		rt.logger.Error("command_centre_export_failed", "request_id", requestIDFromContext(r.Context()), "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "export failed"})
		return
	}
	rt.recordExport(format, nil)

	filename := fmt.Sprintf("command-centre-%s.xlsx", view.GeneratedAt.UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", xlsx.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Last-Modified", view.GeneratedAt.UTC().Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (rt *Router) recordExport(format string, err error) {
	if rt.metrics != nil {
		rt.metrics.RecordExport(format, err)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
