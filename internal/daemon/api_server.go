package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bookshelf/internal/api"
	"bookshelf/internal/config"
	"bookshelf/internal/jobs"
	"bookshelf/internal/library"
	"bookshelf/internal/logging"
	"bookshelf/internal/metrics"
	"bookshelf/internal/progress"
	"bookshelf/internal/services"
	"bookshelf/internal/taxonomy"
)

const maxRequestBody = 1 << 20

type apiServer struct {
	bind    string
	logger  *slog.Logger
	daemon  *Daemon
	handler http.Handler

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, errors.New("api server requires config and daemon")
	}
	registry, err := metrics.NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("metrics registry: %w", err)
	}

	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		logger: logger,
		daemon: d,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", srv.handleHealth)
	mux.HandleFunc("GET /api/books", srv.handleListBooks)
	mux.HandleFunc("POST /api/books", srv.handleRegisterBook)
	mux.HandleFunc("POST /api/books/update", srv.handleUpdateBook)
	mux.HandleFunc("POST /api/books/reset-failed", srv.handleResetFailed)
	mux.HandleFunc("POST /api/books/export-errors", srv.handleExportErrors)
	mux.HandleFunc("POST /api/scan-content", srv.handleScan)
	mux.HandleFunc("POST /api/scan-content/stop", srv.handleStopScan)
	mux.HandleFunc("GET /api/scan-content/status", srv.handleScanStatus)
	mux.HandleFunc("POST /api/taxonomy/sync", srv.handleTaxonomySync)
	mux.HandleFunc("POST /api/taxonomy/re-eval", srv.handleReEvaluate)
	mux.HandleFunc("POST /api/taxonomy/apply-implications", srv.handleApplyImplications)
	mux.HandleFunc("GET /api/taxonomy/rules", srv.handleGetRules)
	mux.HandleFunc("POST /api/taxonomy/rules", srv.handleSaveRules)
	mux.HandleFunc("GET /api/taxonomy/mapping", srv.handleMapping)
	mux.HandleFunc("GET /api/models", srv.handleModels)
	mux.HandleFunc("POST /api/models/active", srv.handleSelectModel)
	mux.HandleFunc("GET /api/logs", srv.handleLogs)
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	srv.handler = requestIDMiddleware(authMiddleware(cfg.Paths.APIToken, mux))
	srv.server = &http.Server{
		Handler:           srv.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil || s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	health := s.daemon.Health()
	name := "None"
	if health.ModelPath != "" {
		name = filepath.Base(health.ModelPath)
	}
	s.writeJSON(w, http.StatusOK, api.Health{
		Status:        "ok",
		Timestamp:     time.Now().UnixMilli(),
		Backend:       true,
		AI:            health.ModelStatus == "online",
		AIStatus:      health.ModelStatus,
		AIName:        name,
		AIDetail:      health.ModelDetail,
		AIContextSize: health.ContextSize,
		ScanActive:    s.daemon.ScanStatus().Active,
		SyncActive:    s.daemon.SyncActive(),
	})
}

func (s *apiServer) handleListBooks(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := library.Filter{Query: strings.TrimSpace(query.Get("q"))}
	for key, dst := range map[string]*int{"year_start": &filter.YearStart, "year_end": &filter.YearEnd} {
		raw := strings.TrimSpace(query.Get(key))
		if raw == "" {
			continue
		}
		value, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s %q", key, raw))
			return
		}
		*dst = value
	}

	items, total, err := s.daemon.ListBooks(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("X-Library-Size", strconv.Itoa(total))
	s.writeJSON(w, http.StatusOK, api.BookListResponse{Books: api.FromItems(items), Total: total})
}

func (s *apiServer) handleRegisterBook(w http.ResponseWriter, r *http.Request) {
	var req api.RegisterBookRequest
	if !s.decodeBody(w, r, &req, false) {
		return
	}
	item, created, err := s.daemon.RegisterBook(r.Context(), req.Filepath, library.Metadata{
		Title:           req.Title,
		Author:          req.Author,
		PublicationYear: req.Year,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	s.writeJSON(w, status, api.RegisterBookResponse{Book: api.FromItem(*item), Created: created})
}

func (s *apiServer) handleUpdateBook(w http.ResponseWriter, r *http.Request) {
	var req api.UpdateBookRequest
	if !s.decodeBody(w, r, &req, false) {
		return
	}
	if err := s.daemon.UpdateBook(r.Context(), req.ID, req.Field, req.Value); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ActionResponse{Success: true})
}

func (s *apiServer) handleResetFailed(w http.ResponseWriter, r *http.Request) {
	count, err := s.daemon.ResetFailed(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.CountResponse{Success: true, Count: count})
}

func (s *apiServer) handleExportErrors(w http.ResponseWriter, r *http.Request) {
	count, path, err := s.daemon.ExportErrors(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if count == 0 {
		s.writeJSON(w, http.StatusOK, api.ExportErrorsResponse{Success: true, Message: "No errors found."})
		return
	}
	s.writeJSON(w, http.StatusOK, api.ExportErrorsResponse{Success: true, Count: count, Path: path})
}

func (s *apiServer) handleScan(w http.ResponseWriter, r *http.Request) {
	var req api.ScanRequest
	if !s.decodeBody(w, r, &req, true) {
		return
	}
	run, err := s.daemon.StartScan(req.Targets())
	if errors.Is(err, jobs.ErrJobActive) {
		status := api.FromSnapshot(s.daemon.ScanStatus())
		s.writeJSON(w, http.StatusConflict, api.ConflictResponse{Error: "Scan already in progress", Status: &status})
		return
	}
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.streamEvents(w, r, run.Events(r.Context()))
}

func (s *apiServer) handleStopScan(w http.ResponseWriter, _ *http.Request) {
	success, message := s.daemon.StopScan()
	s.writeJSON(w, http.StatusOK, api.ActionResponse{Success: success, Message: message})
}

func (s *apiServer) handleScanStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, api.FromSnapshot(s.daemon.ScanStatus()))
}

func (s *apiServer) handleTaxonomySync(w http.ResponseWriter, r *http.Request) {
	stream, err := s.daemon.StartTaxonomySync()
	if errors.Is(err, taxonomy.ErrSyncActive) {
		s.writeError(w, http.StatusConflict, "Taxonomy sync already in progress")
		return
	}
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.streamEvents(w, r, stream.Events(r.Context()))
}

func (s *apiServer) handleReEvaluate(w http.ResponseWriter, r *http.Request) {
	var req api.ReEvalRequest
	if !s.decodeBody(w, r, &req, true) {
		return
	}
	if strings.TrimSpace(req.Tag) == "" {
		s.writeError(w, http.StatusBadRequest, "Tag required")
		return
	}
	count, err := s.daemon.ReEvaluateTag(r.Context(), req.Tag)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.CountResponse{Success: true, Count: count})
}

func (s *apiServer) handleApplyImplications(w http.ResponseWriter, r *http.Request) {
	changes, applied, found, err := s.daemon.ApplyImplications(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	resp := api.ImplicationsResponse{Success: true, Changes: changes, Applied: applied}
	if !found {
		resp.Message = "No rules file found."
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleGetRules(w http.ResponseWriter, r *http.Request) {
	content, err := s.daemon.Rules()
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.RulesDocument{Success: true, Content: content})
}

func (s *apiServer) handleSaveRules(w http.ResponseWriter, r *http.Request) {
	var req api.RulesDocument
	if !s.decodeBody(w, r, &req, false) {
		return
	}
	if err := s.daemon.SaveRules(req.Content); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ActionResponse{Success: true})
}

func (s *apiServer) handleMapping(w http.ResponseWriter, r *http.Request) {
	mapping, err := s.daemon.Mapping()
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if mapping == nil {
		mapping = taxonomy.Mapping{}
	}
	s.writeJSON(w, http.StatusOK, api.MappingResponse{Mapping: mapping})
}

func (s *apiServer) handleModels(w http.ResponseWriter, r *http.Request) {
	models, active, err := s.daemon.Models()
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ModelListResponse{Models: api.FromModels(models), Active: active})
}

func (s *apiServer) handleSelectModel(w http.ResponseWriter, r *http.Request) {
	var req api.SelectModelRequest
	if !s.decodeBody(w, r, &req, false) {
		return
	}
	selected, err := s.daemon.SelectModel(req.Path)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ActionResponse{Success: true, Message: selected})
}

func (s *apiServer) handleLogs(w http.ResponseWriter, r *http.Request) {
	hub := s.daemon.LogStream()
	if hub == nil {
		s.writeJSON(w, http.StatusOK, api.LogStreamResponse{Events: []api.LogEvent{}, Next: 0})
		return
	}

	query := r.URL.Query()
	since, _ := strconv.ParseUint(query.Get("since"), 10, 64)
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 {
		limit = 200
	}
	follow := query.Get("follow") == "1" || strings.EqualFold(query.Get("follow"), "true")
	tail := query.Get("tail") == "1" || strings.EqualFold(query.Get("tail"), "true")

	var filterItem int64
	if value := strings.TrimSpace(query.Get("item")); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			filterItem = parsed
		}
	}
	component := strings.TrimSpace(query.Get("component"))

	var (
		raw  []logging.LogEvent
		next uint64
	)
	if tail && since == 0 && !follow {
		raw, next = hub.Tail(limit)
	} else {
		ctx := r.Context()
		if follow {
			// Long-poll inside the server write timeout.
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, 25*time.Second)
			defer cancel()
		}
		var err error
		raw, next, err = hub.Fetch(ctx, since, limit, follow)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	events := api.FromLogEvents(raw)
	filtered := make([]api.LogEvent, 0, len(events))
	for _, evt := range events {
		if filterItem != 0 && evt.ItemID != filterItem {
			continue
		}
		if component != "" && !strings.EqualFold(component, evt.Component) {
			continue
		}
		filtered = append(filtered, evt)
	}
	s.writeJSON(w, http.StatusOK, api.LogStreamResponse{Events: filtered, Next: next})
}

// streamEvents relays job events as server-sent events until the job's
// stream closes or the client goes away. The job itself is unaffected by the
// client disconnecting.
func (s *apiServer) streamEvents(w http.ResponseWriter, r *http.Request, events <-chan progress.Event) {
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_ = rc.Flush()

	for evt := range events {
		if err := api.WriteEvent(w, evt); err != nil {
			s.log().Debug("event stream closed by client",
				logging.String(logging.FieldCorrelationID, requestID(r)),
				logging.Error(err),
			)
			return
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

// decodeBody reads a JSON request body into target. An empty body is
// accepted when optional is set.
func (s *apiServer) decodeBody(w http.ResponseWriter, r *http.Request, target any, optional bool) bool {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := decoder.Decode(target); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return true
		}
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func (s *apiServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := services.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.log().Error("api request failed",
			logging.String("path", r.URL.Path),
			logging.String(logging.FieldCorrelationID, requestID(r)),
			logging.Error(err),
		)
	}
	s.writeError(w, status, err.Error())
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}
