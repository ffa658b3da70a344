package app

import (
	"bufio"
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nercollab/internal/annotation"
	"nercollab/internal/export"
	"nercollab/internal/metrics"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	metrics    http.Handler
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin, metrics: metrics.Handler()}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/metrics" {
		s.metrics.ServeHTTP(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		query := r.URL.Query()
		limit, _ := strconv.Atoi(query.Get("limit"))
		offset, _ := strconv.Atoi(query.Get("offset"))
		writeJSON(w, http.StatusOK, s.service.Search(r.Context(), query.Get("q"), query.Get("workspace"), query.Get("type"), limit, offset))
		return
	}

	parts := splitPath(r.URL.Path)

	if len(parts) == 2 && parts[0] == "api" && parts[1] == "workspaces" {
		s.handleWorkspaces(w, r)
		return
	}

	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "workspaces" {
		s.handleWorkspace(w, r, parts[2], parts[3:])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleWorkspaces(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		items, err := s.service.ListWorkspaces(r.Context())
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"workspaces": items})
		return
	}

	if r.Method == http.MethodPost {
		var body struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.CreateWorkspace(r.Context(), body.Name, body.Description)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, payload)
		return
	}

	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

func (s *HTTPServer) handleWorkspace(w http.ResponseWriter, r *http.Request, workspaceID string, rest []string) {
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.GetWorkspace(r.Context(), workspaceID)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, payload)
		case http.MethodDelete:
			if err := s.service.DeleteWorkspace(r.Context(), workspaceID); err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	switch {
	case len(rest) == 1 && rest[0] == "join" && r.Method == http.MethodPost:
		var body struct {
			MemberName string `json:"member_name"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.JoinWorkspace(r.Context(), workspaceID, body.MemberName)
		respond(w, http.StatusOK, payload, err)
		return

	case len(rest) == 1 && rest[0] == "labels" && r.Method == http.MethodGet:
		payload, err := s.service.ListLabels(r.Context(), workspaceID)
		respond(w, http.StatusOK, payload, err)
		return

	case len(rest) == 1 && rest[0] == "statistics" && r.Method == http.MethodGet:
		payload, err := s.service.Statistics(r.Context(), workspaceID)
		respond(w, http.StatusOK, payload, err)
		return

	case len(rest) == 1 && rest[0] == "export" && r.Method == http.MethodGet:
		s.handleExport(w, r, workspaceID)
		return

	case len(rest) == 1 && rest[0] == "events" && r.Method == http.MethodGet:
		if err := s.service.ServeEvents(w, r, workspaceID); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
		}
		return

	case rest[0] == "tasks":
		s.handleTasks(w, r, workspaceID, rest[1:])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleTasks(w http.ResponseWriter, r *http.Request, workspaceID string, rest []string) {
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.ListTasks(r.Context(), workspaceID)
			respond(w, http.StatusOK, payload, err)
		case http.MethodPost:
			var body struct {
				Text     string         `json:"text"`
				Metadata map[string]any `json:"metadata"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, created, err := s.service.AddTask(r.Context(), workspaceID, body.Text, body.Metadata)
			status := http.StatusOK
			if created {
				status = http.StatusCreated
			}
			respond(w, status, payload, err)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	taskID := rest[0]
	query := r.URL.Query()

	switch {
	case len(rest) == 1 && r.Method == http.MethodGet:
		payload, err := s.service.GetTask(r.Context(), workspaceID, taskID)
		respond(w, http.StatusOK, payload, err)
		return

	case len(rest) == 2 && rest[1] == "status" && r.Method == http.MethodPut:
		var body struct {
			Status string `json:"status"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.UpdateTaskStatus(r.Context(), workspaceID, taskID, body.Status)
		respond(w, http.StatusOK, payload, err)
		return

	case len(rest) == 2 && rest[1] == "annotate" && r.Method == http.MethodPost:
		var body struct {
			MemberName  string      `json:"member_name"`
			Annotations []SpanInput `json:"annotations"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.SubmitAnnotations(r.Context(), workspaceID, taskID, body.MemberName, body.Annotations)
		respond(w, http.StatusOK, payload, err)
		return

	case len(rest) == 2 && rest[1] == "merge" && r.Method == http.MethodGet:
		payload, err := s.service.MergeTask(r.Context(), workspaceID, taskID, query.Get("strategy"))
		respond(w, http.StatusOK, payload, err)
		return

	case len(rest) == 2 && rest[1] == "history" && r.Method == http.MethodGet:
		limit, _ := strconv.Atoi(query.Get("limit"))
		payload, err := s.service.TaskHistory(r.Context(), workspaceID, taskID, query.Get("annotator"), limit)
		respond(w, http.StatusOK, payload, err)
		return

	case len(rest) == 3 && rest[1] == "history" && r.Method == http.MethodGet:
		payload, err := s.service.SubmissionAt(r.Context(), workspaceID, taskID, rest[2], query.Get("annotator"))
		respond(w, http.StatusOK, payload, err)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request, workspaceID string) {
	query := r.URL.Query()
	archive, _ := strconv.ParseBool(query.Get("archive"))
	result, err := s.service.ExportWorkspace(r.Context(), workspaceID, query.Get("strategy"), query.Get("format"), archive)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}

	if result.Archived != nil {
		w.Header().Set("X-Archive-Key", result.Archived.Key)
		if result.Archived.URL != "" {
			w.Header().Set("X-Archive-URL", result.Archived.URL)
		}
	}
	w.Header().Set("Content-Disposition", "attachment; filename=\""+result.Filename+"\"")
	w.Header().Set("Content-Type", result.MimeType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func respond(w http.ResponseWriter, status int, payload any, err error) {
	if err != nil {
		code, errCode, message, details := mapError(err)
		writeError(w, code, errCode, message, details)
		return
	}
	writeJSON(w, status, payload)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the websocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Access-Control-Expose-Headers", "Content-Disposition, X-Archive-Key, X-Archive-URL")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, annotation.ErrLedgerNotFound) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, export.ErrUnsupportedFormat) {
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	}
	if errors.Is(err, export.ErrPDFDependencyMissing) {
		return http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "PDF export is not available on this server", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
