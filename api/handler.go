package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/facturaIA/tax-extraction-service/internal/auth"
	"github.com/facturaIA/tax-extraction-service/internal/db"
	"github.com/facturaIA/tax-extraction-service/internal/docparse"
	"github.com/facturaIA/tax-extraction-service/internal/logging"
	"github.com/facturaIA/tax-extraction-service/internal/models"
	"github.com/facturaIA/tax-extraction-service/internal/report"
)

const (
	MaxUploadSize = 10 * 1024 * 1024 // 10MB
	MaxTextSize   = 2 * 1024 * 1024
	Version       = "1.0.0"

	defaultTenant = "default"
)

// Extractor turns document text into a detailed extraction result.
type Extractor interface {
	ExtractDetailed(ctx context.Context, documentText, docContext string) models.ExtractionResult
}

// Providers reports the live provider order.
type Providers interface {
	OrderedCandidates() []string
	Preferred() string
}

// DocumentParser converts uploaded bytes into text.
type DocumentParser interface {
	Parse(filename string, data []byte) (string, error)
}

// DocumentStore persists documents and reports.
type DocumentStore interface {
	Ping(ctx context.Context) error
	SaveDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, tenant string, id uuid.UUID) (*models.Document, error)
	ListDocuments(ctx context.Context, tenant string, limit, offset int) ([]models.Document, error)
	DeleteDocument(ctx context.Context, tenant string, id uuid.UUID) ([]string, error)
	SaveReport(ctx context.Context, r *models.Report) error
	GetReport(ctx context.Context, tenant string, id uuid.UUID) (*models.Report, error)
}

// ObjectStore keeps original documents and rendered reports.
type ObjectStore interface {
	UploadDocument(ctx context.Context, tenant, name string, r io.Reader, size int64, contentType string) (string, error)
	UploadReport(ctx context.Context, tenant, name string, body []byte) (string, error)
	PresignedURL(ctx context.Context, objectPath string) (string, error)
	Delete(ctx context.Context, objectPath string) error
}

// ReportGenerator writes a narrative report for a record.
type ReportGenerator interface {
	Generate(ctx context.Context, record models.ExtractedTaxRecord) report.Report
}

// Deps are the handler's collaborators. Documents and Objects may be nil when
// persistence or storage is not configured.
type Deps struct {
	Extractor Extractor
	Providers Providers
	Parser    DocumentParser
	Reports   ReportGenerator
	Documents DocumentStore
	Objects   ObjectStore
}

// Handler serves the extraction API.
type Handler struct {
	deps    Deps
	log     logging.Logger
	started time.Time
}

// NewHandler creates a new API handler
func NewHandler(deps Deps, log logging.Logger) *Handler {
	if log == nil {
		log = logging.NewNopLogger()
	}
	if deps.Parser == nil {
		deps.Parser = docparse.Parser{}
	}
	return &Handler{deps: deps, log: log.Named("api"), started: time.Now()}
}

// SetupRoutes configures the HTTP routes
func (h *Handler) SetupRoutes() *mux.Router {
	router := mux.NewRouter()
	router.Use(h.requestLogger)

	router.HandleFunc("/health", h.Health).Methods("GET")
	router.HandleFunc("/api/providers", h.ListProviders).Methods("GET")
	router.HandleFunc("/api/extract", h.ExtractText).Methods("POST")

	router.HandleFunc("/api/documents", h.UploadDocument).Methods("POST")
	router.HandleFunc("/api/documents", h.ListDocuments).Methods("GET")
	router.HandleFunc("/api/documents/{id}", h.GetDocument).Methods("GET")
	router.HandleFunc("/api/documents/{id}", h.DeleteDocument).Methods("DELETE")
	router.HandleFunc("/api/documents/{id}/report", h.GenerateReport).Methods("POST")
	router.HandleFunc("/api/reports/{id}", h.GetReport).Methods("GET")

	return router
}

// HealthResponse represents the health check response structure
type HealthResponse struct {
	Status    string        `json:"status"`
	Version   string        `json:"version"`
	Timestamp string        `json:"timestamp"`
	Uptime    string        `json:"uptime"`
	Memory    MemoryStats   `json:"memory"`
	Providers []string      `json:"providers"`
	Preferred string        `json:"preferredProvider,omitempty"`
	Database  ServiceStatus `json:"database"`
	Storage   ServiceStatus `json:"storage"`
}

// MemoryStats represents memory usage statistics
type MemoryStats struct {
	Allocated string `json:"allocated"`
	System    string `json:"system"`
}

// ServiceStatus represents the status of a service dependency
type ServiceStatus struct {
	Available bool   `json:"available"`
	Error     string `json:"error,omitempty"`
}

// Health reports liveness. With no live provider the service still answers
// (every extraction yields the default record) but is marked degraded.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	providers := h.providers()
	resp := HealthResponse{
		Status:    "healthy",
		Version:   Version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(h.started).Round(time.Second).String(),
		Memory: MemoryStats{
			Allocated: fmt.Sprintf("%.2f MB", float64(m.Alloc)/1024/1024),
			System:    fmt.Sprintf("%.2f MB", float64(m.Sys)/1024/1024),
		},
		Providers: providers,
		Database:  h.checkDatabase(r.Context()),
		Storage:   ServiceStatus{Available: h.deps.Objects != nil},
	}
	if h.deps.Providers != nil {
		resp.Preferred = h.deps.Providers.Preferred()
	}
	if !resp.Storage.Available {
		resp.Storage.Error = "storage not configured"
	}
	if len(providers) == 0 {
		resp.Status = "degraded"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) checkDatabase(ctx context.Context) ServiceStatus {
	if h.deps.Documents == nil {
		return ServiceStatus{Error: "database not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := h.deps.Documents.Ping(ctx); err != nil {
		return ServiceStatus{Error: err.Error()}
	}
	return ServiceStatus{Available: true}
}

func (h *Handler) providers() []string {
	if h.deps.Providers == nil {
		return []string{}
	}
	return h.deps.Providers.OrderedCandidates()
}

// ListProviders returns the live providers in the order extraction tries them.
func (h *Handler) ListProviders(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{"success": true, "providers": h.providers()}
	if h.deps.Providers != nil {
		resp["preferred"] = h.deps.Providers.Preferred()
	}
	writeJSON(w, http.StatusOK, resp)
}

// ExtractText runs extraction over raw text without storing anything.
func (h *Handler) ExtractText(w http.ResponseWriter, r *http.Request) {
	var req models.ExtractRequest
	r.Body = http.MaxBytesReader(w, r.Body, MaxTextSize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		h.sendError(w, http.StatusBadRequest, "text is required")
		return
	}

	start := time.Now()
	result := h.deps.Extractor.ExtractDetailed(r.Context(), req.Text, req.Context)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":         true,
		"result":          result,
		"extractDuration": time.Since(start).Seconds(),
	})
}

// UploadDocument parses an uploaded file, extracts its figures, stores the
// original and persists the result. Storage and persistence failures are
// logged; the extraction is still returned.
func (h *Handler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	tenant := tenantFrom(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
		h.sendError(w, http.StatusBadRequest, "file too large or invalid form data")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "no file provided (use the 'file' field)")
		return
	}
	defer file.Close()

	if !docparse.Supported(header.Filename) {
		h.sendError(w, http.StatusUnsupportedMediaType,
			fmt.Sprintf("unsupported file type; accepted: %s", strings.Join(docparse.SupportedExtensions, ", ")))
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, "failed to read file")
		return
	}

	parseStart := time.Now()
	text, err := h.deps.Parser.Parse(header.Filename, data)
	parseDuration := time.Since(parseStart).Seconds()
	if err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, docparse.ErrUnsupportedFormat) {
			status = http.StatusUnsupportedMediaType
		}
		h.sendError(w, status, err.Error())
		return
	}

	docContext := r.FormValue("context")
	extractStart := time.Now()
	result := h.deps.Extractor.ExtractDetailed(ctx, text, docContext)
	extractDuration := time.Since(extractStart).Seconds()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	doc := &models.Document{
		ID:          uuid.New(),
		Tenant:      tenant,
		Filename:    filepath.Base(header.Filename),
		ContentType: contentType,
		Context:     docContext,
		Result:      result,
		CreatedAt:   time.Now().UTC(),
	}

	if h.deps.Objects != nil {
		name := fmt.Sprintf("%s_%s%s",
			time.Now().Format("20060102_150405"),
			doc.ID.String()[:8],
			strings.ToLower(filepath.Ext(header.Filename)),
		)
		path, err := h.deps.Objects.UploadDocument(ctx, tenant, name, bytes.NewReader(data), int64(len(data)), contentType)
		if err != nil {
			h.log.Warn("document.upload.failed", logging.String("document_id", doc.ID.String()), logging.Err(err))
		} else {
			doc.ObjectPath = path
		}
	}

	saved := false
	if h.deps.Documents != nil {
		if err := h.deps.Documents.SaveDocument(ctx, doc); err != nil {
			h.log.Warn("document.save.failed", logging.String("document_id", doc.ID.String()), logging.Err(err))
			h.discardObject(ctx, doc)
		} else {
			saved = true
		}
	}

	h.log.Info("document.processed",
		logging.String("tenant", tenant),
		logging.String("document_id", doc.ID.String()),
		logging.String("outcome", string(result.Outcome)),
		logging.String("provider", result.Provider),
		logging.Bool("saved", saved),
	)

	writeJSON(w, http.StatusOK, struct {
		models.ProcessResponse
		Saved bool `json:"savedToDb"`
	}{
		ProcessResponse: models.ProcessResponse{
			Success:         true,
			Document:        doc,
			ParseDuration:   parseDuration,
			ExtractDuration: extractDuration,
			TotalDuration:   time.Since(start).Seconds(),
		},
		Saved: saved,
	})
}

// discardObject removes an upload whose metadata row was never written.
func (h *Handler) discardObject(ctx context.Context, doc *models.Document) {
	if doc.ObjectPath == "" || h.deps.Objects == nil {
		return
	}
	if err := h.deps.Objects.Delete(ctx, doc.ObjectPath); err != nil {
		h.log.Warn("document.object.orphaned",
			logging.String("document_id", doc.ID.String()),
			logging.String("object_path", doc.ObjectPath),
			logging.Err(err))
		return
	}
	doc.ObjectPath = ""
}

// ListDocuments returns the tenant's documents, newest first.
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	if !h.requireDocuments(w) {
		return
	}
	ctx := r.Context()
	tenant := tenantFrom(ctx)

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	docs, err := h.deps.Documents.ListDocuments(ctx, tenant, limit, offset)
	if err != nil {
		h.log.Error("document.list.failed", logging.String("tenant", tenant), logging.Err(err))
		h.sendError(w, http.StatusInternalServerError, "failed to list documents")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"documents": docs,
		"count":     len(docs),
		"tenant":    tenant,
	})
}

// GetDocument returns a single document with a download link when stored.
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	if !h.requireDocuments(w) {
		return
	}
	ctx := r.Context()
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	doc, err := h.deps.Documents.GetDocument(ctx, tenantFrom(ctx), id)
	if err != nil {
		h.storeError(w, "document", err)
		return
	}

	resp := map[string]interface{}{"success": true, "document": doc}
	if doc.ObjectPath != "" && h.deps.Objects != nil {
		if u, err := h.deps.Objects.PresignedURL(ctx, doc.ObjectPath); err == nil {
			resp["downloadUrl"] = u
		} else {
			h.log.Warn("document.presign.failed", logging.String("document_id", id.String()), logging.Err(err))
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// DeleteDocument removes a document, its reports and their stored objects.
func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	if !h.requireDocuments(w) {
		return
	}
	ctx := r.Context()
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	paths, err := h.deps.Documents.DeleteDocument(ctx, tenantFrom(ctx), id)
	if err != nil {
		h.storeError(w, "document", err)
		return
	}
	if h.deps.Objects != nil {
		for _, p := range paths {
			if err := h.deps.Objects.Delete(ctx, p); err != nil {
				h.log.Warn("object.delete.failed", logging.String("path", p), logging.Err(err))
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "id": id})
}

// GenerateReport writes a narrative report for a stored document.
func (h *Handler) GenerateReport(w http.ResponseWriter, r *http.Request) {
	if !h.requireDocuments(w) {
		return
	}
	ctx := r.Context()
	tenant := tenantFrom(ctx)
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	doc, err := h.deps.Documents.GetDocument(ctx, tenant, id)
	if err != nil {
		h.storeError(w, "document", err)
		return
	}

	generated := h.deps.Reports.Generate(ctx, doc.Result.Record)
	rep := &models.Report{
		ID:         uuid.New(),
		DocumentID: doc.ID,
		Tenant:     tenant,
		Provider:   generated.Provider,
		Content:    generated.Content,
	}
	if h.deps.Objects != nil {
		path, err := h.deps.Objects.UploadReport(ctx, tenant, rep.ID.String()+".md", []byte(rep.Content))
		if err != nil {
			h.log.Warn("report.upload.failed", logging.String("report_id", rep.ID.String()), logging.Err(err))
		} else {
			rep.ObjectPath = path
		}
	}
	if err := h.deps.Documents.SaveReport(ctx, rep); err != nil {
		h.log.Error("report.save.failed", logging.String("report_id", rep.ID.String()), logging.Err(err))
		h.sendError(w, http.StatusInternalServerError, "failed to save report")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"success": true, "report": rep})
}

// GetReport returns a stored report.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	if !h.requireDocuments(w) {
		return
	}
	ctx := r.Context()
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	rep, err := h.deps.Documents.GetReport(ctx, tenantFrom(ctx), id)
	if err != nil {
		h.storeError(w, "report", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "report": rep})
}

func (h *Handler) requireDocuments(w http.ResponseWriter) bool {
	if h.deps.Documents == nil {
		h.sendError(w, http.StatusServiceUnavailable, "database not available")
		return false
	}
	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) storeError(w http.ResponseWriter, what string, err error) {
	if errors.Is(err, db.ErrNotFound) {
		h.sendError(w, http.StatusNotFound, what+" not found")
		return
	}
	h.log.Error(what+".lookup.failed", logging.Err(err))
	h.sendError(w, http.StatusInternalServerError, "failed to load "+what)
}

// tenantFrom returns the caller's tenant, or the default tenant when
// authentication is disabled.
func tenantFrom(ctx context.Context) string {
	if c, err := auth.ClaimsFromContext(ctx); err == nil {
		return c.Tenant
	}
	return defaultTenant
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		h.log.Debug("http.request",
			logging.String("request_id", reqID),
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", sw.status),
			logging.Duration("duration", time.Since(start)),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (s *statusWriter) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// sendError sends an error response
func (h *Handler) sendError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, models.ProcessResponse{
		Success: false,
		Error:   message,
	})
}
