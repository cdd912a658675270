// Package server provides the HTTP server for the fiscal transmission
// service.
//
// The server exposes a device-scoped REST API. Each route resolves the
// control unit's registration credential before any work happens, so an
// uninitialized device is rejected up front.
//
// # REST API
//
//   - POST /api/devices/{deviceID}/sales     - Transmit a sales invoice
//   - POST /api/devices/{deviceID}/purchases - Confirm a purchase bill
//   - POST /api/devices/{deviceID}/items     - Register an item
//   - GET  /api/devices/{deviceID}/documents - List documents
//   - GET  /api/devices/{deviceID}/documents/{documentID} - Get one document
//   - GET  /api/devices/{deviceID}/documents/{documentID}/results - Attempt history
//
// # Admin API (requires X-Admin-Key)
//
//   - GET /admin/devices - List registered control units
//
// # Health
//
//   - GET /health - Liveness probe
//   - GET /ready  - Storage readiness probe
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sirosfoundation/go-etims/internal/config"
	"github.com/sirosfoundation/go-etims/internal/credentials"
	"github.com/sirosfoundation/go-etims/internal/storage"
	"github.com/sirosfoundation/go-etims/pkg/device"
	"github.com/sirosfoundation/go-etims/pkg/fiscal"
	"github.com/sirosfoundation/go-etims/pkg/oscu"
	"github.com/sirosfoundation/go-etims/pkg/payload"
)

// Server is the fiscal transmission HTTP server
type Server struct {
	config      *config.Config
	logger      *slog.Logger
	httpSrv     *http.Server
	store       storage.Store
	credentials credentials.Provider
	oscu        *oscu.Client
}

// New creates a new server over the given storage and credential backends.
func New(cfg *config.Config, store storage.Store, creds credentials.Provider, submitter *oscu.Client, logger *slog.Logger) (*Server, error) {
	s := &Server{
		config:      cfg,
		logger:      logger,
		store:       store,
		credentials: creds,
		oscu:        submitter,
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.httpSrv = &http.Server{
		Handler:     mux,
		ReadTimeout: 30 * time.Second,
		// Submission is synchronous and the upstream allows up to two
		// minutes, so the write timeout must outlast it.
		WriteTimeout: 150 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Start begins listening on the specified address
func (s *Server) Start(addr string) error {
	s.httpSrv.Addr = addr
	s.logger.Info("starting server", "addr", addr)
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		return err
	}
	if s.credentials != nil {
		if err := s.credentials.Close(); err != nil {
			return err
		}
	}
	if s.store != nil {
		return s.store.Close(ctx)
	}
	return nil
}

// Handler returns the root handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	basePath := strings.TrimSuffix(s.config.Server.BasePath, "/")
	if basePath == "" {
		basePath = "/api"
	}

	// Health check (no auth required)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)

	// Transmission endpoints (device-scoped)
	mux.HandleFunc("POST "+basePath+"/devices/{deviceID}/sales", s.withDevice(s.handleSubmitSale))
	mux.HandleFunc("POST "+basePath+"/devices/{deviceID}/purchases", s.withDevice(s.handleConfirmPurchase))
	mux.HandleFunc("POST "+basePath+"/devices/{deviceID}/items", s.withDevice(s.handleRegisterItem))

	// Document inspection
	mux.HandleFunc("GET "+basePath+"/devices/{deviceID}/documents", s.withDevice(s.handleListDocuments))
	mux.HandleFunc("GET "+basePath+"/devices/{deviceID}/documents/{documentID}", s.withDevice(s.handleGetDocument))
	mux.HandleFunc("GET "+basePath+"/devices/{deviceID}/documents/{documentID}/results", s.withDevice(s.handleListResults))

	// Device management (admin-only)
	mux.HandleFunc("GET /admin/devices", s.withAdmin(s.handleListDevices))
}

// Middleware

// withDevice resolves the control unit credential for the request
func (s *Server) withDevice(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deviceID := r.PathValue("deviceID")
		if deviceID == "" {
			s.jsonError(w, "device ID required", http.StatusBadRequest)
			return
		}

		cred, err := s.credentials.Lookup(r.Context(), deviceID)
		if errors.Is(err, credentials.ErrCredentialNotFound) {
			s.jsonError(w, "device not registered", http.StatusNotFound)
			return
		}
		if err != nil {
			s.logger.Error("error looking up credential", "device_id", deviceID, "error", err)
			s.jsonError(w, "internal error", http.StatusInternalServerError)
			return
		}

		ctx := context.WithValue(r.Context(), credentialContextKey, cred)
		next(w, r.WithContext(ctx))
	}
}

func (s *Server) withAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Check for admin API key in header
		apiKey := r.Header.Get("X-Admin-Key")
		if apiKey == "" || apiKey != s.config.Server.AdminKey {
			s.jsonError(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

type contextKey string

const credentialContextKey contextKey = "credential"

// CredentialFromContext extracts the device credential from the request context
func CredentialFromContext(ctx context.Context) *device.Credential {
	if v := ctx.Value(credentialContextKey); v != nil {
		return v.(*device.Credential)
	}
	return nil
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, map[string]string{"status": "ok"}, http.StatusOK)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.jsonError(w, "storage not ready", http.StatusServiceUnavailable)
		return
	}
	s.jsonResponse(w, map[string]string{"status": "ready"}, http.StatusOK)
}

// Transmission handlers

func (s *Server) handleSubmitSale(w http.ResponseWriter, r *http.Request) {
	cred := CredentialFromContext(r.Context())

	var doc fiscal.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		s.jsonError(w, "invalid document: "+err.Error(), http.StatusBadRequest)
		return
	}
	doc.Kind = fiscal.KindSale
	if err := s.prepareDocument(r.Context(), &doc); err != nil {
		s.logger.Error("failed to store document", "error", err)
		s.jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	result, err := s.oscu.SubmitSaleInvoice(r.Context(), cred, &doc)
	s.writeAttempt(w, cred, &doc, result, err)
}

func (s *Server) handleConfirmPurchase(w http.ResponseWriter, r *http.Request) {
	cred := CredentialFromContext(r.Context())

	// Structured carries the supplier's original registration details
	// when the bill echoes a document already known to the authority.
	var req struct {
		Document   fiscal.Document          `json:"document"`
		Structured *payload.PurchasePayload `json:"structured,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "invalid request: "+err.Error(), http.StatusBadRequest)
		return
	}
	doc := req.Document
	doc.Kind = fiscal.KindPurchase
	if err := s.prepareDocument(r.Context(), &doc); err != nil {
		s.logger.Error("failed to store document", "error", err)
		s.jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	result, err := s.oscu.ConfirmPurchaseBill(r.Context(), cred, &doc, req.Structured)
	s.writeAttempt(w, cred, &doc, result, err)
}

func (s *Server) handleRegisterItem(w http.ResponseWriter, r *http.Request) {
	cred := CredentialFromContext(r.Context())

	var item fiscal.Item
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		s.jsonError(w, "invalid item: "+err.Error(), http.StatusBadRequest)
		return
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}

	result, err := s.oscu.RegisterItem(r.Context(), cred, &item)
	s.writeAttempt(w, cred, nil, result, err)
}

// prepareDocument assigns an ID when missing and persists the draft so
// every state transition of the attempt lands on a stored document.
func (s *Server) prepareDocument(ctx context.Context, doc *fiscal.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.Status == "" {
		doc.Status = fiscal.StatusDraft
	}
	return s.store.UpdateDocument(ctx, doc)
}

// writeAttempt maps one finished attempt onto an HTTP response.
// Precondition failures surface as 422; everything that reached the
// submission pipeline returns 200 with the result's outcome inside.
func (s *Server) writeAttempt(w http.ResponseWriter, cred *device.Credential, doc *fiscal.Document, result *fiscal.TransmissionResult, err error) {
	if err != nil {
		status := http.StatusUnprocessableEntity
		switch {
		case errors.Is(err, device.ErrNotInitialized):
			status = http.StatusConflict
		case errors.Is(err, oscu.ErrBlockingValidation):
			status = http.StatusUnprocessableEntity
		default:
			s.logger.Error("submission failed", "device_id", cred.ControlUnitID, "error", err)
			status = http.StatusInternalServerError
		}
		s.jsonError(w, err.Error(), status)
		return
	}

	body := map[string]interface{}{"result": result}
	if doc != nil {
		body["document"] = doc
	}
	s.jsonResponse(w, body, http.StatusOK)
}

// Document handlers

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	// Parse query parameters
	filter := &storage.DocumentFilter{}
	if kind := r.URL.Query().Get("kind"); kind != "" {
		filter.Kind = fiscal.DocumentKind(kind)
	}
	if status := r.URL.Query().Get("status"); status != "" {
		filter.Status = fiscal.Status(status)
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}
	if filter.Limit == 0 || filter.Limit > 100 {
		filter.Limit = 50 // Default limit
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	docs, err := s.store.ListDocuments(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list documents", "error", err)
		s.jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.jsonResponse(w, map[string]interface{}{
		"documents": docs,
		"total":     len(docs),
		"limit":     filter.Limit,
		"offset":    filter.Offset,
	}, http.StatusOK)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	documentID := r.PathValue("documentID")

	doc, err := s.store.GetDocument(r.Context(), documentID)
	if errors.Is(err, storage.ErrNotFound) {
		s.jsonError(w, "document not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("failed to get document", "error", err)
		s.jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.jsonResponse(w, doc, http.StatusOK)
}

func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	documentID := r.PathValue("documentID")

	results, err := s.store.ListResults(r.Context(), documentID)
	if err != nil {
		s.logger.Error("failed to list results", "error", err)
		s.jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.jsonResponse(w, map[string]interface{}{
		"results": results,
		"total":   len(results),
	}, http.StatusOK)
}

// Admin handlers

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	ids, err := s.credentials.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list devices", "error", err)
		s.jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.jsonResponse(w, map[string]interface{}{
		"devices": ids,
		"total":   len(ids),
	}, http.StatusOK)
}

// Response helpers

func (s *Server) jsonResponse(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) jsonError(w http.ResponseWriter, message string, status int) {
	s.jsonResponse(w, map[string]string{"error": message}, status)
}
