package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"veriform/config"
	"veriform/metrics"
	"veriform/models"
	"veriform/registry"
	"veriform/stats"
	"veriform/storage"

	"gorm.io/gorm"
)

// ErrorResponse is the standardized error envelope.
type ErrorResponse struct {
	Status    int         `json:"status"`
	Error     string      `json:"error"`
	Details   interface{} `json:"details,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func sendError(w http.ResponseWriter, status int, err string, details interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Status:    status,
		Error:     err,
		Details:   details,
		Timestamp: time.Now(),
	})
}

func sendJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

type Handlers struct {
	db         *gorm.DB
	config     *config.Config
	store      *storage.Store
	registry   *registry.Registry
	aggregator *stats.Aggregator
	metrics    *metrics.Metrics
}

func NewHandlers(db *gorm.DB, cfg *config.Config, store *storage.Store, reg *registry.Registry, agg *stats.Aggregator, m *metrics.Metrics) *Handlers {
	return &Handlers{
		db:         db,
		config:     cfg,
		store:      store,
		registry:   reg,
		aggregator: agg,
		metrics:    m,
	}
}

func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now(),
		"service":   "veriform",
		"version":   "1.0.0",
	})
}

func (h *Handlers) logAudit(adminID *uint, action, resource, details, ipAddress, userAgent string) {
	audit := models.AuditLog{
		AdminID:   adminID,
		Action:    action,
		Resource:  resource,
		Details:   details,
		IPAddress: ipAddress,
		UserAgent: userAgent,
	}
	h.db.Create(&audit)
}
