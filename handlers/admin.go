package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"veriform/middleware"
	"veriform/models"
	"veriform/registry"
	"veriform/validation"
)

// statsQueryTimeout bounds aggregate queries; aggregation is read-only so
// aborting mid-flight is always safe.
const statsQueryTimeout = 10 * time.Second

// UpdateSubmissionStatus drives the review state machine. The reviewer
// identity comes from the JWT claims, never from the request body.
func (h *Handlers) UpdateSubmissionStatus(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetAdminFromContext(r)

	id, err := pathID(r)
	if err != nil {
		sendError(w, http.StatusBadRequest, "Invalid submission id", nil)
		return
	}

	var req models.StatusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body", nil)
		return
	}
	if err := validation.ValidateStruct(req); err != nil {
		sendError(w, http.StatusBadRequest, "Validation failed", validation.FormatValidationError(err))
		return
	}

	// No authenticated caller means the explicit system actor, not an error.
	actor := registry.Actor{}
	if claims != nil {
		actor.AdminID = &claims.AdminID
		actor.Email = claims.Email
	}

	sub, err := h.registry.UpdateStatus(id, req.Status, req.Notes, actor)
	if err != nil {
		switch {
		case errors.Is(err, registry.ErrNotFound):
			sendError(w, http.StatusNotFound, "Submission not found", nil)
		case errors.Is(err, registry.ErrInvalidStatus):
			sendError(w, http.StatusBadRequest, "Invalid status value", req.Status)
		case errors.Is(err, registry.ErrTerminalStatus):
			sendError(w, http.StatusConflict, "Submission is in a terminal status", nil)
		default:
			log.Printf("Status update failure: %v", err)
			sendError(w, http.StatusInternalServerError, "Failed to update status", nil)
		}
		return
	}

	h.metrics.ReviewDecisions.WithLabelValues(req.Status).Inc()
	h.logAudit(actor.AdminID, "UPDATE", "SUBMISSION",
		fmt.Sprintf("Submission %d status -> %s", id, req.Status), r.RemoteAddr, r.UserAgent())

	sendJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Submission status updated to " + req.Status,
		"data": map[string]interface{}{
			"id":          sub.ID,
			"full_name":   sub.FullName(),
			"email":       sub.Email,
			"status":      sub.Status,
			"admin_notes": sub.AdminNotes,
			"reviewed_by": sub.ReviewedBy,
			"reviewed_at": sub.ReviewedAt,
		},
	})
}

// GetStatistics assembles the dashboard aggregates from a single handler so
// the admin UI needs one round trip.
func (h *Handlers) GetStatistics(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), statsQueryTimeout)
	defer cancel()

	overview, err := h.aggregator.Overview(ctx, h.config.StatsWindow)
	if err != nil {
		log.Printf("Statistics failure: %v", err)
		sendError(w, http.StatusInternalServerError, "Failed to compute statistics", nil)
		return
	}

	investments, err := h.aggregator.InvestmentByStatus(ctx)
	if err != nil {
		log.Printf("Statistics failure: %v", err)
		sendError(w, http.StatusInternalServerError, "Failed to compute statistics", nil)
		return
	}

	topStates, err := h.aggregator.TopGroups(ctx, "state", 5)
	if err != nil {
		log.Printf("Statistics failure: %v", err)
		sendError(w, http.StatusInternalServerError, "Failed to compute statistics", nil)
		return
	}

	topCourses, err := h.aggregator.TopGroups(ctx, "course", 5)
	if err != nil {
		log.Printf("Statistics failure: %v", err)
		sendError(w, http.StatusInternalServerError, "Failed to compute statistics", nil)
		return
	}

	ages, err := h.aggregator.AgeHistogram(ctx)
	if err != nil {
		log.Printf("Statistics failure: %v", err)
		sendError(w, http.StatusInternalServerError, "Failed to compute statistics", nil)
		return
	}

	sendJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"overview":             overview,
			"investment_by_status": investments,
			"top_states":           topStates,
			"top_courses":          topCourses,
			"age_distribution":     ages,
		},
		"generated_at": time.Now(),
	})
}

func (h *Handlers) GetAuditLogs(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page <= 0 {
		page = 1
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	offset := (page - 1) * limit

	var auditLogs []models.AuditLog
	if err := h.db.Preload("Admin").
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&auditLogs).Error; err != nil {
		sendError(w, http.StatusInternalServerError, "Failed to fetch audit logs", nil)
		return
	}

	sendJSON(w, http.StatusOK, auditLogs)
}
