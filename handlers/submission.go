package handlers

import (
	"errors"
	"log"
	"math"
	"net/http"
	"strconv"
	"time"

	"veriform/middleware"
	"veriform/models"
	"veriform/registry"
	"veriform/storage"
	"veriform/validation"

	"github.com/gorilla/mux"
)

// maxMultipartMemory bounds the in-memory part of multipart parsing; larger
// file parts spool to disk before the store re-checks them incrementally.
const maxMultipartMemory = 10 << 20

// SubmitRegistration accepts a course-registration submission.
func (h *Handlers) SubmitRegistration(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, models.KindRegistration)
}

// SubmitTradingApplication accepts a trading-application submission.
func (h *Handlers) SubmitTradingApplication(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, models.KindTrading)
}

func (h *Handlers) submit(w http.ResponseWriter, r *http.Request, kind string) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid multipart form", err.Error())
		return
	}

	fields := make(map[string]string, len(r.MultipartForm.Value))
	for name, values := range r.MultipartForm.Value {
		for _, v := range values {
			if v != "" {
				fields[name] = v
				break
			}
		}
	}

	var descriptors []validation.FileDescriptor
	for name, headers := range r.MultipartForm.File {
		if len(headers) == 0 {
			continue
		}
		fh := headers[0]
		descriptors = append(descriptors, validation.FileDescriptor{
			FieldName: name,
			Filename:  fh.Filename,
			MediaType: fh.Header.Get("Content-Type"),
			ByteSize:  fh.Size,
		})
	}

	parsed, verrs := validation.Validate(kind, fields, descriptors, time.Now())
	if verrs != nil {
		h.metrics.SubmissionsRejected.Inc()
		sendError(w, http.StatusBadRequest, "Validation failed", verrs)
		return
	}

	refs := make(map[string]*models.AttachmentRef, 2)
	for name, headers := range r.MultipartForm.File {
		slot, ok := models.ResolveSlot(name)
		if !ok || len(headers) == 0 || refs[slot] != nil {
			continue
		}
		fh := headers[0]
		file, err := fh.Open()
		if err != nil {
			h.rollbackRefs(refs)
			sendError(w, http.StatusInternalServerError, "Failed to read uploaded file", nil)
			return
		}
		ref, err := h.store.Put(file, fh.Header.Get("Content-Type"), fh.Filename)
		file.Close()
		if err != nil {
			h.rollbackRefs(refs)
			h.metrics.SubmissionsRejected.Inc()
			switch {
			case errors.Is(err, storage.ErrUnsupportedMediaType):
				sendError(w, http.StatusBadRequest, "Unsupported file type", name)
			case errors.Is(err, storage.ErrSizeLimitExceeded):
				sendError(w, http.StatusRequestEntityTooLarge, "File exceeds the size limit", name)
			default:
				log.Printf("Attachment store failure: %v", err)
				sendError(w, http.StatusInternalServerError, "Failed to store uploaded file", nil)
			}
			return
		}
		h.metrics.AttachmentBytesStored.Add(float64(ref.ByteSize))
		refs[slot] = ref
	}

	sub, err := h.registry.Create(parsed, refs[models.SlotPrimary], refs[models.SlotSignature])
	if err != nil {
		h.metrics.SubmissionsRejected.Inc()
		var dup *registry.DuplicateFieldError
		if errors.As(err, &dup) {
			sendError(w, http.StatusConflict, dup.Field+" already registered", map[string]string{"field": dup.Field})
			return
		}
		log.Printf("Submission create failure: %v", err)
		sendError(w, http.StatusInternalServerError, "Failed to submit application", nil)
		return
	}

	h.metrics.SubmissionsCreated.Inc()
	h.logAudit(nil, "CREATE", "SUBMISSION", "Submission received: "+sub.Email, r.RemoteAddr, r.UserAgent())

	sendJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"message": "Form submitted successfully! We will contact you soon.",
		"data": map[string]interface{}{
			"id":           sub.ID,
			"full_name":    sub.FullName(),
			"email":        sub.Email,
			"kind":         sub.Kind,
			"status":       sub.Status,
			"submitted_at": sub.CreatedAt,
		},
	})
}

func (h *Handlers) rollbackRefs(refs map[string]*models.AttachmentRef) {
	for _, ref := range refs {
		if ref == nil {
			continue
		}
		if err := h.store.Delete(ref.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			log.Printf("WARNING: failed to clean up attachment %s: %v", ref.ID, err)
		}
	}
}

func (h *Handlers) GetSubmission(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		sendError(w, http.StatusBadRequest, "Invalid submission id", nil)
		return
	}

	sub, err := h.registry.Get(id)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			sendError(w, http.StatusNotFound, "Submission not found", nil)
			return
		}
		sendError(w, http.StatusInternalServerError, "Failed to fetch submission", nil)
		return
	}

	sendJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    sub,
	})
}

func (h *Handlers) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	filter := parseListFilter(r)

	subs, total, err := h.registry.List(filter)
	if err != nil {
		log.Printf("List submissions failure: %v", err)
		sendError(w, http.StatusInternalServerError, "Failed to fetch submissions", nil)
		return
	}

	page := filter.Page
	if page <= 0 {
		page = 1
	}
	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	totalPages := int(math.Ceil(float64(total) / float64(limit)))

	sendJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    subs,
		"pagination": map[string]interface{}{
			"current_page": page,
			"total_pages":  totalPages,
			"total_count":  total,
			"limit":        limit,
			"has_next":     page < totalPages,
			"has_prev":     page > 1,
		},
	})
}

func (h *Handlers) DeleteSubmission(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetAdminFromContext(r)

	id, err := pathID(r)
	if err != nil {
		sendError(w, http.StatusBadRequest, "Invalid submission id", nil)
		return
	}

	if err := h.registry.Delete(id); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			sendError(w, http.StatusNotFound, "Submission not found", nil)
			return
		}
		log.Printf("Delete submission failure: %v", err)
		sendError(w, http.StatusInternalServerError, "Failed to delete submission", nil)
		return
	}

	var adminID *uint
	if claims != nil {
		adminID = &claims.AdminID
	}
	h.logAudit(adminID, "DELETE", "SUBMISSION", "Submission deleted: "+strconv.Itoa(int(id)), r.RemoteAddr, r.UserAgent())

	sendJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Submission deleted successfully",
	})
}

func pathID(r *http.Request) (uint, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}

func parseListFilter(r *http.Request) models.ListFilter {
	q := r.URL.Query()

	filter := models.ListFilter{
		Status:    q.Get("status"),
		Kind:      q.Get("kind"),
		Search:    q.Get("search"),
		SortBy:    q.Get("sort_by"),
		SortOrder: q.Get("sort_order"),
	}

	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))

	if raw := q.Get("created_after"); raw != "" {
		if t, err := parseQueryDate(raw); err == nil {
			filter.CreatedAfter = &t
		}
	}
	if raw := q.Get("created_before"); raw != "" {
		if t, err := parseQueryDate(raw); err == nil {
			filter.CreatedBefore = &t
		}
	}
	if raw := q.Get("min_investment"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			filter.MinInvestment = &v
		}
	}
	if raw := q.Get("max_investment"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			filter.MaxInvestment = &v
		}
	}
	return filter
}

func parseQueryDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}
