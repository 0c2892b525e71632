package registry

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"veriform/models"
	"veriform/storage"
	"veriform/validation"

	"gorm.io/gorm"
)

var (
	ErrNotFound       = errors.New("submission not found")
	ErrInvalidStatus  = errors.New("invalid status value")
	ErrTerminalStatus = errors.New("submission status is terminal")
)

// DuplicateFieldError identifies exactly one conflicting unique field,
// following the email -> phone -> nationalId precedence.
type DuplicateFieldError struct {
	Field string
}

func (e *DuplicateFieldError) Error() string {
	return e.Field + " already registered"
}

// Actor is the identity performing a review operation. A nil AdminID is the
// explicit system actor used when no authenticated caller is available.
type Actor struct {
	AdminID *uint
	Email   string
}

// Registry owns submission records and the authoritative mapping from a
// submission to its attachments.
type Registry struct {
	db    *gorm.DB
	store *storage.Store
}

func New(db *gorm.DB, store *storage.Store) *Registry {
	return &Registry{db: db, store: store}
}

// Create persists a validated submission referencing already-stored
// attachments. On any failure the attachments stored for this call are
// rolled back so the store holds no orphaned blobs.
func (r *Registry) Create(p *validation.Parsed, primary, signature *models.AttachmentRef) (*models.Submission, error) {
	if field, err := r.findDuplicate(p); err != nil {
		r.rollbackAttachments(primary, signature)
		return nil, fmt.Errorf("duplicate pre-check failed: %w", err)
	} else if field != "" {
		r.rollbackAttachments(primary, signature)
		return nil, &DuplicateFieldError{Field: field}
	}

	sub := &models.Submission{
		Kind:                p.Kind,
		FirstName:           p.FirstName,
		LastName:            p.LastName,
		Email:               p.Email,
		Phone:               p.Phone,
		NationalID:          p.NationalID,
		DateOfBirth:         p.DateOfBirth,
		Address:             p.Address,
		City:                p.City,
		State:               p.State,
		PostalCode:          p.PostalCode,
		CourseName:          p.CourseName,
		InvestmentAmount:    p.InvestmentAmount,
		InvestmentGoals:     p.InvestmentGoals,
		PrimaryDocumentID:   primary.ID,
		SignatureDocumentID: signature.ID,
		TermsAccepted:       p.TermsAccepted,
		MarketingOptIn:      p.MarketingOptIn,
		Status:              models.StatusPendingReview,
	}

	if err := r.db.Create(sub).Error; err != nil {
		r.rollbackAttachments(primary, signature)
		// The unique indexes are the authoritative tie-breaker under
		// concurrent creation; a constraint violation surfaced here is
		// reported exactly like a pre-check conflict.
		if field := duplicateFieldFromError(err); field != "" {
			return nil, &DuplicateFieldError{Field: field}
		}
		return nil, fmt.Errorf("failed to create submission: %w", err)
	}

	log.Printf("Submission created: id=%d kind=%s email=%s", sub.ID, sub.Kind, sub.Email)
	return sub, nil
}

// Get loads one submission with its attachment metadata and reviewer.
func (r *Registry) Get(id uint) (*models.Submission, error) {
	var sub models.Submission
	err := r.db.
		Preload("PrimaryDocument").
		Preload("SignatureDocument").
		Preload("Reviewer").
		First(&sub, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load submission: %w", err)
	}
	return &sub, nil
}

// List returns one page of submissions plus the total match count. The count
// runs as its own query so callers can report total pages.
func (r *Registry) List(f models.ListFilter) ([]models.Submission, int64, error) {
	query := r.applyFilter(r.db.Model(&models.Submission{}), f)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count submissions: %w", err)
	}

	page := f.Page
	if page <= 0 {
		page = 1
	}
	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 10
	}

	var subs []models.Submission
	err := r.applyFilter(r.db.Model(&models.Submission{}), f).
		Order(orderClause(f.SortBy, f.SortOrder)).
		Limit(limit).
		Offset((page - 1) * limit).
		Preload("PrimaryDocument").
		Preload("SignatureDocument").
		Find(&subs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list submissions: %w", err)
	}
	return subs, total, nil
}

// UpdateStatus drives the review state machine. The reviewer identity and
// timestamp are stamped on every accepted update, including no-op
// transitions. Terminal statuses admit no further transitions.
func (r *Registry) UpdateStatus(id uint, newStatus, notes string, actor Actor) (*models.Submission, error) {
	if !models.IsValidStatus(newStatus) {
		return nil, ErrInvalidStatus
	}

	var sub models.Submission
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&sub, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to load submission: %w", err)
		}

		if models.IsTerminalStatus(sub.Status) && newStatus != sub.Status {
			return ErrTerminalStatus
		}

		now := time.Now()
		sub.Status = newStatus
		sub.ReviewedBy = actor.AdminID
		sub.ReviewedAt = &now
		if notes != "" {
			sub.AdminNotes = notes
		}
		if err := tx.Save(&sub).Error; err != nil {
			return fmt.Errorf("failed to update submission status: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("Submission %d status -> %s (reviewer=%v)", id, newStatus, actor.AdminID)
	return &sub, nil
}

// Delete removes the record, then best-effort deletes both attachments.
// Attachment cleanup failures are logged, never escalated: the record
// deletion has already committed.
func (r *Registry) Delete(id uint) error {
	var sub models.Submission
	if err := r.db.First(&sub, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to load submission: %w", err)
	}

	if err := r.db.Delete(&models.Submission{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete submission: %w", err)
	}

	for _, attID := range []string{sub.PrimaryDocumentID, sub.SignatureDocumentID} {
		if attID == "" {
			continue
		}
		if err := r.store.Delete(attID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			log.Printf("WARNING: failed to delete attachment %s for submission %d: %v", attID, id, err)
		}
	}

	log.Printf("Submission deleted: id=%d email=%s", id, sub.Email)
	return nil
}

// findDuplicate checks the unique fields against existing records and
// returns the first conflicting one in precedence order, or "".
func (r *Registry) findDuplicate(p *validation.Parsed) (string, error) {
	var existing models.Submission
	err := r.db.
		Where("LOWER(email) = ? OR phone = ? OR national_id = ?", strings.ToLower(p.Email), p.Phone, p.NationalID).
		First(&existing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}

	switch {
	case strings.EqualFold(existing.Email, p.Email):
		return "email", nil
	case existing.Phone == p.Phone:
		return "phone", nil
	default:
		return "nationalId", nil
	}
}

// duplicateFieldFromError maps a store-level unique constraint violation to
// the conflicting field, keeping the same precedence as the pre-check.
func duplicateFieldFromError(err error) string {
	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint") && !strings.Contains(msg, "duplicate") {
		return ""
	}
	switch {
	case strings.Contains(msg, "email"):
		return "email"
	case strings.Contains(msg, "phone"):
		return "phone"
	case strings.Contains(msg, "national_id"):
		return "nationalId"
	default:
		return ""
	}
}

// rollbackAttachments is the compensating cleanup for failed creates.
// Fire-and-forget: failures are logged only.
func (r *Registry) rollbackAttachments(refs ...*models.AttachmentRef) {
	for _, ref := range refs {
		if ref == nil {
			continue
		}
		if err := r.store.Delete(ref.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			log.Printf("WARNING: attachment rollback failed for %s: %v", ref.ID, err)
		}
	}
}

func (r *Registry) applyFilter(q *gorm.DB, f models.ListFilter) *gorm.DB {
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Kind != "" {
		q = q.Where("kind = ?", f.Kind)
	}
	if f.Search != "" {
		like := "%" + strings.ToLower(f.Search) + "%"
		q = q.Where(
			"LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ? OR LOWER(email) LIKE ? OR phone LIKE ? OR LOWER(city) LIKE ? OR LOWER(state) LIKE ?",
			like, like, like, like, like, like,
		)
	}
	if f.CreatedAfter != nil {
		q = q.Where("created_at >= ?", *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		q = q.Where("created_at <= ?", *f.CreatedBefore)
	}
	if f.MinInvestment != nil {
		q = q.Where("investment_amount >= ?", *f.MinInvestment)
	}
	if f.MaxInvestment != nil {
		q = q.Where("investment_amount <= ?", *f.MaxInvestment)
	}
	return q
}

// orderClause builds ORDER BY from a whitelist so caller input never reaches
// SQL directly. Default is newest first.
func orderClause(sortBy, sortOrder string) string {
	column := "created_at"
	switch sortBy {
	case "first_name", "last_name", "email", "status", "investment_amount", "created_at":
		column = sortBy
	}
	direction := "DESC"
	if strings.EqualFold(sortOrder, "asc") {
		direction = "ASC"
	}
	return column + " " + direction
}
