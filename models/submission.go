package models

import (
	"time"
)

// Submission kinds. A registration carries a course name, a trading
// application carries investment details. Both share one lifecycle.
const (
	KindRegistration = "registration"
	KindTrading      = "trading"
)

// Review statuses.
const (
	StatusPendingReview     = "pending_review"
	StatusUnderReview       = "under_review"
	StatusDocumentsRequired = "documents_required"
	StatusApproved          = "approved"
	StatusRejected          = "rejected"
)

// ValidStatuses lists every accepted status value.
var ValidStatuses = []string{
	StatusPendingReview,
	StatusUnderReview,
	StatusDocumentsRequired,
	StatusApproved,
	StatusRejected,
}

// IsValidStatus reports whether s is a member of the status enum.
func IsValidStatus(s string) bool {
	for _, v := range ValidStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// IsTerminalStatus reports whether no further transition is permitted from s.
func IsTerminalStatus(s string) bool {
	return s == StatusApproved || s == StatusRejected
}

type Submission struct {
	ID         uint   `json:"id" gorm:"primaryKey"`
	Kind       string `json:"kind" gorm:"not null;index"`
	FirstName  string `json:"first_name" gorm:"not null"`
	LastName   string `json:"last_name" gorm:"not null"`
	Email      string `json:"email" gorm:"uniqueIndex;not null"`
	Phone      string `json:"phone" gorm:"uniqueIndex;not null"`
	NationalID string `json:"national_id" gorm:"uniqueIndex;not null"`

	DateOfBirth time.Time `json:"date_of_birth" gorm:"not null"`
	Address     string    `json:"address" gorm:"not null"`
	City        string    `json:"city" gorm:"not null"`
	State       string    `json:"state" gorm:"not null"`
	PostalCode  string    `json:"postal_code" gorm:"not null"`

	// Registration kind only.
	CourseName string `json:"course_name,omitempty"`

	// Trading kind only.
	InvestmentAmount float64 `json:"investment_amount,omitempty"`
	InvestmentGoals  string  `json:"investment_goals,omitempty"`

	// Attachment slots hold opaque store ids, never paths or filenames.
	PrimaryDocumentID   string         `json:"primary_document_id" gorm:"not null"`
	PrimaryDocument     *AttachmentRef `json:"primary_document,omitempty" gorm:"foreignKey:PrimaryDocumentID"`
	SignatureDocumentID string         `json:"signature_document_id" gorm:"not null"`
	SignatureDocument   *AttachmentRef `json:"signature_document,omitempty" gorm:"foreignKey:SignatureDocumentID"`

	TermsAccepted  bool `json:"terms_accepted" gorm:"not null"`
	MarketingOptIn bool `json:"marketing_opt_in" gorm:"default:false"`

	Status     string     `json:"status" gorm:"not null;default:pending_review;index"`
	AdminNotes string     `json:"admin_notes"`
	ReviewedBy *uint      `json:"reviewed_by"`
	Reviewer   *Admin     `json:"reviewer,omitempty" gorm:"foreignKey:ReviewedBy"`
	ReviewedAt *time.Time `json:"reviewed_at"`

	// Legacy path-string references kept only until the startup migration
	// converts them into AttachmentRef rows. Never written by new code.
	LegacyPrimaryPath   string `json:"-" gorm:"column:legacy_primary_path"`
	LegacySignaturePath string `json:"-" gorm:"column:legacy_signature_path"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FullName combines first and last name for display and audit messages.
func (s *Submission) FullName() string {
	return s.FirstName + " " + s.LastName
}

// Age returns whole years between the date of birth and now.
func (s *Submission) Age(now time.Time) int {
	return WholeYears(s.DateOfBirth, now)
}

// WholeYears computes complete years elapsed between from and to,
// accounting for month and day so near-birthday cases round down.
func WholeYears(from, to time.Time) int {
	years := to.Year() - from.Year()
	if to.Month() < from.Month() ||
		(to.Month() == from.Month() && to.Day() < from.Day()) {
		years--
	}
	return years
}

// StatusUpdateRequest is the admin review payload.
type StatusUpdateRequest struct {
	Status string `json:"status" validate:"required"`
	Notes  string `json:"notes" validate:"omitempty,max=1000"`
}

// ListFilter carries the query parameters accepted by the list endpoint.
// Zero values mean "not applied".
type ListFilter struct {
	Status        string
	Kind          string
	Search        string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	MinInvestment *float64
	MaxInvestment *float64
	SortBy        string
	SortOrder     string
	Page          int
	Limit         int
}
