package models

import (
	"time"
)

// AttachmentRef is an immutable pointer to stored binary content. The ID is
// assigned by the attachment store at write time and is the only key ever
// used to resolve the bytes — it is never derived from the uploaded filename.
type AttachmentRef struct {
	ID               string    `json:"id" gorm:"primaryKey"`
	OriginalFilename string    `json:"original_filename" gorm:"not null"`
	MediaType        string    `json:"media_type" gorm:"not null"`
	ByteSize         int64     `json:"byte_size" gorm:"not null"`
	StoredAt         time.Time `json:"stored_at" gorm:"not null"`
}

// Attachment slots on a submission.
const (
	SlotPrimary   = "primary"
	SlotSignature = "signature"
)

// slotAliases maps the upstream multipart field names (the original frontend
// shipped several over time) to canonical slots. Data-driven on purpose:
// tolerating a new alias is a table entry, not a new branch.
var slotAliases = map[string]string{
	"primaryDocument": SlotPrimary,
	"aadharFile":      SlotPrimary,
	"aadhar":          SlotPrimary,
	"idProof":         SlotPrimary,
	"signatureFile":   SlotSignature,
	"signature":       SlotSignature,
	"addressProof":    SlotSignature,
}

// ResolveSlot maps an upload field name to a canonical slot name.
func ResolveSlot(fieldName string) (string, bool) {
	slot, ok := slotAliases[fieldName]
	return slot, ok
}
