package storage

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"veriform/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrNotFound             = errors.New("attachment not found")
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrSizeLimitExceeded    = errors.New("file size limit exceeded")
)

// allowedMediaTypes is the upload allow-list. Checked before any byte is
// written so a rejected upload never leaves a blob behind.
var allowedMediaTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"application/pdf": true,
}

// IsAllowedMediaType reports whether the declared media type is accepted.
func IsAllowedMediaType(mediaType string) bool {
	return allowedMediaTypes[mediaType]
}

// Store persists attachment bytes on disk keyed by generated UUIDs and keeps
// the matching AttachmentRef metadata rows. It never touches submissions;
// keeping slots consistent is the registry's job.
type Store struct {
	dir      string
	maxBytes int64
	db       *gorm.DB
}

// Initialize creates the upload directory if needed and returns the store
// handle. Called once during bootstrap; the handle is then passed to the
// registry so there is no ambient global state.
func Initialize(dir string, maxBytes int64, db *gorm.DB) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory %s: %w", dir, err)
	}
	log.Printf("Attachment store initialized at %s (max %d bytes)", dir, maxBytes)
	return &Store{dir: dir, maxBytes: maxBytes, db: db}, nil
}

// Put streams r to disk and records an AttachmentRef. The id is a fresh UUID,
// independent of the declared filename, so lookups never involve filename
// parsing or guessing. The size cap is enforced during the copy, not after
// buffering.
func (s *Store) Put(r io.Reader, mediaType, originalFilename string) (*models.AttachmentRef, error) {
	if !IsAllowedMediaType(mediaType) {
		return nil, ErrUnsupportedMediaType
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	// LimitReader caps memory and disk use; one byte over the limit is enough
	// to detect the overflow without buffering the rest of the body.
	written, err := io.Copy(tmp, io.LimitReader(r, s.maxBytes+1))
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("failed to write attachment: %w", err)
	}
	if written > s.maxBytes {
		os.Remove(tmpName)
		return nil, ErrSizeLimitExceeded
	}

	id := uuid.New().String()
	if err := os.Rename(tmpName, s.blobPath(id)); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("failed to place attachment blob: %w", err)
	}

	ref := &models.AttachmentRef{
		ID:               id,
		OriginalFilename: originalFilename,
		MediaType:        mediaType,
		ByteSize:         written,
		StoredAt:         time.Now(),
	}
	if err := s.db.Create(ref).Error; err != nil {
		os.Remove(s.blobPath(id))
		return nil, fmt.Errorf("failed to record attachment metadata: %w", err)
	}

	log.Printf("Attachment stored: id=%s size=%d type=%s", id, written, mediaType)
	return ref, nil
}

// Get opens the blob for streaming and returns its metadata. The caller
// closes the reader.
func (s *Store) Get(id string) (io.ReadCloser, *models.AttachmentRef, error) {
	var ref models.AttachmentRef
	if err := s.db.First(&ref, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("failed to load attachment metadata: %w", err)
	}

	f, err := os.Open(s.blobPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("failed to open attachment blob: %w", err)
	}
	return f, &ref, nil
}

// Delete removes the metadata row and the blob. Deleting an unknown id
// returns ErrNotFound, which callers doing best-effort cleanup may ignore.
func (s *Store) Delete(id string) error {
	res := s.db.Delete(&models.AttachmentRef{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete attachment metadata: %w", res.Error)
	}

	blobErr := os.Remove(s.blobPath(id))
	if blobErr != nil && !os.IsNotExist(blobErr) {
		return fmt.Errorf("failed to delete attachment blob: %w", blobErr)
	}

	if res.RowsAffected == 0 && os.IsNotExist(blobErr) {
		return ErrNotFound
	}
	return nil
}

func (s *Store) blobPath(id string) string {
	return filepath.Join(s.dir, id)
}
