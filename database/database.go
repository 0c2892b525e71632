package database

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"veriform/models"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func Initialize(databaseURL, uploadDir string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(databaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	err = db.AutoMigrate(
		&models.AttachmentRef{},
		&models.Admin{},
		&models.Submission{},
		&models.AuditLog{},
	)
	if err != nil {
		return nil, err
	}

	if err := migrateLegacyAttachments(db, uploadDir); err != nil {
		return nil, err
	}

	return db, nil
}

// migrateLegacyAttachments converts old path-string file references into
// canonical AttachmentRef rows and moves the blobs into the store layout.
// Early revisions stored an uploads/ path on the submission itself; after
// this one-shot pass every record carries only opaque attachment ids, the
// bytes live under those ids, and the legacy columns are cleared.
func migrateLegacyAttachments(db *gorm.DB, uploadDir string) error {
	var legacy []models.Submission
	err := db.
		Where("legacy_primary_path != '' OR legacy_signature_path != ''").
		Find(&legacy).Error
	if err != nil {
		return fmt.Errorf("failed to scan for legacy attachment records: %w", err)
	}
	if len(legacy) == 0 {
		return nil
	}

	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return fmt.Errorf("failed to create upload directory %s: %w", uploadDir, err)
	}

	log.Printf("Migrating %d submissions with legacy attachment paths", len(legacy))

	for i := range legacy {
		sub := &legacy[i]
		err := db.Transaction(func(tx *gorm.DB) error {
			if sub.LegacyPrimaryPath != "" && sub.PrimaryDocumentID == "" {
				ref, err := refFromLegacyPath(tx, uploadDir, sub.LegacyPrimaryPath)
				if err != nil {
					return err
				}
				sub.PrimaryDocumentID = ref.ID
			}
			if sub.LegacySignaturePath != "" && sub.SignatureDocumentID == "" {
				ref, err := refFromLegacyPath(tx, uploadDir, sub.LegacySignaturePath)
				if err != nil {
					return err
				}
				sub.SignatureDocumentID = ref.ID
			}
			sub.LegacyPrimaryPath = ""
			sub.LegacySignaturePath = ""
			return tx.Save(sub).Error
		})
		if err != nil {
			return fmt.Errorf("failed to migrate submission %d: %w", sub.ID, err)
		}
	}

	log.Printf("Legacy attachment migration complete")
	return nil
}

// refFromLegacyPath creates an AttachmentRef for a legacy path and moves the
// blob to <uploadDir>/<id>, so the ref id resolves through the store like any
// other attachment and no lookup ever parses the path again. A blob that has
// already vanished from disk keeps its metadata row only.
func refFromLegacyPath(tx *gorm.DB, uploadDir, legacyPath string) (*models.AttachmentRef, error) {
	filename := filepath.Base(legacyPath)
	ref := &models.AttachmentRef{
		ID:               uuid.New().String(),
		OriginalFilename: filename,
		MediaType:        mediaTypeFromExt(filepath.Ext(filename)),
		StoredAt:         time.Now(),
	}

	info, statErr := os.Stat(legacyPath)
	if statErr == nil {
		ref.ByteSize = info.Size()
	} else {
		log.Printf("WARNING: legacy blob %s is missing, keeping metadata only", legacyPath)
	}

	if err := tx.Create(ref).Error; err != nil {
		return nil, fmt.Errorf("failed to create attachment ref for %s: %w", legacyPath, err)
	}

	// Move after the row insert: a failed rename rolls the transaction back
	// and leaves the legacy file where it was.
	if statErr == nil {
		if err := os.Rename(legacyPath, filepath.Join(uploadDir, ref.ID)); err != nil {
			return nil, fmt.Errorf("failed to move legacy blob %s: %w", legacyPath, err)
		}
	}
	return ref, nil
}

func mediaTypeFromExt(ext string) string {
	switch ext {
	case ".pdf":
		return "application/pdf"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}
