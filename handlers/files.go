package handlers

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"

	"veriform/models"
	"veriform/registry"
	"veriform/storage"

	"github.com/gorilla/mux"
)

// DownloadFile streams an attachment with an attachment disposition.
func (h *Handlers) DownloadFile(w http.ResponseWriter, r *http.Request) {
	h.serveFile(w, r, "attachment")
}

// ViewFile streams an attachment inline for browser preview.
func (h *Handlers) ViewFile(w http.ResponseWriter, r *http.Request) {
	h.serveFile(w, r, "inline")
}

// serveFile resolves the attachment id through the submission slot and
// streams the blob. The slot accepts the historical field-name aliases as
// well as the canonical slot names.
func (h *Handlers) serveFile(w http.ResponseWriter, r *http.Request, disposition string) {
	id, err := pathID(r)
	if err != nil {
		sendError(w, http.StatusBadRequest, "Invalid submission id", nil)
		return
	}

	slotName := mux.Vars(r)["slot"]
	slot := slotName
	if resolved, ok := models.ResolveSlot(slotName); ok {
		slot = resolved
	}
	if slot != models.SlotPrimary && slot != models.SlotSignature {
		sendError(w, http.StatusBadRequest, "Invalid file slot", slotName)
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

	attID := sub.PrimaryDocumentID
	if slot == models.SlotSignature {
		attID = sub.SignatureDocumentID
	}
	if attID == "" {
		sendError(w, http.StatusNotFound, slot+" document not found for this submission", nil)
		return
	}

	stream, ref, err := h.store.Get(attID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			sendError(w, http.StatusNotFound, "File not found", nil)
			return
		}
		log.Printf("Attachment read failure for %s: %v", attID, err)
		sendError(w, http.StatusInternalServerError, "Failed to read file", nil)
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", ref.MediaType)
	w.Header().Set("Content-Length", strconv.FormatInt(ref.ByteSize, 10))
	if disposition == "attachment" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", ref.OriginalFilename))
	} else {
		w.Header().Set("Content-Disposition", "inline")
	}

	if _, err := io.Copy(w, stream); err != nil {
		log.Printf("File stream error for %s: %v", attID, err)
	}
}
