package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"veriform/models"
	"veriform/utils"
	"veriform/validation"
)

func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body", nil)
		return
	}

	if err := validation.ValidateStruct(req); err != nil {
		sendError(w, http.StatusBadRequest, "Validation failed", validation.FormatValidationError(err))
		return
	}

	if req.AdminCode != h.config.AdminCode {
		log.Printf("Invalid admin code provided for %s", req.Email)
		sendError(w, http.StatusForbidden, "Invalid admin code", nil)
		return
	}

	var existing models.Admin
	if err := h.db.Where("email = ?", req.Email).First(&existing).Error; err == nil {
		sendError(w, http.StatusConflict, "Reviewer already exists", nil)
		return
	}

	hashedPassword, err := utils.HashPassword(req.Password)
	if err != nil {
		sendError(w, http.StatusInternalServerError, "Failed to hash password", nil)
		return
	}

	admin := models.Admin{
		Email:     req.Email,
		Password:  hashedPassword,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		IsActive:  true,
	}

	if err := h.db.Create(&admin).Error; err != nil {
		log.Printf("Failed to create reviewer %s: %v", req.Email, err)
		sendError(w, http.StatusInternalServerError, "Failed to create reviewer", nil)
		return
	}

	h.logAudit(&admin.ID, "CREATE", "ADMIN", "Reviewer registered", r.RemoteAddr, r.UserAgent())

	admin.Password = ""
	sendJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Reviewer registered successfully",
		"admin":   admin,
	})
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body", nil)
		return
	}

	if err := validation.ValidateStruct(req); err != nil {
		sendError(w, http.StatusBadRequest, "Validation failed", validation.FormatValidationError(err))
		return
	}

	var admin models.Admin
	if err := h.db.Where("email = ? AND is_active = ?", req.Email, true).First(&admin).Error; err != nil {
		sendError(w, http.StatusUnauthorized, "Invalid credentials", nil)
		return
	}

	if !utils.CheckPasswordHash(req.Password, admin.Password) {
		sendError(w, http.StatusUnauthorized, "Invalid credentials", nil)
		return
	}

	token, err := utils.GenerateToken(admin.ID, admin.Email)
	if err != nil {
		sendError(w, http.StatusInternalServerError, "Failed to generate token", nil)
		return
	}

	h.logAudit(&admin.ID, "LOGIN", "ADMIN", "Reviewer logged in", r.RemoteAddr, r.UserAgent())

	admin.Password = ""
	sendJSON(w, http.StatusOK, models.LoginResponse{Token: token, Admin: admin})
}
