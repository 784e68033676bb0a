package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/snaproll/server/internal/api/middleware"
	"github.com/snaproll/server/internal/api/respond"
	"github.com/snaproll/server/internal/audit"
	"github.com/snaproll/server/internal/domain/galleries"
	"github.com/snaproll/server/internal/domain/ids"
	"github.com/snaproll/server/internal/sanitize"
)

type GalleriesHandler struct {
	admin    *galleries.AdminService
	audit    *audit.Logger
	validate *validator.Validate
}

func NewGalleriesHandler(admin *galleries.AdminService, auditLog *audit.Logger) *GalleriesHandler {
	return &GalleriesHandler{admin: admin, audit: auditLog, validate: validator.New()}
}

type galleryPayload struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Tier              string    `json:"tier"`
	Status            string    `json:"status"`
	TotalPhotos       int       `json:"totalPhotos"`
	TotalVideos       int       `json:"totalVideos"`
	TotalContributors int       `json:"totalContributors"`
	MaxPhotos         int       `json:"maxPhotos"`
	MaxPhotosPerUser  int       `json:"maxPhotosPerUser"`
	MaxVideos         int       `json:"maxVideos"`
	HasVideoAddon     bool      `json:"hasVideoAddon"`
	StorageDays       int       `json:"storageDays"`
	CreatedAt         time.Time `json:"createdAt"`
	ExpiresAt         time.Time `json:"expiresAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

func galleryResponse(g *galleries.Gallery) galleryPayload {
	return galleryPayload{
		ID:                g.ID,
		Name:              g.Name,
		Tier:              string(g.Tier),
		Status:            string(g.Status),
		TotalPhotos:       g.TotalPhotos,
		TotalVideos:       g.TotalVideos,
		TotalContributors: g.TotalContributors,
		MaxPhotos:         g.MaxPhotos,
		MaxPhotosPerUser:  g.MaxPhotosPerUser,
		MaxVideos:         g.MaxVideos,
		HasVideoAddon:     g.HasVideoAddon,
		StorageDays:       g.StorageDays,
		CreatedAt:         g.CreatedAt,
		ExpiresAt:         g.ExpiresAt,
		UpdatedAt:         g.UpdatedAt,
	}
}

type createGalleryRequest struct {
	Name string `json:"name" validate:"required,max=100"`
	Tier string `json:"tier" validate:"required"`
}

// Create provisions a gallery for the authenticated host at the requested
// tier. Quota limits and expiry follow from the tier table.
func (h *GalleriesHandler) Create(w http.ResponseWriter, r *http.Request) {
	host := middleware.HostFromContext(r.Context())
	if host == nil {
		respond.Error(w, r, http.StatusUnauthorized, respond.CodeAuthRequired, "authentication required", nil)
		return
	}

	var req createGalleryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, r, http.StatusBadRequest, respond.CodeValidationError, "malformed request body", err)
		return
	}
	req.Name = sanitize.Text(req.Name)
	if err := h.validate.Struct(req); err != nil {
		respond.Error(w, r, http.StatusBadRequest, respond.CodeValidationError, "invalid gallery fields", err)
		return
	}

	gallery, err := h.admin.Create(r.Context(), galleries.CreateGalleryInput{
		HostID:    host.Subject,
		HostEmail: host.Email,
		Name:      req.Name,
		Tier:      galleries.Tier(req.Tier),
	})
	if err != nil {
		if errors.Is(err, galleries.ErrUnknownTier) {
			respond.Error(w, r, http.StatusBadRequest, respond.CodeValidationError, "unknown subscription tier", err)
			return
		}
		h.audit.LogFromRequest(r, "gallery.create", "gallery", "", "failure")
		respond.Error(w, r, http.StatusInternalServerError, respond.CodeDatabaseError, "gallery create failed", err)
		return
	}

	h.audit.LogFromRequest(r, "gallery.create", "gallery", gallery.ID, "success")
	respond.JSON(w, http.StatusCreated, galleryResponse(gallery))
}

// Get returns the gallery with its aggregate stats.
func (h *GalleriesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := ids.ValidateUUID(id); err != nil {
		respond.Error(w, r, http.StatusBadRequest, respond.CodeValidationError, "invalid gallery id", err)
		return
	}

	gallery, err := h.admin.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, galleries.ErrNotFound) {
			respond.Error(w, r, http.StatusNotFound, respond.CodeGalleryNotFound, "gallery not found", err)
			return
		}
		respond.Error(w, r, http.StatusInternalServerError, respond.CodeDatabaseError, "gallery lookup failed", err)
		return
	}

	respond.JSON(w, http.StatusOK, galleryResponse(gallery))
}

// Archive hides an active gallery without touching its content.
func (h *GalleriesHandler) Archive(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "gallery.archive", h.admin.Archive)
}

// Restore brings an archived gallery back to active.
func (h *GalleriesHandler) Restore(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "gallery.restore", h.admin.Restore)
}

func (h *GalleriesHandler) transition(w http.ResponseWriter, r *http.Request, action string, op func(ctx context.Context, id, hostID string) (*galleries.Gallery, error)) {
	host := middleware.HostFromContext(r.Context())
	if host == nil {
		respond.Error(w, r, http.StatusUnauthorized, respond.CodeAuthRequired, "authentication required", nil)
		return
	}

	id := r.PathValue("id")
	if err := ids.ValidateUUID(id); err != nil {
		respond.Error(w, r, http.StatusBadRequest, respond.CodeValidationError, "invalid gallery id", err)
		return
	}

	gallery, err := op(r.Context(), id, host.Subject)
	if err != nil {
		h.audit.LogFromRequest(r, action, "gallery", id, "failure")
		switch {
		case errors.Is(err, galleries.ErrNotFound):
			respond.Error(w, r, http.StatusNotFound, respond.CodeGalleryNotFound, "gallery not found", err)
		case errors.Is(err, galleries.ErrNotOwner):
			respond.Error(w, r, http.StatusForbidden, respond.CodeForbidden, "gallery belongs to a different host", err)
		case errors.Is(err, galleries.ErrInvalidTransition):
			respond.Error(w, r, http.StatusConflict, respond.CodeInvalidTransition, "gallery is not in a state that allows this change", err)
		default:
			respond.Error(w, r, http.StatusInternalServerError, respond.CodeDatabaseError, "gallery update failed", err)
		}
		return
	}

	h.audit.LogFromRequest(r, action, "gallery", id, "success")
	respond.JSON(w, http.StatusOK, galleryResponse(gallery))
}

type extendRequest struct {
	Tier string `json:"tier" validate:"required"`
}

// Extend upgrades the gallery to a new tier, restarting expiry from now. An
// expired gallery becomes active again; an archived one is rejected.
func (h *GalleriesHandler) Extend(w http.ResponseWriter, r *http.Request) {
	host := middleware.HostFromContext(r.Context())
	if host == nil {
		respond.Error(w, r, http.StatusUnauthorized, respond.CodeAuthRequired, "authentication required", nil)
		return
	}

	id := r.PathValue("id")
	if err := ids.ValidateUUID(id); err != nil {
		respond.Error(w, r, http.StatusBadRequest, respond.CodeValidationError, "invalid gallery id", err)
		return
	}

	var req extendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, r, http.StatusBadRequest, respond.CodeValidationError, "malformed request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respond.Error(w, r, http.StatusBadRequest, respond.CodeValidationError, "tier is required", err)
		return
	}

	gallery, err := h.admin.ExtendExpiration(r.Context(), id, host.Subject, galleries.Tier(req.Tier))
	if err != nil {
		h.audit.LogFromRequest(r, "gallery.extend", "gallery", id, "failure")
		switch {
		case errors.Is(err, galleries.ErrNotFound):
			respond.Error(w, r, http.StatusNotFound, respond.CodeGalleryNotFound, "gallery not found", err)
		case errors.Is(err, galleries.ErrNotOwner):
			respond.Error(w, r, http.StatusForbidden, respond.CodeForbidden, "gallery belongs to a different host", err)
		case errors.Is(err, galleries.ErrUnknownTier):
			respond.Error(w, r, http.StatusBadRequest, respond.CodeValidationError, "unknown subscription tier", err)
		case errors.Is(err, galleries.ErrInvalidTransition):
			respond.Error(w, r, http.StatusConflict, respond.CodeInvalidTransition, "archived galleries cannot be extended", err)
		default:
			respond.Error(w, r, http.StatusInternalServerError, respond.CodeDatabaseError, "gallery update failed", err)
		}
		return
	}

	h.audit.LogFromRequest(r, "gallery.extend", "gallery", id, "success")
	respond.JSON(w, http.StatusOK, galleryResponse(gallery))
}
