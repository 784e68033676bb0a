package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/snaproll/server/internal/api/middleware"
	"github.com/snaproll/server/internal/api/respond"
	"github.com/snaproll/server/internal/audit"
	"github.com/snaproll/server/internal/domain/galleries"
	"github.com/snaproll/server/internal/domain/ids"
	"github.com/snaproll/server/internal/metrics"
	"github.com/snaproll/server/internal/sanitize"
	"github.com/snaproll/server/internal/storage/blob"
)

// multipartMemory is the in-memory threshold for multipart parsing; larger
// bodies spool to temp files.
const multipartMemory = 32 << 20

type MediaHandler struct {
	ingest   *galleries.IngestService
	query    *galleries.QueryService
	blobs    blob.Storage
	audit    *audit.Logger
	validate *validator.Validate
	baseURL  string

	maxPhotoBytes int64
	maxVideoBytes int64
}

func NewMediaHandler(ingest *galleries.IngestService, query *galleries.QueryService, blobs blob.Storage, auditLog *audit.Logger, baseURL string, maxPhotoBytes, maxVideoBytes int64) *MediaHandler {
	return &MediaHandler{
		ingest:        ingest,
		query:         query,
		blobs:         blobs,
		audit:         auditLog,
		validate:      validator.New(),
		baseURL:       strings.TrimRight(baseURL, "/"),
		maxPhotoBytes: maxPhotoBytes,
		maxVideoBytes: maxVideoBytes,
	}
}

type uploadForm struct {
	ContributorName  string `validate:"required,max=50"`
	ContributorEmail string `validate:"omitempty,email"`
	Caption          string `validate:"max=200"`
	MediaKind        string `validate:"required,oneof=photo video"`
	DurationSeconds  int    `validate:"min=0,max=86400"`
}

type mediaItemPayload struct {
	ID              string    `json:"id"`
	GalleryID       string    `json:"galleryId"`
	Kind            string    `json:"kind"`
	ContributorName string    `json:"contributorName"`
	Caption         string    `json:"caption,omitempty"`
	FileURL         string    `json:"fileUrl"`
	ThumbnailURL    string    `json:"thumbnailUrl,omitempty"`
	SizeBytes       int64     `json:"sizeBytes"`
	MimeType        string    `json:"mimeType"`
	DurationSeconds int       `json:"durationSeconds,omitempty"`
	Approved        bool      `json:"approved"`
	Degraded        bool      `json:"degraded,omitempty"`
	UploadedAt      time.Time `json:"uploadedAt"`
}

func (h *MediaHandler) payload(item galleries.MediaItem) mediaItemPayload {
	p := mediaItemPayload{
		ID:              item.ID,
		GalleryID:       item.GalleryID,
		Kind:            string(item.Kind),
		ContributorName: item.ContributorName,
		Caption:         item.Caption,
		FileURL:         fmt.Sprintf("%s/api/v1/galleries/%s/media/%s/file", h.baseURL, item.GalleryID, item.ID),
		SizeBytes:       item.SizeBytes,
		MimeType:        item.MimeType,
		DurationSeconds: item.DurationSeconds,
		Approved:        item.Approved,
		Degraded:        item.Degraded,
		UploadedAt:      item.UploadedAt,
	}
	if item.ThumbnailRef != "" {
		p.ThumbnailURL = fmt.Sprintf("%s/api/v1/galleries/%s/media/%s/thumbnail", h.baseURL, item.GalleryID, item.ID)
	}
	return p
}

// Upload ingests one photo or video. The blob is written to object storage
// first; if admission then fails, the handler deletes what it wrote. A failed
// thumbnail write is tolerated: the item persists degraded, without one.
func (h *MediaHandler) Upload(w http.ResponseWriter, r *http.Request) {
	logger := zerolog.Ctx(r.Context())

	galleryID := r.PathValue("id")
	if err := ids.ValidateUUID(galleryID); err != nil {
		respond.Error(w, r, http.StatusBadRequest, respond.CodeValidationError, "invalid gallery id", err)
		return
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		status, code := http.StatusBadRequest, respond.CodeValidationError
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			status, code = http.StatusRequestEntityTooLarge, respond.CodePayloadTooLarge
		}
		respond.Error(w, r, status, code, "malformed upload body", err)
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	form := uploadForm{
		ContributorName:  sanitize.Text(r.FormValue("contributorName")),
		ContributorEmail: strings.TrimSpace(r.FormValue("contributorEmail")),
		Caption:          sanitize.Text(r.FormValue("caption")),
		MediaKind:        r.FormValue("mediaKind"),
	}
	if raw := r.FormValue("durationSeconds"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil {
			respond.Error(w, r, http.StatusBadRequest, respond.CodeValidationError, "durationSeconds must be an integer", err)
			return
		}
		form.DurationSeconds = seconds
	}
	if err := h.validate.Struct(form); err != nil {
		respond.Error(w, r, http.StatusBadRequest, respond.CodeValidationError, "invalid upload fields", err)
		return
	}

	kind := galleries.MediaKind(form.MediaKind)
	file, header, err := r.FormFile("file")
	if err != nil {
		respond.Error(w, r, http.StatusBadRequest, respond.CodeValidationError, "file part is required", err)
		return
	}
	defer file.Close()

	maxBytes := h.maxPhotoBytes
	if kind == galleries.KindVideo {
		maxBytes = h.maxVideoBytes
	}
	if header.Size > maxBytes {
		metrics.UploadsTotal.WithLabelValues(string(kind), "denied").Inc()
		respond.Error(w, r, http.StatusRequestEntityTooLarge, respond.CodePayloadTooLarge,
			fmt.Sprintf("file exceeds %d byte limit", maxBytes), nil)
		return
	}

	uploadID, err := ids.NewULID()
	if err != nil {
		respond.Error(w, r, http.StatusInternalServerError, respond.CodeStorageError, "upload key generation failed", err)
		return
	}
	fileRef := fmt.Sprintf("galleries/%s/%s", galleryID, uploadID)
	contentType := header.Header.Get("Content-Type")

	if err := h.blobs.Put(r.Context(), fileRef, file, header.Size, contentType); err != nil {
		metrics.UploadsTotal.WithLabelValues(string(kind), "failed").Inc()
		respond.Error(w, r, http.StatusBadGateway, respond.CodeStorageError, "media upload to storage failed", err)
		return
	}

	thumbRef, degraded := h.storeThumbnail(r, fileRef, logger)

	item, err := h.ingest.Ingest(r.Context(), galleries.IngestRequest{
		GalleryID:        galleryID,
		ContributorName:  form.ContributorName,
		ContributorEmail: form.ContributorEmail,
		Caption:          form.Caption,
		Kind:             kind,
		DurationSeconds:  form.DurationSeconds,
		FileRef:          fileRef,
		ThumbnailRef:     thumbRef,
		SizeBytes:        header.Size,
		MimeType:         contentType,
		Degraded:         degraded,
	})
	if err != nil {
		h.respondIngestError(w, r, err, kind, fileRef, thumbRef)
		return
	}

	metrics.UploadsTotal.WithLabelValues(string(kind), "accepted").Inc()
	metrics.UploadBytes.WithLabelValues(string(kind)).Observe(float64(header.Size))
	if degraded {
		metrics.ThumbnailFailuresTotal.Inc()
	}

	p := h.payload(*item)
	respond.JSON(w, http.StatusCreated, map[string]any{
		"mediaId":      p.ID,
		"fileUrl":      p.FileURL,
		"thumbnailUrl": p.ThumbnailURL,
		"item":         p,
	})
}

// storeThumbnail writes the optional thumbnail part. Any failure downgrades
// the upload instead of rejecting it.
func (h *MediaHandler) storeThumbnail(r *http.Request, fileRef string, logger *zerolog.Logger) (ref string, degraded bool) {
	thumb, thumbHeader, err := r.FormFile("thumbnail")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return "", false
		}
		logger.Warn().Err(err).Msg("thumbnail part unreadable, storing without thumbnail")
		return "", true
	}
	defer thumb.Close()

	ref = fileRef + "_thumb"
	if err := h.blobs.Put(r.Context(), ref, thumb, thumbHeader.Size, thumbHeader.Header.Get("Content-Type")); err != nil {
		logger.Warn().Err(err).Str("ref", ref).Msg("thumbnail write failed, storing without thumbnail")
		return "", true
	}
	return ref, false
}

func (h *MediaHandler) respondIngestError(w http.ResponseWriter, r *http.Request, err error, kind galleries.MediaKind, refs ...string) {
	var denied galleries.DeniedError
	switch {
	case errors.As(err, &denied):
		// Admission refused after the blob write; the blob is ours to clean up.
		h.cleanupBlobs(r, refs)
		metrics.UploadsTotal.WithLabelValues(string(kind), "denied").Inc()
		metrics.UploadDenialsTotal.WithLabelValues(string(denied.Reason)).Inc()
		status, code, message := denialResponse(denied.Reason, kind)
		respond.Error(w, r, status, code, message, err)
	case errors.Is(err, galleries.ErrNotFound):
		h.cleanupBlobs(r, refs)
		metrics.UploadsTotal.WithLabelValues(string(kind), "denied").Inc()
		respond.Error(w, r, http.StatusNotFound, respond.CodeGalleryNotFound, "gallery not found", err)
	default:
		// The pipeline already issued compensating blob deletes.
		metrics.UploadsTotal.WithLabelValues(string(kind), "failed").Inc()
		respond.Error(w, r, http.StatusInternalServerError, respond.CodeDatabaseError, "media record write failed", err)
	}
}

func (h *MediaHandler) cleanupBlobs(r *http.Request, refs []string) {
	logger := zerolog.Ctx(r.Context())
	for _, ref := range refs {
		if ref == "" {
			continue
		}
		if err := h.blobs.Delete(r.Context(), ref); err != nil {
			logger.Warn().Err(err).Str("ref", ref).Msg("orphaned blob cleanup failed")
		}
	}
}

func denialResponse(reason galleries.DenialReason, kind galleries.MediaKind) (int, string, string) {
	switch reason {
	case galleries.DenyEventInactive:
		return http.StatusConflict, respond.CodeEventInactive, "gallery is not active"
	case galleries.DenyEventExpired:
		return http.StatusGone, respond.CodeGalleryExpired, "gallery has expired"
	case galleries.DenyVideoNotEnabled:
		return http.StatusForbidden, respond.CodeVideoNotEnabled, "video uploads are not enabled for this gallery"
	case galleries.DenyVideoQuotaExceeded:
		return http.StatusForbidden, respond.CodeEventVideoLimit, "gallery video limit reached"
	case galleries.DenyUserQuotaExceeded:
		return http.StatusForbidden, respond.CodeUserPhotoLimit, "contributor photo limit reached"
	case galleries.DenyEventQuotaExceeded:
		if kind == galleries.KindVideo {
			return http.StatusForbidden, respond.CodeEventVideoLimit, "gallery video limit reached"
		}
		return http.StatusForbidden, respond.CodeEventPhotoLimit, "gallery photo limit reached"
	default:
		return http.StatusForbidden, respond.CodeValidationError, "upload denied"
	}
}

// List serves one page of the gallery, filtered and merge-sorted across
// photos and videos.
func (h *MediaHandler) List(w http.ResponseWriter, r *http.Request) {
	galleryID := r.PathValue("id")
	if err := ids.ValidateUUID(galleryID); err != nil {
		respond.Error(w, r, http.StatusBadRequest, respond.CodeValidationError, "invalid gallery id", err)
		return
	}

	query, err := galleries.ParseQuery(r.URL.Query())
	if err != nil {
		respond.Error(w, r, http.StatusBadRequest, respond.CodeValidationError, err.Error(), err)
		return
	}

	result, err := h.query.Query(r.Context(), galleryID, query)
	if err != nil {
		if errors.Is(err, galleries.ErrNotFound) {
			respond.Error(w, r, http.StatusNotFound, respond.CodeGalleryNotFound, "gallery not found", err)
			return
		}
		respond.Error(w, r, http.StatusInternalServerError, respond.CodeDatabaseError, "gallery query failed", err)
		return
	}

	items := make([]mediaItemPayload, 0, len(result.Items))
	for _, item := range result.Items {
		items = append(items, h.payload(item))
	}

	respond.JSON(w, http.StatusOK, map[string]any{
		"items":      items,
		"pagination": result.Pagination,
		"filters": map[string]any{
			"search":      query.Search,
			"contributor": query.Contributor,
			"sortBy":      string(query.Sort),
			"type":        string(query.Kind),
		},
	})
}

// Delete removes one media item on behalf of the gallery host and emits a
// delete delta to connected viewers.
func (h *MediaHandler) Delete(w http.ResponseWriter, r *http.Request) {
	host := middleware.HostFromContext(r.Context())
	if host == nil {
		respond.Error(w, r, http.StatusUnauthorized, respond.CodeAuthRequired, "authentication required", nil)
		return
	}

	galleryID := r.PathValue("id")
	mediaID := r.PathValue("mediaId")
	if err := ids.ValidateUUID(galleryID); err != nil {
		respond.Error(w, r, http.StatusBadRequest, respond.CodeValidationError, "invalid gallery id", err)
		return
	}
	if err := ids.ValidateULID(mediaID); err != nil {
		respond.Error(w, r, http.StatusBadRequest, respond.CodeValidationError, "invalid media id", err)
		return
	}

	if err := h.ingest.Delete(r.Context(), galleryID, mediaID, host.Subject); err != nil {
		h.audit.LogFromRequest(r, "media.delete", "media", mediaID, "failure")
		switch {
		case errors.Is(err, galleries.ErrMediaNotFound):
			respond.Error(w, r, http.StatusNotFound, respond.CodeMediaNotFound, "media item not found", err)
		case errors.Is(err, galleries.ErrNotFound):
			respond.Error(w, r, http.StatusNotFound, respond.CodeGalleryNotFound, "gallery not found", err)
		case errors.Is(err, galleries.ErrNotOwner):
			respond.Error(w, r, http.StatusForbidden, respond.CodeForbidden, "gallery belongs to a different host", err)
		default:
			respond.Error(w, r, http.StatusInternalServerError, respond.CodeDatabaseError, "media delete failed", err)
		}
		return
	}

	h.audit.LogFromRequest(r, "media.delete", "media", mediaID, "success")
	respond.JSON(w, http.StatusOK, map[string]any{"deleted": mediaID})
}

// ServeFile streams the stored media blob.
func (h *MediaHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	h.serveBlob(w, r, false)
}

// ServeThumbnail streams the stored thumbnail blob.
func (h *MediaHandler) ServeThumbnail(w http.ResponseWriter, r *http.Request) {
	h.serveBlob(w, r, true)
}

func (h *MediaHandler) serveBlob(w http.ResponseWriter, r *http.Request, thumbnail bool) {
	galleryID := r.PathValue("id")
	mediaID := r.PathValue("mediaId")

	item, err := h.query.GetMedia(r.Context(), galleryID, mediaID)
	if err != nil {
		if errors.Is(err, galleries.ErrMediaNotFound) || errors.Is(err, galleries.ErrNotFound) {
			respond.Error(w, r, http.StatusNotFound, respond.CodeMediaNotFound, "media item not found", err)
			return
		}
		respond.Error(w, r, http.StatusInternalServerError, respond.CodeDatabaseError, "media lookup failed", err)
		return
	}

	ref := item.FileRef
	if thumbnail {
		if item.ThumbnailRef == "" {
			respond.Error(w, r, http.StatusNotFound, respond.CodeMediaNotFound, "media item has no thumbnail", nil)
			return
		}
		ref = item.ThumbnailRef
	}

	body, contentType, err := h.blobs.Open(r.Context(), ref)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			respond.Error(w, r, http.StatusNotFound, respond.CodeStorageError, "stored object missing", err)
			return
		}
		respond.Error(w, r, http.StatusBadGateway, respond.CodeStorageError, "storage read failed", err)
		return
	}
	defer body.Close()

	if contentType == "" {
		contentType = item.MimeType
	}
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.Header().Set("Cache-Control", "private, max-age=3600")
	_, _ = io.Copy(w, body)
}
