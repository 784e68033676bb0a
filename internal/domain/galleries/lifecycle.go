package galleries

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/snaproll/server/internal/domain/ids"
)

var ErrInvalidTransition = errors.New("invalid gallery status transition")

var ErrUnknownTier = errors.New("unknown subscription tier")

// ErrNotOwner rejects a host-scoped operation on a gallery created by a
// different host. A valid token is not enough; the gallery must be theirs.
var ErrNotOwner = errors.New("gallery belongs to a different host")

type CreateGalleryInput struct {
	HostID    string
	HostEmail string
	Name      string
	Tier      Tier
}

// AdminService covers the host-scoped lifecycle operations: create, archive,
// restore, and tier upgrades that extend expiry.
type AdminService struct {
	repo   Repository
	logger zerolog.Logger
	now    func() time.Time
}

func NewAdminService(repo Repository, logger zerolog.Logger) *AdminService {
	return &AdminService{repo: repo, logger: logger, now: time.Now}
}

func (s *AdminService) Create(ctx context.Context, input CreateGalleryInput) (*Gallery, error) {
	limits, ok := LimitsFor(input.Tier)
	if !ok {
		return nil, ErrUnknownTier
	}

	now := s.now()
	gallery, err := s.repo.CreateGallery(ctx, GalleryCreateParams{
		ID:        ids.NewUUID(),
		HostID:    input.HostID,
		HostEmail: input.HostEmail,
		Name:      input.Name,
		Tier:      input.Tier,
		Limits:    limits,
		ExpiresAt: now.Add(time.Duration(limits.StorageDays) * 24 * time.Hour),
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("gallery_id", gallery.ID).
		Str("tier", string(gallery.Tier)).
		Time("expires_at", gallery.ExpiresAt).
		Msg("gallery created")
	return gallery, nil
}

func (s *AdminService) Get(ctx context.Context, id string) (*Gallery, error) {
	return s.repo.GetGallery(ctx, id)
}

// Archive hides an active gallery without touching its content. Reversible via
// Restore.
func (s *AdminService) Archive(ctx context.Context, id, hostID string) (*Gallery, error) {
	return s.transition(ctx, id, hostID, StatusActive, StatusArchived)
}

// Restore returns an archived gallery to active. An archived gallery whose
// expiry passed while hidden becomes active and is picked up by the next sweep.
func (s *AdminService) Restore(ctx context.Context, id, hostID string) (*Gallery, error) {
	return s.transition(ctx, id, hostID, StatusArchived, StatusActive)
}

// ExtendExpiration upgrades the gallery to newTier: quota fields are replaced
// by the new tier's limits and expiry restarts from now. Upgrading an expired
// gallery reactivates it; that is the point of paying for the upgrade, and an
// expired gallery with a future expiresAt would otherwise be unreachable to
// both uploads and the sweeper. Archived galleries must be restored first.
func (s *AdminService) ExtendExpiration(ctx context.Context, id, hostID string, newTier Tier) (*Gallery, error) {
	limits, ok := LimitsFor(newTier)
	if !ok {
		return nil, ErrUnknownTier
	}

	gallery, err := s.repo.GetGallery(ctx, id)
	if err != nil {
		return nil, err
	}
	if gallery.HostID != hostID {
		return nil, ErrNotOwner
	}
	if gallery.Status == StatusArchived {
		return nil, fmt.Errorf("%w: cannot extend an archived gallery", ErrInvalidTransition)
	}

	status := gallery.Status
	if status == StatusExpired {
		status = StatusActive
	}

	updated, err := s.repo.UpdatePlan(ctx, PlanUpdateParams{
		GalleryID: id,
		Tier:      newTier,
		Limits:    limits,
		ExpiresAt: s.now().Add(time.Duration(limits.StorageDays) * 24 * time.Hour),
		Status:    status,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("gallery_id", id).
		Str("tier", string(newTier)).
		Time("expires_at", updated.ExpiresAt).
		Msg("gallery plan extended")
	return updated, nil
}

func (s *AdminService) transition(ctx context.Context, id, hostID string, from, to Status) (*Gallery, error) {
	gallery, err := s.repo.GetGallery(ctx, id)
	if err != nil {
		return nil, err
	}
	if gallery.HostID != hostID {
		return nil, ErrNotOwner
	}

	changed, err := s.repo.TransitionStatus(ctx, id, from, to)
	if err != nil {
		return nil, err
	}
	if !changed {
		// Either the gallery is missing or it is not in the expected state;
		// re-read to tell the two apart.
		gallery, err := s.repo.GetGallery(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s -> %s (current %s)", ErrInvalidTransition, from, to, gallery.Status)
	}
	return s.repo.GetGallery(ctx, id)
}
