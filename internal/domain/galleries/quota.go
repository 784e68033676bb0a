package galleries

import "time"

type DenialReason string

const (
	DenyEventInactive      DenialReason = "event_inactive"
	DenyEventExpired       DenialReason = "event_expired"
	DenyEventQuotaExceeded DenialReason = "event_quota_exceeded"
	DenyUserQuotaExceeded  DenialReason = "user_quota_exceeded"
	DenyVideoNotEnabled    DenialReason = "video_not_enabled"
	DenyVideoQuotaExceeded DenialReason = "video_quota_exceeded"
)

// Decision is the result of an upload admission check.
type Decision struct {
	Allowed bool
	Reason  DenialReason
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(reason DenialReason) Decision {
	return Decision{Reason: reason}
}

// CheckUpload decides whether one more item of the given kind may enter the
// gallery. It is pure: counters are only ever incremented after the record
// write is confirmed, so a denied or failed request never reserves quota.
//
// contributor may be nil (anonymous upload); the per-user check is skipped in
// that case rather than failing.
func CheckUpload(g *Gallery, contributor *ContributorAggregate, kind MediaKind, now time.Time) Decision {
	if g.Status != StatusActive {
		return deny(DenyEventInactive)
	}
	if !now.Before(g.ExpiresAt) {
		return deny(DenyEventExpired)
	}

	if kind == KindVideo {
		if !g.HasVideoAddon {
			return deny(DenyVideoNotEnabled)
		}
		if g.TotalVideos >= g.MaxVideos {
			return deny(DenyVideoQuotaExceeded)
		}
		return allow()
	}

	if g.TotalPhotos >= g.MaxPhotos {
		return deny(DenyEventQuotaExceeded)
	}
	if contributor != nil && contributor.PhotoCount >= g.MaxPhotosPerUser {
		return deny(DenyUserQuotaExceeded)
	}
	return allow()
}
