package galleries

// TierLimits is the static plan table. It is configuration, not user data:
// changing a value here changes what new galleries (and upgrades) get, never
// what existing rows already store.
type TierLimits struct {
	MaxPhotos        int
	MaxPhotosPerUser int
	MaxVideos        int
	StorageDays      int
	HasVideoAddon    bool
	PriceCents       int
}

var tierLimits = map[Tier]TierLimits{
	TierFree:     {MaxPhotos: 100, MaxPhotosPerUser: 10, MaxVideos: 0, StorageDays: 3, HasVideoAddon: false, PriceCents: 0},
	TierBasic:    {MaxPhotos: 500, MaxPhotosPerUser: 50, MaxVideos: 0, StorageDays: 7, HasVideoAddon: false, PriceCents: 2900},
	TierStandard: {MaxPhotos: 1000, MaxPhotosPerUser: 100, MaxVideos: 25, StorageDays: 14, HasVideoAddon: true, PriceCents: 5900},
	TierPremium:  {MaxPhotos: 2500, MaxPhotosPerUser: 250, MaxVideos: 100, StorageDays: 30, HasVideoAddon: true, PriceCents: 9900},
	TierPro:      {MaxPhotos: 5000, MaxPhotosPerUser: 500, MaxVideos: 250, StorageDays: 90, HasVideoAddon: true, PriceCents: 19900},
}

// LimitsFor returns the limit table entry for a tier. The second return is
// false for unknown tiers.
func LimitsFor(tier Tier) (TierLimits, bool) {
	limits, ok := tierLimits[tier]
	return limits, ok
}

func IsValidTier(tier Tier) bool {
	_, ok := tierLimits[tier]
	return ok
}
