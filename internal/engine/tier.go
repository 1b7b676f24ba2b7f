package engine

import (
	"time"

	"github.com/stratumhq/stratum/internal/model"
)

// Recency bands for tier placement.
const (
	hotWindow  = 24 * time.Hour
	warmWindow = 7 * 24 * time.Hour
	coldWindow = 30 * 24 * time.Hour
)

// TierFor derives the storage tier from importance, time since last
// access, and remaining time to expiry. Pure and deterministic: the same
// inputs always classify to the same tier, which is what makes
// promote/demote round-trips restore the original placement.
//
// untilExpiry is nil for memories without an expiry.
func TierFor(imp model.Importance, sinceAccess time.Duration, untilExpiry *time.Duration) model.Tier {
	// Base band from access recency: 0=hot .. 3=frozen.
	band := 3
	switch {
	case sinceAccess < hotWindow:
		band = 0
	case sinceAccess < warmWindow:
		band = 1
	case sinceAccess < coldWindow:
		band = 2
	}

	switch imp {
	case model.ImportanceCritical, model.ImportanceHigh:
		band--
	case model.ImportanceEphemeral:
		band++
	}

	// Data about to expire is not worth premium placement.
	if untilExpiry != nil && *untilExpiry < hotWindow {
		band++
	}

	if band < 0 {
		band = 0
	}
	if band > 3 {
		band = 3
	}

	// Critical memories never sink below warm while live.
	if imp == model.ImportanceCritical && band > 1 {
		band = 1
	}

	return model.AllTiers[band]
}

// tierForMemory applies TierFor to a memory's current state at the given
// instant.
func tierForMemory(m *model.Memory, now time.Time) model.Tier {
	var untilExpiry *time.Duration
	if m.ExpiresAt != nil {
		d := m.ExpiresAt.Sub(now)
		untilExpiry = &d
	}
	return TierFor(m.Importance, now.Sub(m.AccessedAt), untilExpiry)
}
