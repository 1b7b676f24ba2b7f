package engine

import (
	"testing"
	"time"

	"github.com/stratumhq/stratum/internal/model"
)

func TestTierFor(t *testing.T) {
	hour := time.Hour
	cases := []struct {
		name        string
		importance  model.Importance
		sinceAccess time.Duration
		untilExpiry *time.Duration
		want        model.Tier
	}{
		{"fresh medium", model.ImportanceMedium, hour, nil, model.TierHot},
		{"day-old medium", model.ImportanceMedium, 25 * hour, nil, model.TierWarm},
		{"week-old medium", model.ImportanceMedium, 8 * 24 * hour, nil, model.TierCold},
		{"month-old medium", model.ImportanceMedium, 31 * 24 * hour, nil, model.TierFrozen},
		{"high importance lifts a band", model.ImportanceHigh, 25 * hour, nil, model.TierHot},
		{"ephemeral sinks a band", model.ImportanceEphemeral, hour, nil, model.TierWarm},
		{"critical never below warm", model.ImportanceCritical, 60 * 24 * hour, nil, model.TierWarm},
		{"expiring soon sinks", model.ImportanceMedium, hour, durPtr(30 * time.Minute), model.TierWarm},
		{"fresh critical", model.ImportanceCritical, time.Minute, nil, model.TierHot},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := TierFor(tc.importance, tc.sinceAccess, tc.untilExpiry)
			if got != tc.want {
				t.Errorf("TierFor(%s, %v) = %s, want %s", tc.importance, tc.sinceAccess, got, tc.want)
			}
		})
	}
}

func TestTierForIsDeterministic(t *testing.T) {
	for i := 0; i < 5; i++ {
		if got := TierFor(model.ImportanceLow, 3*24*time.Hour, nil); got != model.TierWarm {
			t.Fatalf("run %d: got %s", i, got)
		}
	}
}

func durPtr(d time.Duration) *time.Duration { return &d }
