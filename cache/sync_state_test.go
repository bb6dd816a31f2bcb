package cache

import (
	"testing"
	"time"
)

func TestWatermarkAdvances(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name     string
		stored   *time.Time
		computed time.Time
		want     bool
	}{
		{"no stored watermark", nil, base, true},
		{"newer computed", &base, base.Add(time.Hour), true},
		{"equal computed", &base, base, true},
		{"older computed must not regress", &base, base.Add(-time.Second), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := watermarkAdvances(tc.stored, tc.computed); got != tc.want {
				t.Errorf("watermarkAdvances() = %v, want %v", got, tc.want)
			}
		})
	}
}
