package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clock(t *testing.T, hhmm string) time.Time {
	t.Helper()
	parsed, err := time.Parse("15:04", hhmm)
	require.NoError(t, err)
	return time.Date(2026, 3, 10, parsed.Hour(), parsed.Minute(), 0, 0, time.UTC)
}

func TestResolvePolicy(t *testing.T) {
	policies := DefaultPolicies()

	tests := []struct {
		now  string
		want string
	}{
		{now: "08:00", want: PolicyPreMarket},
		{now: "08:59", want: PolicyPreMarket},
		{now: "09:00", want: PolicyMarketOpen},
		{now: "12:15", want: PolicyMarketOpen},
		{now: "15:29", want: PolicyMarketOpen},
		{now: "15:30", want: PolicyAfterClose},
		{now: "17:59", want: PolicyAfterClose},
		{now: "18:00", want: PolicyNightWatch},
		{now: "23:59", want: PolicyNightWatch},
		{now: "00:00", want: PolicyNightWatch},
		{now: "07:59", want: PolicyNightWatch},
	}

	for _, tt := range tests {
		t.Run(tt.now, func(t *testing.T) {
			got := ResolvePolicy(clock(t, tt.now), policies)
			assert.Equal(t, tt.want, got.Name)
		})
	}
}

func TestResolvePolicy_FallsBackToLastPolicy(t *testing.T) {
	// A schedule with a gap between 10:00 and 12:00
	policies := DefaultPolicies()[:2]
	policies[1].End = "10:00"
	policies = append(policies, DefaultPolicies()[2])
	policies[2].Start = "12:00"

	got := ResolvePolicy(clock(t, "11:00"), policies)
	assert.Equal(t, PolicyAfterClose, got.Name)
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		input   string
		want    int
		wantErr bool
	}{
		{input: "00:00", want: 0},
		{input: "09:30", want: 570},
		{input: "23:59", want: 1439},
		{input: "24:00", wantErr: true},
		{input: "09:60", wantErr: true},
		{input: "nine", wantErr: true},
		{input: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseClock(tt.input)
		if tt.wantErr {
			assert.Error(t, err, tt.input)
			continue
		}
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.want, got, tt.input)
	}
}

func TestDefaultProfiles(t *testing.T) {
	base := DefaultPolicies()
	profiles := DefaultProfiles(defaultTestProfile())

	require.Len(t, profiles, len(base))
	for _, p := range base {
		assert.Contains(t, profiles, p.Name)
	}

	assert.Equal(t, 4, profiles[PolicyMarketOpen].Target)
	assert.Equal(t, 1, profiles[PolicyNightWatch].Target)
	assert.Equal(t, 0, profiles[PolicyNightWatch].Band)
	assert.Equal(t, 10, profiles[PolicyNightWatch].MinBound)
	assert.Equal(t, 70, profiles[PolicyPreMarket].MaxBound)
}
