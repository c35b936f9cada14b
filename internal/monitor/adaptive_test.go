package monitor

import (
	"testing"

	"github.com/signalwatch/signalwatch/internal/model"
	"github.com/stretchr/testify/assert"
)

func defaultTestProfile() model.AdaptiveProfile {
	return model.AdaptiveProfile{
		Enabled:  true,
		Target:   3,
		Band:     1,
		Step:     5,
		MinBound: 0,
		MaxBound: 80,
	}
}

func TestControllerDecide(t *testing.T) {
	tests := []struct {
		name          string
		alertCount    int
		wantDirection string
		wantScore     int
	}{
		{name: "well above target raises", alertCount: 5, wantDirection: model.AdaptiveUp, wantScore: 45},
		{name: "upper band edge holds", alertCount: 4, wantDirection: model.AdaptiveHold, wantScore: 40},
		{name: "on target holds", alertCount: 3, wantDirection: model.AdaptiveHold, wantScore: 40},
		{name: "lower band edge holds", alertCount: 2, wantDirection: model.AdaptiveHold, wantScore: 40},
		{name: "below band lowers", alertCount: 1, wantDirection: model.AdaptiveDown, wantScore: 35},
		{name: "quiet cycle lowers", alertCount: 0, wantDirection: model.AdaptiveDown, wantScore: 35},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewController(map[string]model.AdaptiveProfile{"market_open": defaultTestProfile()}, 40)
			decision := c.Decide("market_open", tt.alertCount)
			assert.Equal(t, tt.wantDirection, decision.Direction)
			assert.Equal(t, 40, decision.OldScore)
			assert.Equal(t, tt.wantScore, decision.NewScore)
			assert.Equal(t, tt.wantScore, c.Threshold("market_open"))
		})
	}
}

func TestControllerRespectsBounds(t *testing.T) {
	profile := defaultTestProfile()
	profile.MinBound = 38
	profile.MaxBound = 42
	c := NewController(map[string]model.AdaptiveProfile{"p": profile}, 40)

	decision := c.Decide("p", 10)
	assert.Equal(t, 42, decision.NewScore, "raise clamps at max bound")

	decision = c.Decide("p", 10)
	assert.Equal(t, model.AdaptiveHold, decision.Direction, "pinned at max bound is a hold")
	assert.Equal(t, 42, decision.NewScore)

	c.Decide("p", 0)
	decision = c.Decide("p", 0)
	assert.Equal(t, 38, c.Threshold("p"), "lower clamps at min bound")
	assert.Equal(t, model.AdaptiveHold, decision.Direction)
}

func TestControllerDisabledProfileHolds(t *testing.T) {
	profile := defaultTestProfile()
	profile.Enabled = false
	c := NewController(map[string]model.AdaptiveProfile{"p": profile}, 40)

	decision := c.Decide("p", 50)
	assert.Equal(t, model.AdaptiveHold, decision.Direction)
	assert.Equal(t, 40, c.Threshold("p"))
}

func TestControllerDisabledUsesStaticFloor(t *testing.T) {
	// A disabled profile never imposes its bounds on the threshold
	profile := defaultTestProfile()
	profile.Enabled = false
	profile.MinBound = 10
	c := NewController(map[string]model.AdaptiveProfile{"night_watch": profile}, 0)
	assert.Equal(t, 0, c.Threshold("night_watch"))

	// Disabling after adjustments reverts to the floor instead of
	// freezing the last adaptive value
	c = NewController(map[string]model.AdaptiveProfile{"market_open": defaultTestProfile()}, 40)
	c.Decide("market_open", 10)
	assert.Equal(t, 45, c.Threshold("market_open"))

	disabled := defaultTestProfile()
	disabled.Enabled = false
	c.UpdateProfile("market_open", disabled)
	assert.Equal(t, 40, c.Threshold("market_open"))
}

func TestControllerUnknownPolicyUsesBaseline(t *testing.T) {
	c := NewController(nil, 25)
	assert.Equal(t, 25, c.Threshold("anything"))

	decision := c.Decide("anything", 100)
	assert.Equal(t, model.AdaptiveHold, decision.Direction)
	assert.Equal(t, 25, decision.NewScore)
}

func TestControllerUpdateProfileClampsCurrent(t *testing.T) {
	c := NewController(map[string]model.AdaptiveProfile{"p": defaultTestProfile()}, 40)
	c.Decide("p", 10) // 45

	tightened := defaultTestProfile()
	tightened.MaxBound = 42
	c.UpdateProfile("p", tightened)
	assert.Equal(t, 42, c.Threshold("p"))
}

func TestControllerReset(t *testing.T) {
	profiles := map[string]model.AdaptiveProfile{
		"a": defaultTestProfile(),
		"b": defaultTestProfile(),
	}
	c := NewController(profiles, 40)
	c.Decide("a", 10)
	c.Decide("b", 10)

	c.Reset("a")
	assert.Equal(t, 40, c.Threshold("a"))
	assert.Equal(t, 45, c.Threshold("b"))

	c.Reset("")
	assert.Equal(t, 40, c.Threshold("b"))
}

func TestControllerSnapshot(t *testing.T) {
	c := NewController(map[string]model.AdaptiveProfile{"p": defaultTestProfile()}, 40)
	c.Decide("p", 10)

	snap := c.Snapshot()
	assert.Len(t, snap, 1)
	assert.Equal(t, 45, snap["p"].Threshold)
	assert.True(t, snap["p"].Profile.Enabled)
}
