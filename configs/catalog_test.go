package configs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()

	assert.Equal(t, []string{"prayer", "coding"}, c.FreeTrackerKeys())

	workout, ok := c.Tracker("workout")
	require.True(t, ok)
	assert.True(t, workout.Premium)
	assert.Equal(t, "workouts", workout.Collection)
	assert.True(t, workout.AllowsMetric("calories"))
	assert.False(t, workout.AllowsMetric("mood"))

	mental, ok := c.Tracker("mentalHealth")
	require.True(t, ok)
	assert.True(t, mental.EncryptNotes)

	pro, ok := c.Plan("pro")
	require.True(t, ok)
	assert.Equal(t, int64(999), pro.PriceCents)
	assert.Equal(t, 20, c.Limits(PlanPro).InsightsPerDay)
	assert.Equal(t, 3, c.Limits("unknown").InsightsPerDay)
}

func TestCouponLookupIgnoresCase(t *testing.T) {
	c := DefaultCatalog()

	for _, code := range []string{"AMIPRO", "amipro", "  AmiPro "} {
		cp, ok := c.Coupon(code)
		require.True(t, ok, code)
		assert.Equal(t, 100, cp.PercentOff)
		assert.Equal(t, 30, cp.TrialDays)
	}
	_, ok := c.Coupon("FREESTUFF")
	assert.False(t, ok)
}

func TestTrackerByPath(t *testing.T) {
	c := DefaultCatalog()

	tr, ok := c.TrackerByPath("/workout")
	require.True(t, ok)
	assert.Equal(t, "workout", tr.Key)

	tr, ok = c.TrackerByPath("/mental-health/journal")
	require.True(t, ok)
	assert.Equal(t, "mentalHealth", tr.Key)

	_, ok = c.TrackerByPath("/workouts-old")
	assert.False(t, ok)
	_, ok = c.TrackerByPath("/dashboard")
	assert.False(t, ok)
}

func TestParseCatalogRejectsInvalid(t *testing.T) {
	_, err := ParseCatalog([]byte("plans: [{id: FREE}]"))
	assert.ErrorContains(t, err, "PRO")

	_, err = ParseCatalog([]byte(`
plans: [{id: FREE}, {id: PRO}]
trackers:
  - {key: a, path: /a, collection: a}
  - {key: a, path: /b, collection: b}
`))
	assert.ErrorContains(t, err, "duplicate")

	_, err = ParseCatalog([]byte(`
plans: [{id: FREE}, {id: PRO}]
coupons: [{code: X, plan: GOLD, percent_off: 10}]
`))
	assert.ErrorContains(t, err, "unknown plan")
}

func TestLoadCatalogFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
plans: [{id: FREE}, {id: PRO, price_cents: 500}]
trackers:
  - {key: reading, path: /reading, collection: reading}
`), 0o600))

	c, err := LoadCatalog(path)
	require.NoError(t, err)

	tr, ok := c.Tracker("reading")
	require.True(t, ok)
	assert.Equal(t, GoalMinutes, tr.GoalMetric)
	assert.Equal(t, "customEntries", c.CustomCollection)

	_, err = LoadCatalog(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
