package core

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"trackflow-backend/configs"
	"trackflow-backend/internal/models"
)

func newUserFixture(users ...*models.User) (*userService, *memUserRepo, *stubAudit) {
	repo := newMemUserRepo(users...)
	audit := &stubAudit{}
	svc := NewUserService(repo, configs.DefaultCatalog(), audit, zap.NewNop()).(*userService)
	svc.now = fixedClock(time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC))
	return svc, repo, audit
}

func TestGetOrCreateInitializesDefaults(t *testing.T) {
	svc, repo, audit := newUserFixture()

	user, created, err := svc.GetOrCreate(context.Background(), Identity{UserID: "u1", Email: "a@example.com", DisplayName: "Ada"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, []string{"prayer", "coding"}, user.ActiveTrackers)
	assert.Equal(t, 30, user.DailyGoal)
	assert.False(t, user.IsPremium)
	assert.NotNil(t, repo.get("u1"))
	assert.Equal(t, []string{models.ActionUserInitialize}, audit.actions())

	again, created, err := svc.GetOrCreate(context.Background(), Identity{UserID: "u1", Email: "a@example.com"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "Ada", again.DisplayName)
}

func TestGetOrCreateSyncsVerifiedEmail(t *testing.T) {
	svc, repo, _ := newUserFixture(&models.User{ID: "u1", Email: "old@example.com"})

	user, _, err := svc.GetOrCreate(context.Background(), Identity{UserID: "u1", Email: "new@example.com", EmailVerified: true})
	require.NoError(t, err)
	assert.True(t, user.EmailVerified)
	stored := repo.get("u1")
	assert.True(t, stored.EmailVerified)
	assert.Equal(t, "new@example.com", stored.Email)
}

func TestUpdateProfile(t *testing.T) {
	svc, repo, _ := newUserFixture(&models.User{ID: "u1", DailyGoal: 30})
	goal := 45
	zone := "Europe/Lisbon"
	name := "  Ada L. "

	user, err := svc.UpdateProfile(context.Background(), "u1", models.UpdateProfileRequest{
		DisplayName:  &name,
		DailyGoal:    &goal,
		Timezone:     &zone,
		TrackerGoals: map[string]float64{"prayer": 3},
	})
	require.NoError(t, err)
	assert.Equal(t, "Ada L.", user.DisplayName)
	assert.Equal(t, 45, repo.get("u1").DailyGoal)
	assert.Equal(t, "Europe/Lisbon", repo.get("u1").Timezone)
	assert.Equal(t, 3.0, repo.get("u1").TrackerGoals["prayer"])

	bad := "Mars/Olympus"
	_, err = svc.UpdateProfile(context.Background(), "u1", models.UpdateProfileRequest{Timezone: &bad})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.UpdateProfile(context.Background(), "u1", models.UpdateProfileRequest{TrackerGoals: map[string]float64{"knitting": 1}})
	assert.ErrorIs(t, err, ErrTrackerNotFound)

	_, err = svc.UpdateProfile(context.Background(), "missing", models.UpdateProfileRequest{})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestSetActiveTrackers(t *testing.T) {
	svc, repo, _ := newUserFixture(
		&models.User{ID: "free"},
		&models.User{ID: "pro", IsPremium: true},
	)

	user, err := svc.SetActiveTrackers(context.Background(), "free", []string{"coding", "prayer", "coding"})
	require.NoError(t, err)
	assert.Equal(t, []string{"coding", "prayer"}, user.ActiveTrackers)

	_, err = svc.SetActiveTrackers(context.Background(), "free", []string{"coding", "workout"})
	assert.ErrorIs(t, err, ErrPremiumRequired)
	assert.Equal(t, []string{"coding", "prayer"}, repo.get("free").ActiveTrackers)

	user, err = svc.SetActiveTrackers(context.Background(), "pro", []string{"workout", "nutrition"})
	require.NoError(t, err)
	assert.Equal(t, []string{"workout", "nutrition"}, user.ActiveTrackers)
}

func TestAddCustomTrackerRespectsPlanLimit(t *testing.T) {
	svc, repo, _ := newUserFixture(&models.User{ID: "u1", ActiveTrackers: []string{"coding"}})

	ct, err := svc.AddCustomTracker(context.Background(), "u1", models.CreateCustomTrackerRequest{Name: " Reading ", DailyGoal: 20})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ct.ID, CustomTrackerPrefix))
	assert.Equal(t, "Reading", ct.Name)
	assert.Equal(t, configs.GoalMinutes, ct.Unit)
	assert.Equal(t, []string{"coding", ct.ID}, repo.get("u1").ActiveTrackers)

	_, err = svc.AddCustomTracker(context.Background(), "u1", models.CreateCustomTrackerRequest{Name: "Piano"})
	assert.ErrorIs(t, err, ErrCustomTrackerLimit, "free plan allows one custom tracker")
}

func TestAddCustomTrackerPremium(t *testing.T) {
	svc, _, _ := newUserFixture(&models.User{ID: "u1", IsPremium: true})

	_, err := svc.AddCustomTracker(context.Background(), "u1", models.CreateCustomTrackerRequest{Name: "Reading"})
	require.NoError(t, err)
	_, err = svc.AddCustomTracker(context.Background(), "u1", models.CreateCustomTrackerRequest{Name: "Piano"})
	require.NoError(t, err)
	_, err = svc.AddCustomTracker(context.Background(), "u1", models.CreateCustomTrackerRequest{Name: "reading"})
	assert.ErrorIs(t, err, ErrCustomTrackerExists)
}

func TestRemoveCustomTracker(t *testing.T) {
	svc, repo, audit := newUserFixture(&models.User{
		ID:             "u1",
		ActiveTrackers: []string{"coding", "custom-a"},
		CustomTrackers: []models.CustomTracker{{ID: "custom-a", Name: "Reading"}},
		TrackerGoals:   map[string]float64{"custom-a": 10},
	})

	require.NoError(t, svc.RemoveCustomTracker(context.Background(), "u1", "custom-a"))
	stored := repo.get("u1")
	assert.Empty(t, stored.CustomTrackers)
	assert.Equal(t, []string{"coding"}, stored.ActiveTrackers)
	assert.NotContains(t, stored.TrackerGoals, "custom-a")
	assert.Equal(t, []string{models.ActionCustomTrackerDel}, audit.actions())

	assert.ErrorIs(t, svc.RemoveCustomTracker(context.Background(), "u1", "custom-a"), ErrTrackerNotFound)
}
