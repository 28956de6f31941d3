package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"trackflow-backend/configs"
	"trackflow-backend/internal/db"
	"trackflow-backend/internal/models"
)

const defaultDailyGoalMinutes = 30

// CustomTrackerPrefix starts every custom tracker ID.
const CustomTrackerPrefix = "custom-"

var (
	ErrCustomTrackerLimit  = errors.New("custom tracker limit reached for the current plan")
	ErrCustomTrackerExists = errors.New("a custom tracker with this name already exists")
)

// userService implements the UserService interface.
type userService struct {
	userRepo     db.UserRepository
	catalog      *configs.Catalog
	auditService AuditService
	logger       *zap.Logger
	now          func() time.Time
}

// NewUserService creates a new UserService instance.
func NewUserService(userRepo db.UserRepository, catalog *configs.Catalog, as AuditService, logger *zap.Logger) UserService {
	return &userService{
		userRepo:     userRepo,
		catalog:      catalog,
		auditService: as,
		logger:       logger.Named("user_service"),
		now:          time.Now,
	}
}

// GetOrCreate retrieves a user by ID, creating the profile with defaults on first sign-in.
// Returns the user and whether it was created.
func (s *userService) GetOrCreate(ctx context.Context, identity Identity) (*models.User, bool, error) {
	user, err := s.userRepo.GetByID(ctx, identity.UserID)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			return nil, false, fmt.Errorf("failed to get user by ID '%s' from repository: %w", identity.UserID, err)
		}
		now := s.now().UTC()
		newUser := &models.User{
			ID:             identity.UserID,
			Email:          identity.Email,
			DisplayName:    identity.DisplayName,
			PhotoURL:       identity.PhotoURL,
			EmailVerified:  identity.EmailVerified,
			ActiveTrackers: s.catalog.FreeTrackerKeys(),
			CustomTrackers: []models.CustomTracker{},
			DailyGoal:      defaultDailyGoalMinutes,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.userRepo.Create(ctx, newUser); err != nil {
			if errors.Is(err, db.ErrAlreadyExists) {
				// Concurrent first requests; the other one won.
				existing, getErr := s.userRepo.GetByID(ctx, identity.UserID)
				if getErr != nil {
					return nil, false, fmt.Errorf("failed to reload user (id: %s) after create conflict: %w", identity.UserID, getErr)
				}
				return existing, false, nil
			}
			return nil, false, fmt.Errorf("failed to create user (id: %s) after not found: %w", identity.UserID, err)
		}
		recordAudit(ctx, s.auditService, s.logger, models.AuditLog{
			UserID:     identity.UserID,
			Action:     models.ActionUserInitialize,
			TargetType: "USER",
			TargetID:   identity.UserID,
		})
		return newUser, true, nil
	}

	// Mirror token fields that change outside the backend.
	changed := false
	if identity.EmailVerified && !user.EmailVerified {
		user.EmailVerified = true
		changed = true
	}
	if identity.Email != "" && identity.Email != user.Email {
		user.Email = identity.Email
		changed = true
	}
	if changed {
		if err := s.userRepo.Update(ctx, user); err != nil {
			s.logger.Warn("Failed to sync profile from token", zap.String("userID", user.ID), zap.Error(err))
		}
	}
	return user, false, nil
}

// GetByID retrieves a user by their ID.
func (s *userService) GetByID(ctx context.Context, userID string) (*models.User, error) {
	return loadUser(ctx, s.userRepo, userID)
}

func loadUser(ctx context.Context, repo db.UserRepository, userID string) (*models.User, error) {
	user, err := repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: user with ID '%s'", ErrUserNotFound, userID)
		}
		return nil, fmt.Errorf("failed to get user by ID '%s' from repository: %w", userID, err)
	}
	return user, nil
}

// UpdateProfile applies the non-nil fields of req.
func (s *userService) UpdateProfile(ctx context.Context, userID string, req models.UpdateProfileRequest) (*models.User, error) {
	user, err := loadUser(ctx, s.userRepo, userID)
	if err != nil {
		return nil, err
	}

	details := map[string]interface{}{}
	if req.DisplayName != nil {
		user.DisplayName = strings.TrimSpace(*req.DisplayName)
		details["displayName"] = user.DisplayName
	}
	if req.DailyGoal != nil {
		user.DailyGoal = *req.DailyGoal
		details["dailyGoal"] = user.DailyGoal
	}
	if req.Timezone != nil {
		if _, err := time.LoadLocation(*req.Timezone); err != nil {
			return nil, fmt.Errorf("%w: unknown time zone %q", ErrInvalidInput, *req.Timezone)
		}
		user.Timezone = *req.Timezone
		details["timezone"] = user.Timezone
	}
	if len(req.TrackerGoals) > 0 {
		if user.TrackerGoals == nil {
			user.TrackerGoals = make(map[string]float64, len(req.TrackerGoals))
		}
		for key, goal := range req.TrackerGoals {
			if _, err := resolveTracker(s.catalog, user, key); err != nil {
				return nil, err
			}
			user.TrackerGoals[key] = goal
		}
		details["trackerGoals"] = req.TrackerGoals
	}

	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update profile for user '%s': %w", userID, err)
	}
	recordAudit(ctx, s.auditService, s.logger, models.AuditLog{
		UserID:     userID,
		Action:     models.ActionProfileUpdate,
		TargetType: "USER",
		TargetID:   userID,
		Details:    details,
	})
	return user, nil
}

// SetActiveTrackers replaces the dashboard tracker list. Premium trackers need active premium.
func (s *userService) SetActiveTrackers(ctx context.Context, userID string, keys []string) (*models.User, error) {
	user, err := loadUser(ctx, s.userRepo, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	seen := make(map[string]bool, len(keys))
	active := make([]string, 0, len(keys))
	for _, key := range keys {
		if seen[key] {
			continue
		}
		seen[key] = true
		tracker, err := resolveTracker(s.catalog, user, key)
		if err != nil {
			return nil, err
		}
		if !CanAccessTracker(user, tracker, now) {
			return nil, fmt.Errorf("%w: tracker '%s'", ErrPremiumRequired, key)
		}
		active = append(active, key)
	}
	user.ActiveTrackers = active
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update active trackers for user '%s': %w", userID, err)
	}
	return user, nil
}

// AddCustomTracker creates a user-defined tracker within the plan's limit and activates it.
func (s *userService) AddCustomTracker(ctx context.Context, userID string, req models.CreateCustomTrackerRequest) (*models.CustomTracker, error) {
	user, err := loadUser(ctx, s.userRepo, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	limits := s.catalog.Limits(PlanFor(user, now))
	if len(user.CustomTrackers) >= limits.MaxCustomTrackers {
		return nil, fmt.Errorf("%w: %d of %d used", ErrCustomTrackerLimit, len(user.CustomTrackers), limits.MaxCustomTrackers)
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name cannot be empty", ErrInvalidInput)
	}
	for _, ct := range user.CustomTrackers {
		if strings.EqualFold(ct.Name, name) {
			return nil, ErrCustomTrackerExists
		}
	}

	unit := strings.TrimSpace(req.Unit)
	if unit == "" {
		unit = configs.GoalMinutes
	}
	tracker := models.CustomTracker{
		ID:        CustomTrackerPrefix + uuid.NewString(),
		Name:      name,
		Unit:      unit,
		DailyGoal: req.DailyGoal,
		CreatedAt: now.UTC(),
	}
	user.CustomTrackers = append(user.CustomTrackers, tracker)
	user.ActiveTrackers = append(user.ActiveTrackers, tracker.ID)
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to add custom tracker for user '%s': %w", userID, err)
	}
	recordAudit(ctx, s.auditService, s.logger, models.AuditLog{
		UserID:     userID,
		Action:     models.ActionCustomTrackerAdd,
		TargetType: "TRACKER",
		TargetID:   tracker.ID,
		Details:    map[string]interface{}{"name": tracker.Name},
	})
	return &tracker, nil
}

// RemoveCustomTracker deletes the tracker definition. Logged entries stay in storage.
func (s *userService) RemoveCustomTracker(ctx context.Context, userID, trackerID string) error {
	user, err := loadUser(ctx, s.userRepo, userID)
	if err != nil {
		return err
	}
	if _, ok := user.CustomTracker(trackerID); !ok {
		return fmt.Errorf("%w: custom tracker '%s'", ErrTrackerNotFound, trackerID)
	}

	kept := user.CustomTrackers[:0]
	for _, ct := range user.CustomTrackers {
		if ct.ID != trackerID {
			kept = append(kept, ct)
		}
	}
	user.CustomTrackers = kept
	active := user.ActiveTrackers[:0]
	for _, key := range user.ActiveTrackers {
		if key != trackerID {
			active = append(active, key)
		}
	}
	user.ActiveTrackers = active
	delete(user.TrackerGoals, trackerID)

	if err := s.userRepo.Update(ctx, user); err != nil {
		return fmt.Errorf("failed to remove custom tracker for user '%s': %w", userID, err)
	}
	recordAudit(ctx, s.auditService, s.logger, models.AuditLog{
		UserID:     userID,
		Action:     models.ActionCustomTrackerDel,
		TargetType: "TRACKER",
		TargetID:   trackerID,
	})
	return nil
}

// resolveTracker finds a built-in tracker by key or one of the user's custom trackers by ID.
func resolveTracker(catalog *configs.Catalog, user *models.User, key string) (configs.Tracker, error) {
	if t, ok := catalog.Tracker(key); ok {
		return t, nil
	}
	if user != nil {
		if ct, ok := user.CustomTracker(key); ok {
			return configs.Tracker{
				Key:         ct.ID,
				Name:        ct.Name,
				Path:        "/custom/" + ct.ID,
				Collection:  catalog.CustomCollection,
				GoalMetric:  configs.GoalMinutes,
				DefaultGoal: ct.DailyGoal,
				Unit:        ct.Unit,
				Custom:      true,
			}, nil
		}
	}
	return configs.Tracker{}, fmt.Errorf("%w: '%s'", ErrTrackerNotFound, key)
}
