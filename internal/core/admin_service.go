package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"trackflow-backend/configs"
	"trackflow-backend/internal/db"
	"trackflow-backend/internal/models"
	"trackflow-backend/internal/notify"
)

var ErrCannotDemoteSelf = errors.New("admins cannot remove their own admin access")

// AdminClaim is the Firebase custom claim mirrored from users/{uid}.isAdmin.
const AdminClaim = "admin"

// AdminStats are the console counters.
type AdminStats struct {
	Users             int64 `json:"users"`
	PremiumUsers      int64 `json:"premiumUsers"`
	CouponRedemptions int64 `json:"couponRedemptions"`
}

// adminService implements the AdminService interface.
type adminService struct {
	userRepo     db.UserRepository
	idp          IdentityProvider
	catalog      *configs.Catalog
	notifier     Notifier
	auditService AuditService
	logger       *zap.Logger
	now          func() time.Time
}

// NewAdminService creates a new AdminService instance.
func NewAdminService(userRepo db.UserRepository, idp IdentityProvider, catalog *configs.Catalog, notifier Notifier, as AuditService, logger *zap.Logger) AdminService {
	return &adminService{
		userRepo:     userRepo,
		idp:          idp,
		catalog:      catalog,
		notifier:     notifier,
		auditService: as,
		logger:       logger.Named("admin_service"),
		now:          time.Now,
	}
}

// ListUsers returns a page of user profiles.
func (s *adminService) ListUsers(ctx context.Context, paginationParams map[string]string) ([]*models.User, error) {
	users, err := s.userRepo.List(ctx, paginationParams)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: startAfter '%s'", ErrUserNotFound, paginationParams["startAfter"])
		}
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// SetPremium grants or revokes premium. A grant without days uses the PRO billing period.
func (s *adminService) SetPremium(ctx context.Context, adminID, userID string, req models.SetPremiumRequest) (*models.User, error) {
	user, err := loadUser(ctx, s.userRepo, userID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if req.IsPremium {
		days := req.Days
		if days <= 0 {
			plan, _ := s.catalog.Plan(configs.PlanPro)
			days = plan.PeriodDays
		}
		end := now.AddDate(0, 0, days)
		user.IsPremium = true
		user.PremiumStartDate = &now
		user.PremiumEndDate = &end
		user.PremiumSource = models.PremiumSourceAdmin
	} else {
		clearPremium(user, now)
	}
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("%w for user '%s': %v", ErrSubscriptionUpdate, userID, err)
	}

	recordAudit(ctx, s.auditService, s.logger, models.AuditLog{
		UserID:     adminID,
		Action:     models.ActionAdminSetPremium,
		TargetType: "USER",
		TargetID:   userID,
		Details:    map[string]interface{}{"isPremium": req.IsPremium, "days": req.Days},
	})
	if req.IsPremium {
		enqueue(ctx, s.notifier, s.logger, notify.Message{
			Type: notify.TypePremiumActivated,
			To:   user.Email,
			Name: user.DisplayName,
			Data: map[string]string{"endDate": user.PremiumEndDate.Format("January 2, 2006")},
		})
	}
	return user, nil
}

// SetAdmin updates the Firestore flag and the Firebase custom claim.
// The claim reaches the user's ID token on the next refresh.
func (s *adminService) SetAdmin(ctx context.Context, adminID, userID string, isAdmin bool) (*models.User, error) {
	if adminID == userID && !isAdmin {
		return nil, ErrCannotDemoteSelf
	}
	user, err := loadUser(ctx, s.userRepo, userID)
	if err != nil {
		return nil, err
	}
	if s.idp != nil {
		if err := s.idp.SetCustomUserClaims(ctx, userID, map[string]interface{}{AdminClaim: isAdmin}); err != nil {
			return nil, fmt.Errorf("failed to set admin claim for user '%s': %w", userID, err)
		}
	}
	user.IsAdmin = isAdmin
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update admin flag for user '%s': %w", userID, err)
	}
	recordAudit(ctx, s.auditService, s.logger, models.AuditLog{
		UserID:     adminID,
		Action:     models.ActionAdminSetAdmin,
		TargetType: "USER",
		TargetID:   userID,
		Details:    map[string]interface{}{"isAdmin": isAdmin},
	})
	s.logger.Info("Admin flag changed", zap.String("adminID", adminID), zap.String("userID", userID), zap.Bool("isAdmin", isAdmin))
	return user, nil
}

// Stats counts users, premium users and coupon redemptions.
func (s *adminService) Stats(ctx context.Context) (*AdminStats, error) {
	users, err := s.userRepo.Count(ctx, "", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}
	premium, err := s.userRepo.Count(ctx, "isPremium", true)
	if err != nil {
		return nil, fmt.Errorf("failed to count premium users: %w", err)
	}
	redeemed, err := s.userRepo.Count(ctx, "hasUsedCoupon", true)
	if err != nil {
		return nil, fmt.Errorf("failed to count coupon redemptions: %w", err)
	}
	return &AdminStats{Users: users, PremiumUsers: premium, CouponRedemptions: redeemed}, nil
}
