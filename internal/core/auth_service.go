package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"firebase.google.com/go/v4/auth"
	"go.uber.org/zap"

	"trackflow-backend/internal/authmsg"
	"trackflow-backend/internal/models"
	"trackflow-backend/internal/notify"
)

var (
	ErrEmailAlreadyVerified = errors.New("email address is already verified")
	ErrNotifierUnavailable  = errors.New("email delivery is not configured")
)

// authService implements the AuthService interface.
type authService struct {
	idp          IdentityProvider
	users        UserService
	notifier     Notifier
	clientURL    string
	auditService AuditService
	logger       *zap.Logger
}

// NewAuthService creates a new AuthService instance. Action links return the user to clientURL.
func NewAuthService(idp IdentityProvider, users UserService, notifier Notifier, clientURL string, as AuditService, logger *zap.Logger) AuthService {
	return &authService{
		idp:          idp,
		users:        users,
		notifier:     notifier,
		clientURL:    strings.TrimRight(clientURL, "/"),
		auditService: as,
		logger:       logger.Named("auth_service"),
	}
}

func (s *authService) actionSettings() *auth.ActionCodeSettings {
	return &auth.ActionCodeSettings{
		URL:             s.clientURL + "/login",
		HandleCodeInApp: false,
	}
}

// SignUp creates an email/password account, its profile and sends the verification email.
// Failing to send the email does not fail the sign-up; the client can ask again.
func (s *authService) SignUp(ctx context.Context, req models.SignUpRequest) (*models.User, error) {
	email := strings.TrimSpace(req.Email)
	if len(req.Password) < authmsg.MinPasswordLength {
		return nil, authmsg.New(authmsg.CodeWeakPassword, nil)
	}

	params := (&auth.UserToCreate{}).
		Email(email).
		Password(req.Password).
		EmailVerified(false)
	if name := strings.TrimSpace(req.DisplayName); name != "" {
		params = params.DisplayName(name)
	}
	record, err := s.idp.CreateUser(ctx, params)
	if err != nil {
		s.logger.Info("Firebase CreateUser failed", zap.String("email", email), zap.Error(err))
		return nil, authmsg.FromAdminError(err)
	}

	user, _, err := s.users.GetOrCreate(ctx, Identity{
		UserID:      record.UID,
		Email:       record.Email,
		DisplayName: record.DisplayName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create profile for new account '%s': %w", record.UID, err)
	}
	recordAudit(ctx, s.auditService, s.logger, models.AuditLog{
		UserID:     user.ID,
		Action:     models.ActionUserSignUp,
		TargetType: "USER",
		TargetID:   user.ID,
	})

	if err := s.sendVerification(ctx, user.Email, user.DisplayName); err != nil {
		s.logger.Warn("Failed to send verification email after sign-up", zap.String("userID", user.ID), zap.Error(err))
	}
	return user, nil
}

// SendVerificationEmail sends a fresh verification link to the account's email.
func (s *authService) SendVerificationEmail(ctx context.Context, userID string) error {
	record, err := s.idp.GetUser(ctx, userID)
	if err != nil {
		return authmsg.FromAdminError(err)
	}
	if record.EmailVerified {
		return ErrEmailAlreadyVerified
	}
	return s.sendVerification(ctx, record.Email, record.DisplayName)
}

func (s *authService) sendVerification(ctx context.Context, email, name string) error {
	if s.notifier == nil {
		return ErrNotifierUnavailable
	}
	link, err := s.idp.EmailVerificationLinkWithSettings(ctx, email, s.actionSettings())
	if err != nil {
		return authmsg.FromAdminError(err)
	}
	return s.notifier.Enqueue(ctx, notify.Message{
		Type: notify.TypeEmailVerification,
		To:   email,
		Name: name,
		Data: map[string]string{"link": link},
	})
}

// SendPasswordReset sends a password reset link. Unknown emails surface as auth/user-not-found.
func (s *authService) SendPasswordReset(ctx context.Context, email string) error {
	if s.notifier == nil {
		return ErrNotifierUnavailable
	}
	email = strings.TrimSpace(email)
	link, err := s.idp.PasswordResetLinkWithSettings(ctx, email, s.actionSettings())
	if err != nil {
		return authmsg.FromAdminError(err)
	}
	return s.notifier.Enqueue(ctx, notify.Message{
		Type: notify.TypePasswordReset,
		To:   email,
		Data: map[string]string{"link": link},
	})
}
