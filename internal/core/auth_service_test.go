package core

import (
	"context"
	"errors"
	"testing"

	"firebase.google.com/go/v4/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"trackflow-backend/internal/authmsg"
	"trackflow-backend/internal/models"
	"trackflow-backend/internal/notify"
)

func newAuthFixture(idp *stubIDP, notifier Notifier) (AuthService, *memUserRepo) {
	users, repo, _ := newUserFixture()
	return NewAuthService(idp, users, notifier, "https://app.example.com/", &stubAudit{}, zap.NewNop()), repo
}

func TestSignUp(t *testing.T) {
	idp := &stubIDP{}
	notifier := &stubNotifier{}
	svc, repo := newAuthFixture(idp, notifier)

	user, err := svc.SignUp(context.Background(), models.SignUpRequest{Email: "new@example.com", Password: "hunter22", DisplayName: "New User"})
	require.NoError(t, err)
	assert.Equal(t, "new-uid", user.ID)
	assert.NotNil(t, repo.get("new-uid"))
	require.NotNil(t, idp.created)

	require.Len(t, notifier.messages, 1)
	msg := notifier.messages[0]
	assert.Equal(t, notify.TypeEmailVerification, msg.Type)
	assert.Equal(t, "new@example.com", msg.To)
	assert.Equal(t, "https://auth.example.com/verify?email=new@example.com", msg.Data["link"])
	assert.Equal(t, []string{"https://app.example.com/login"}, idp.settingsURLs)
}

func TestSignUpWeakPassword(t *testing.T) {
	idp := &stubIDP{}
	svc, _ := newAuthFixture(idp, &stubNotifier{})

	_, err := svc.SignUp(context.Background(), models.SignUpRequest{Email: "new@example.com", Password: "123"})
	var authErr *authmsg.Error
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, authmsg.CodeWeakPassword, authErr.Code)
	assert.Nil(t, idp.created)
}

func TestSignUpMapsAdminErrors(t *testing.T) {
	idp := &stubIDP{createErr: authmsg.New(authmsg.CodeEmailAlreadyInUse, errors.New("EMAIL_EXISTS"))}
	svc, repo := newAuthFixture(idp, &stubNotifier{})

	_, err := svc.SignUp(context.Background(), models.SignUpRequest{Email: "a@example.com", Password: "hunter22"})
	var authErr *authmsg.Error
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, authmsg.CodeEmailAlreadyInUse, authErr.Code)
	assert.Equal(t, "An account with this email already exists.", err.Error())
	assert.Nil(t, repo.get("new-uid"))
}

func TestSignUpSucceedsWhenEmailFails(t *testing.T) {
	svc, repo := newAuthFixture(&stubIDP{}, &stubNotifier{err: errors.New("queue down")})

	_, err := svc.SignUp(context.Background(), models.SignUpRequest{Email: "new@example.com", Password: "hunter22"})
	require.NoError(t, err)
	assert.NotNil(t, repo.get("new-uid"))
}

func TestSendVerificationEmail(t *testing.T) {
	idp := &stubIDP{records: map[string]*auth.UserRecord{
		"u1":   {UserInfo: &auth.UserInfo{UID: "u1", Email: "a@example.com"}},
		"done": {UserInfo: &auth.UserInfo{UID: "done", Email: "d@example.com"}, EmailVerified: true},
	}}
	notifier := &stubNotifier{}
	svc, _ := newAuthFixture(idp, notifier)

	require.NoError(t, svc.SendVerificationEmail(context.Background(), "u1"))
	require.Len(t, notifier.messages, 1)
	assert.Equal(t, "a@example.com", notifier.messages[0].To)

	assert.ErrorIs(t, svc.SendVerificationEmail(context.Background(), "done"), ErrEmailAlreadyVerified)

	var authErr *authmsg.Error
	assert.ErrorAs(t, svc.SendVerificationEmail(context.Background(), "ghost"), &authErr)
}

func TestSendPasswordReset(t *testing.T) {
	notifier := &stubNotifier{}
	svc, _ := newAuthFixture(&stubIDP{}, notifier)

	require.NoError(t, svc.SendPasswordReset(context.Background(), " a@example.com "))
	require.Len(t, notifier.messages, 1)
	assert.Equal(t, notify.TypePasswordReset, notifier.messages[0].Type)
	assert.Equal(t, "a@example.com", notifier.messages[0].To)

	noQueue, _ := newAuthFixture(&stubIDP{}, nil)
	assert.ErrorIs(t, noQueue.SendPasswordReset(context.Background(), "a@example.com"), ErrNotifierUnavailable)
}
