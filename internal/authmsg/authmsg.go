// Package authmsg maps Firebase Authentication error codes to messages shown to users.
package authmsg

import (
	"errors"
	"net/http"
	"sort"

	"firebase.google.com/go/v4/auth"
)

// Firebase client error codes.
const (
	CodeWrongPassword        = "auth/wrong-password"
	CodeUserNotFound         = "auth/user-not-found"
	CodeTooManyRequests      = "auth/too-many-requests"
	CodeEmailAlreadyInUse    = "auth/email-already-in-use"
	CodeWeakPassword         = "auth/weak-password"
	CodeInvalidEmail         = "auth/invalid-email"
	CodePopupClosedByUser    = "auth/popup-closed-by-user"
	CodeNetworkRequestFailed = "auth/network-request-failed"
	CodeUserDisabled         = "auth/user-disabled"
	CodeInvalidCredential    = "auth/invalid-credential"
	CodeRequiresRecentLogin  = "auth/requires-recent-login"
	CodeExpiredActionCode    = "auth/expired-action-code"
	CodeInvalidActionCode    = "auth/invalid-action-code"
)

// DefaultMessage is returned for codes that have no entry.
const DefaultMessage = "Something went wrong. Please try again."

// MinPasswordLength matches the Firebase Auth minimum.
const MinPasswordLength = 6

var messages = map[string]string{
	CodeWrongPassword:        "Incorrect password. Please try again.",
	CodeUserNotFound:         "No account found with this email address.",
	CodeTooManyRequests:      "Too many attempts. Please wait a moment and try again.",
	CodeEmailAlreadyInUse:    "An account with this email already exists.",
	CodeWeakPassword:         "Password should be at least 6 characters.",
	CodeInvalidEmail:         "Please enter a valid email address.",
	CodePopupClosedByUser:    "Sign-in was cancelled.",
	CodeNetworkRequestFailed: "Network error. Check your connection and try again.",
	CodeUserDisabled:         "This account has been disabled.",
	CodeInvalidCredential:    "Invalid email or password.",
	CodeRequiresRecentLogin:  "Please sign in again to continue.",
	CodeExpiredActionCode:    "This link has expired. Please request a new one.",
	CodeInvalidActionCode:    "This link is invalid or has already been used.",
}

// Message returns the user-facing message for a Firebase error code.
func Message(code string) string {
	if m, ok := messages[code]; ok {
		return m
	}
	return DefaultMessage
}

// Entry is one row of the published message table.
type Entry struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Table returns every known code with its message, sorted by code.
func Table() []Entry {
	out := make([]Entry, 0, len(messages))
	for code, msg := range messages {
		out = append(out, Entry{Code: code, Message: msg})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Error carries a Firebase error code alongside the underlying cause.
type Error struct {
	Code string
	Err  error
}

func (e *Error) Error() string {
	return Message(e.Code)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Status is the HTTP status a handler should answer with for this code.
func (e *Error) Status() int {
	switch e.Code {
	case CodeEmailAlreadyInUse:
		return http.StatusConflict
	case CodeUserNotFound:
		return http.StatusNotFound
	case CodeTooManyRequests:
		return http.StatusTooManyRequests
	case CodeWeakPassword, CodeInvalidEmail, CodeInvalidCredential, CodeExpiredActionCode, CodeInvalidActionCode:
		return http.StatusBadRequest
	case CodeUserDisabled, CodeWrongPassword, CodeRequiresRecentLogin:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// New wraps err with the given code.
func New(code string, err error) *Error {
	return &Error{Code: code, Err: err}
}

// FromAdminError maps an Admin SDK error to the matching client error code.
// It returns nil when err is nil and the default code ("") when nothing matches.
func FromAdminError(err error) *Error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return existing
	}
	code := ""
	switch {
	case auth.IsEmailAlreadyExists(err):
		code = CodeEmailAlreadyInUse
	case auth.IsUserNotFound(err), auth.IsEmailNotFound(err):
		code = CodeUserNotFound
	case auth.IsInvalidEmail(err):
		code = CodeInvalidEmail
	case auth.IsUserDisabled(err):
		code = CodeUserDisabled
	case auth.IsIDTokenExpired(err), auth.IsIDTokenRevoked(err), auth.IsSessionCookieRevoked(err):
		code = CodeRequiresRecentLogin
	}
	return New(code, err)
}
