package api

import (
	"time"

	"trackflow-backend/internal/models"
	"trackflow-backend/internal/report"
)

// ErrorResponse is a generic structure for returning errors via API.
type ErrorResponse struct {
	Error    string `json:"error"`              // A high-level error message or code
	Details  string `json:"details,omitempty"`  // More specific details about the error, if available
	Redirect string `json:"redirect,omitempty"` // Client route the user should be sent to, if any
}

// SuccessResponse is a generic structure for simple success messages.
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// CheckoutResponse returns the hosted Stripe Checkout URL.
type CheckoutResponse struct {
	URL string `json:"url"`
}

// InsightReportResponse is a stored insight with its parsed Markdown.
type InsightReportResponse struct {
	Insight  *models.AIResponse `json:"insight"`
	Document report.Document    `json:"document"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string    `json:"status"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}
