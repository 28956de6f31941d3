package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"trackflow-backend/internal/core"
	"trackflow-backend/internal/middleware"
	"trackflow-backend/internal/models"
)

// currentUser returns the profile loaded by the access middleware, replying 401 when it is missing.
func currentUser(c *gin.Context) (*models.User, bool) {
	user, ok := middleware.UserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "User profile not found in context", Redirect: core.RedirectLogin})
		return nil, false
	}
	return user, true
}

// currentUserID returns the verified token UID, replying 401 when it is missing.
func currentUserID(c *gin.Context) (string, bool) {
	userID := c.GetString(middleware.ContextUserID)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "User ID not found in context", Redirect: core.RedirectLogin})
		return "", false
	}
	return userID, true
}

// paginationParams copies limit and startAfter from the query string.
func paginationParams(c *gin.Context) map[string]string {
	params := make(map[string]string)
	if limit := c.Query("limit"); limit != "" {
		params["limit"] = limit
	}
	if startAfter := c.Query("startAfter"); startAfter != "" {
		params["startAfter"] = startAfter
	}
	return params
}

// queryInt reads an optional integer query parameter.
func queryInt(c *gin.Context, name string) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid query parameter '" + name + "'", Details: "must be a non-negative integer"})
		return 0, false
	}
	return n, true
}
