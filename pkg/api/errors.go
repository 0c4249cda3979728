package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/carlosapgomes/triage-automation-sub001/pkg/auth"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/lifecycle"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/monitoring"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/store"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/template"
)

// detail writes the error envelope every endpoint uses.
func detail(c *gin.Context, status int, text string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": text})
}

// mapServiceError maps service-layer errors onto the HTTP error envelope.
func mapServiceError(c *gin.Context, err error) {
	var terr *lifecycle.TransitionError
	var perr *template.ParseError

	switch {
	case errors.Is(err, auth.ErrMissingAuthToken), errors.Is(err, auth.ErrInvalidAuthToken):
		detail(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrAccountNotActive):
		detail(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, auth.ErrRoleNotAuthorized):
		detail(c, http.StatusForbidden, err.Error())
	case errors.Is(err, store.ErrNotFound):
		detail(c, http.StatusNotFound, "resource not found")
	case errors.As(err, &terr):
		detail(c, http.StatusConflict, terr.Error())
	case errors.Is(err, auth.ErrSelfUserManagement), errors.Is(err, auth.ErrLastActiveAdmin):
		detail(c, http.StatusConflict, err.Error())
	case errors.Is(err, monitoring.ErrInvalidPeriod), errors.Is(err, monitoring.ErrInvalidStatus):
		detail(c, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &perr):
		detail(c, http.StatusUnprocessableEntity, perr.Error())
	default:
		slog.Error("Unexpected service error", "error", err)
		detail(c, http.StatusInternalServerError, "internal server error")
	}
}
