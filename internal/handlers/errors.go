package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/booking-core/internal/apperr"
	"github.com/smarttransit/booking-core/internal/middleware"
	"github.com/smarttransit/booking-core/internal/models"
)

var statusByKind = map[apperr.Kind]int{
	apperr.KindNotFound:   http.StatusNotFound,
	apperr.KindForbidden:  http.StatusForbidden,
	apperr.KindConflict:   http.StatusConflict,
	apperr.KindGone:       http.StatusGone,
	apperr.KindBadRequest: http.StatusBadRequest,
	apperr.KindInternal:   http.StatusInternalServerError,
}

// respondError writes the error as JSON with the status of its kind.
// Internal details never reach the client.
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		appErr = apperr.Internal(err, "internal error")
	}

	status, ok := statusByKind[appErr.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}

	if status == http.StatusInternalServerError {
		logger.WithError(err).WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
		}).Error("Request failed")
		c.JSON(status, gin.H{
			"error":   string(apperr.KindInternal),
			"message": "An internal error occurred. Please try again.",
			"code":    "INTERNAL",
		})
		return
	}

	body := gin.H{
		"error":   string(appErr.Kind),
		"message": appErr.Message,
		"code":    appErr.Code,
	}
	if len(appErr.Details) > 0 {
		body["details"] = appErr.Details
	}
	c.JSON(status, body)
}

// bindError reports a malformed request body
func bindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   string(apperr.KindBadRequest),
		"message": "Invalid request body: " + err.Error(),
		"code":    "INVALID_REQUEST",
	})
}

// callerFrom reads the authenticated seller, aborting with 401 when missing
func callerFrom(c *gin.Context) (models.Caller, bool) {
	sellerCtx, ok := middleware.GetSellerContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthorized",
			"message": "Seller context not found",
			"code":    "MISSING_USER_CONTEXT",
		})
		return models.Caller{}, false
	}
	return sellerCtx.Caller(), true
}

func requiredParam(c *gin.Context, name string) (string, bool) {
	value := strings.TrimSpace(c.Param(name))
	if value == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   string(apperr.KindBadRequest),
			"message": name + " is required",
			"code":    "INVALID_REQUEST",
		})
		return "", false
	}
	return value, true
}
