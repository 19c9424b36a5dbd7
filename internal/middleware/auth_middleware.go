package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/booking-core/internal/models"
	"github.com/smarttransit/booking-core/pkg/jwt"
)

// SellerContextKey is the key used to store the caller in Gin context
const SellerContextKey = "seller"

// SellerContext represents the authenticated seller
type SellerContext struct {
	SellerID   string   `json:"seller_id"`
	ProviderID string   `json:"provider_id"`
	Roles      []string `json:"roles"`
}

// Caller converts the seller context into the identity services consume
func (s SellerContext) Caller() models.Caller {
	return models.Caller{SellerID: s.SellerID, ProviderID: s.ProviderID}
}

// AuthMiddleware creates a middleware that validates JWT tokens
func AuthMiddleware(jwtService *jwt.Service, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		fields := logrus.Fields{"path": c.Request.URL.Path, "ip": c.ClientIP()}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			logger.WithFields(fields).Warn("AUTH FAILED: Missing authorization header")
			abortUnauthorized(c, "unauthorized", "Authorization header is required", "MISSING_AUTH_HEADER")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			logger.WithFields(fields).Warn("AUTH FAILED: Invalid auth format")
			abortUnauthorized(c, "unauthorized", "Invalid authorization header format. Expected: Bearer <token>", "INVALID_AUTH_FORMAT")
			return
		}
		tokenString := strings.TrimSpace(parts[1])

		claims, err := jwtService.ValidateAccessToken(tokenString)
		if err != nil {
			if jwtService.IsTokenExpired(tokenString) {
				logger.WithFields(fields).WithError(err).Warn("AUTH FAILED: Token expired")
				abortUnauthorized(c, "token_expired", "Access token has expired. Please refresh your token.", "TOKEN_EXPIRED")
			} else {
				logger.WithFields(fields).WithError(err).Warn("AUTH FAILED: Invalid token")
				abortUnauthorized(c, "invalid_token", "Invalid access token", "INVALID_TOKEN")
			}
			return
		}

		c.Set(SellerContextKey, SellerContext{
			SellerID:   claims.SellerID,
			ProviderID: claims.ProviderID,
			Roles:      claims.Roles,
		})

		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, errorKey, message, code string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":   errorKey,
		"message": message,
		"code":    code,
	})
}

// RequireRole creates a middleware that checks if the seller has one of the roles
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		sellerCtx, exists := GetSellerContext(c)
		if !exists {
			abortUnauthorized(c, "unauthorized", "Seller context not found. Auth middleware may not be applied.", "MISSING_USER_CONTEXT")
			return
		}

		for _, required := range roles {
			for _, role := range sellerCtx.Roles {
				if role == required {
					c.Next()
					return
				}
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error":   "forbidden",
			"message": "You don't have permission to access this resource",
			"code":    "INSUFFICIENT_PERMISSIONS",
		})
	}
}

// GetSellerContext retrieves the seller context from Gin context
func GetSellerContext(c *gin.Context) (SellerContext, bool) {
	value, exists := c.Get(SellerContextKey)
	if !exists {
		return SellerContext{}, false
	}

	sellerCtx, ok := value.(SellerContext)
	if !ok {
		return SellerContext{}, false
	}

	return sellerCtx, true
}

// MustGetSellerContext retrieves the seller context or panics (use only after AuthMiddleware)
func MustGetSellerContext(c *gin.Context) SellerContext {
	sellerCtx, exists := GetSellerContext(c)
	if !exists {
		panic("seller context not found - ensure AuthMiddleware is applied")
	}
	return sellerCtx
}
