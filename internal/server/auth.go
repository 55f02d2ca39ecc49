package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// RoleAdmin and RoleVendor are the two caller roles the platform mints
// tokens for.
const (
	RoleAdmin  = "admin"
	RoleVendor = "vendor"
)

const identityKey = "identity"

// Claims is the JWT payload issued by the main platform. This service only
// verifies; it never mints tokens.
type Claims struct {
	VendorID string `json:"vendorId"`
	Role     string `json:"role"`
	Verified bool   `json:"verified"`
	jwt.RegisteredClaims
}

// Identity is the authenticated caller attached to the request context.
type Identity struct {
	VendorID string
	Role     string
	Verified bool
}

// IsAdmin reports whether the caller holds the admin role.
func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

// Authenticate verifies the bearer token and stores the caller identity on
// the gin context.
func Authenticate(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortError(c, http.StatusUnauthorized, "UNAUTHORIZED", "authorization header is required")
			return
		}

		tokenString := strings.TrimPrefix(header, "Bearer ")
		if tokenString == header {
			abortError(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token format")
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return secret, nil
		})
		if err != nil || !token.Valid {
			abortError(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token")
			return
		}

		c.Set(identityKey, Identity{
			VendorID: claims.VendorID,
			Role:     claims.Role,
			Verified: claims.Verified,
		})
		c.Next()
	}
}

// RequireAdmin rejects non-admin callers. Sync endpoints mutate every
// vendor's data, so they are admin-only.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !identityFrom(c).IsAdmin() {
			abortError(c, http.StatusForbidden, "FORBIDDEN", "admin role required")
			return
		}
		c.Next()
	}
}

// RequireVerified rejects vendors that have not completed verification.
// Admins pass regardless.
func RequireVerified() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identityFrom(c)
		if !id.IsAdmin() && !id.Verified {
			abortError(c, http.StatusForbidden, "FORBIDDEN", "verified vendor account required")
			return
		}
		c.Next()
	}
}

func identityFrom(c *gin.Context) Identity {
	v, ok := c.Get(identityKey)
	if !ok {
		return Identity{}
	}
	id, _ := v.(Identity)
	return id
}
