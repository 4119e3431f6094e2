package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/nurpe/marketplace/internal/auth"
	"github.com/nurpe/marketplace/internal/model"
)

const (
	principalKey      = "principal"
	profileHeader     = "profile_id"
	authorizationType = "Bearer"
)

type ProfileLookup interface {
	GetProfile(ctx context.Context, id uint) (*model.Profile, error)
}

// Auth resolves the calling profile from a bearer token or, when allowed, the
// profile_id header. Unknown profiles are rejected with 401.
func Auth(lookup ProfileLookup, parser *auth.Parser, allowHeader bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		profileID, err := resolveProfileID(c, parser, allowHeader)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		profile, err := lookup.GetProfile(c.Request.Context(), profileID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown profile"})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		c.Set(principalKey, *profile)
		c.Next()
	}
}

func resolveProfileID(c *gin.Context, parser *auth.Parser, allowHeader bool) (uint, error) {
	if header := strings.TrimSpace(c.GetHeader("Authorization")); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], authorizationType) {
			return 0, errors.New("invalid authorization header")
		}
		profileID, err := parser.Parse(strings.TrimSpace(parts[1]))
		if err != nil {
			return 0, errors.New("invalid token")
		}
		return profileID, nil
	}

	if !allowHeader {
		return 0, errors.New("missing authorization header")
	}

	raw := strings.TrimSpace(c.GetHeader(profileHeader))
	if raw == "" {
		return 0, errors.New("missing profile_id header")
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("invalid profile_id header")
	}
	return uint(id), nil
}

// RequireAdmin must run after Auth. Non-admin profiles get 401 like unknown ones.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := MustPrincipal(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
			return
		}
		if !principal.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "admin access required"})
			return
		}
		c.Next()
	}
}

func MustPrincipal(c *gin.Context) (model.Profile, bool) {
	value, ok := c.Get(principalKey)
	if !ok {
		return model.Profile{}, false
	}
	principal, ok := value.(model.Profile)
	return principal, ok
}
