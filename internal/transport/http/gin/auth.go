package httpgin

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kirinyoku/openmic/internal/domain"
	"github.com/kirinyoku/openmic/internal/identity"
)

const ctxOccupant = "occupant"

// Verifier resolves a bearer token to an occupant.
type Verifier interface {
	Verify(raw string) (domain.Occupant, error)
}

// IdentityMiddleware resolves the bearer token, if any. Requests without
// one continue anonymously; a token that fails verification is rejected.
func IdentityMiddleware(v Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.Next()
			return
		}

		raw, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || v == nil {
			respondErr(c, fmt.Errorf("httpgin.IdentityMiddleware:%w", identity.ErrUnauthenticated))
			c.Abort()
			return
		}

		o, err := v.Verify(strings.TrimSpace(raw))
		if err != nil {
			respondErr(c, err)
			c.Abort()
			return
		}

		c.Set(ctxOccupant, o)
		c.Next()
	}
}

// occupant returns the caller or writes 401 and returns false.
func occupant(c *gin.Context) (domain.Occupant, bool) {
	if v, ok := c.Get(ctxOccupant); ok {
		if o, ok := v.(domain.Occupant); ok {
			return o, true
		}
	}

	respondErr(c, identity.ErrUnauthenticated)
	return nil, false
}
