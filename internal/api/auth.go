package api

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"

	"github.com/victornm/emstudy/internal/errors"
)

const callerIDKey = "caller_id"

// authenticate resolves the caller from an HS256 bearer token whose subject is the user ID.
func (a *API) authenticate(c *gin.Context) {
	raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		abort(c, errors.New(errors.CodeUnauthenticated, errors.WithMessagef("missing bearer token")))
		return
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(strings.TrimSpace(raw), &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New(errors.CodeUnauthenticated, errors.WithMessagef("unexpected signing method %s", t.Method.Alg()))
		}
		return a.secret, nil
	})
	if err != nil {
		abort(c, errors.New(errors.CodeUnauthenticated, errors.WithMessagef("invalid token"), errors.WithCause(err)))
		return
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		abort(c, errors.New(errors.CodeUnauthenticated, errors.WithMessagef("invalid token subject: %q", claims.Subject)))
		return
	}

	c.Set(callerIDKey, id)
	c.Next()
}

func callerID(c *gin.Context) int64 {
	return c.GetInt64(callerIDKey)
}
