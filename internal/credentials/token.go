package credentials

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenLeeway is subtracted from the expiry so a token about to lapse is
// refreshed before use.
const TokenLeeway = 30 * time.Second

// AccessTokenValid reports whether token is a JWT whose exp claim lies more
// than TokenLeeway after now.
//
// The signature is not checked. The device holds no cloud verification key
// and the broker and API verify the token themselves; this check only
// decides when to refresh.
func AccessTokenValid(token string, now time.Time) bool {
	if token == "" {
		return false
	}

	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return now.Add(TokenLeeway).Before(exp.Time)
}
