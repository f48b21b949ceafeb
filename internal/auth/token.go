// Package auth issues and verifies the HMAC-signed participant tokens presented on join.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"

	"live-quiz-service/internal/domain"
)

// Claims identify a participant for one session.
type Claims struct {
	UserID      string `json:"userId"`
	SessionID   string `json:"sessionId"`
	DisplayName string `json:"displayName"`
	jwt.RegisteredClaims
}

// Verifier validates tokens signed with a shared secret.
type Verifier struct {
	secret []byte
	clock  clockwork.Clock
}

func NewVerifier(secret string, clock clockwork.Clock) *Verifier {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Verifier{secret: []byte(secret), clock: clock}
}

// Issue signs claims for userID valid for ttl. Production tokens are minted by the host
// application; this exists for the CLI and tests.
func (v *Verifier) Issue(userID, sessionID, displayName string, ttl time.Duration) (string, error) {
	now := v.clock.Now()
	claims := Claims{
		UserID:      userID,
		SessionID:   sessionID,
		DisplayName: displayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// Verify checks signature and expiry.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, domain.ErrUnauthorized
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.clock.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.ErrTokenExpired
		}
		return nil, domain.ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" || claims.SessionID == "" {
		return nil, domain.ErrInvalidToken
	}
	return claims, nil
}
