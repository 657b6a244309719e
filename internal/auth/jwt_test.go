package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func TestJWTRoundTrip(t *testing.T) {
	s := NewJWTService("secret", 1)
	userID := uuid.New()
	token, err := s.Generate(userID, RoleLearner)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	claims, err := s.Validate(token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.UserID != userID || claims.Role != RoleLearner {
		t.Errorf("claims = %+v", claims)
	}
}

func TestJWTRejects(t *testing.T) {
	s := NewJWTService("secret", 1)
	good, _ := s.Generate(uuid.New(), RoleTutor)

	other, _ := NewJWTService("other", 1).Generate(uuid.New(), RoleTutor)

	expired := NewJWTService("secret", 1)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, _ := expired.Generate(uuid.New(), RoleTutor)

	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: uuid.New()}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	noUser, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Role: RoleTutor}).SignedString([]byte("secret"))

	tests := map[string]string{
		"garbage":        "not-a-token",
		"wrong secret":   other,
		"expired":        old,
		"alg none":       none,
		"missing userID": noUser,
		"truncated":      good[:len(good)-4],
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Validate(token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Validate err = %v, want ErrInvalidToken", err)
			}
		})
	}
}
