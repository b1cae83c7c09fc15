// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey

	// TokenTTL is how long issued tokens stay valid. Zero means no exp claim.
	TokenTTL time.Duration
)

// ErrNotInitialized is returned when signing is attempted before Init.
var ErrNotInitialized = errors.New("auth: signing keys not initialized")

// Init generates a fresh ed25519 key pair. Tokens issued before a restart stop
// validating, which is fine for guests whose rooms do not survive one either.
func Init(ttl time.Duration) error {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}
	publicKey, privateKey = pub, priv
	TokenTTL = ttl
	return nil
}

// InitFromFile loads a raw 64-byte ed25519 private key and derives the public
// half from it.
func InitFromFile(privatePath string, ttl time.Duration) error {
	data, err := os.ReadFile(privatePath)
	if err != nil {
		return fmt.Errorf("failed to read private key file: %w", err)
	}
	if len(data) != ed25519.PrivateKeySize {
		return fmt.Errorf("private key file %s: want %d bytes, got %d", privatePath, ed25519.PrivateKeySize, len(data))
	}
	privateKey = ed25519.PrivateKey(data)
	publicKey = privateKey.Public().(ed25519.PublicKey)
	TokenTTL = ttl
	return nil
}

// ParseTTL reads a duration the way TOKEN_EXPIRE_TIME is written: "never",
// "0" or empty disable expiry.
func ParseTTL(s string) (time.Duration, error) {
	if s == "" || s == "never" || s == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid token expire time %q: %w", s, err)
	}
	return d, nil
}

// CreateJWT signs a token whose subject is the participant id.
func CreateJWT(subject string) (string, error) {
	if privateKey == nil {
		return "", ErrNotInitialized
	}
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": time.Now().Unix(),
	}
	if TokenTTL > 0 {
		claims["exp"] = time.Now().Add(TokenTTL).Unix()
	}
	return jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(privateKey)
}

// AuthenticateJWT verifies tokenString and returns its subject.
func AuthenticateJWT(tokenString string) (string, error) {
	if publicKey == nil {
		return "", ErrNotInitialized
	}
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return publicKey, nil
	})
	if err != nil {
		return "", fmt.Errorf("jwt parse error: %w", err)
	}

	sub, err := t.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", errors.New("missing sub in jwt")
	}
	return sub, nil
}
