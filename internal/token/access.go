package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LocalTokenTTL is the lifetime of access tokens minted by this host.
// Provider-issued tokens carry their own expiry.
const LocalTokenTTL = 10 * time.Hour

// Claims is the payload of a locally minted access token.
type Claims struct {
	jwt.RegisteredClaims
	UserID   string `json:"userId"`
	Name     string `json:"name"`
	FileID   string `json:"fileId,omitempty"`
	CanWrite bool   `json:"canWrite"`
}

// Identity is the authenticated capability set attached to every request
// that passes the authorization gate.
type Identity struct {
	UserID      string
	Name        string
	FileID      string
	CanWrite    bool
	IsAdminUser bool
}

// Minter creates locally signed (HS256) access tokens.
type Minter struct {
	secret []byte
}

// NewMinter creates a Minter with the given signing secret.
func NewMinter(secret []byte) *Minter {
	return &Minter{secret: secret}
}

// Mint signs an access token for the user with a LocalTokenTTL expiry.
func (m *Minter) Mint(userID, name, fileID string, canWrite bool) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(LocalTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		UserID:   userID,
		Name:     name,
		FileID:   fileID,
		CanWrite: canWrite,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(m.secret)
}
