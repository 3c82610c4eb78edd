package token

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestMintAndLocalVerify(t *testing.T) {
	secret := []byte("test-secret")
	m := NewMinter(secret)
	v := NewLocalVerifier(secret, "admin")

	tok, err := m.Mint("user-1", "Alice", "report.docx", true)
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}

	id, err := v.Verify(tok)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if id.UserID != "user-1" || id.Name != "Alice" || id.FileID != "report.docx" {
		t.Errorf("Identity mismatch: %+v", id)
	}
	if !id.CanWrite {
		t.Error("Expected CanWrite=true")
	}
	if id.IsAdminUser {
		t.Error("Alice should not be admin")
	}
}

func TestLocalVerify_SuperAdmin(t *testing.T) {
	secret := []byte("test-secret")
	m := NewMinter(secret)
	v := NewLocalVerifier(secret, "admin")

	tok, _ := m.Mint("user-2", "admin", "", false)
	id, err := v.Verify(tok)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !id.IsAdminUser {
		t.Error("Expected IsAdminUser for configured super-admin name")
	}
	if id.CanWrite {
		t.Error("Local tokens honor their canWrite claim")
	}
}

func TestLocalVerify_WrongSecret(t *testing.T) {
	m := NewMinter([]byte("secret-a"))
	v := NewLocalVerifier([]byte("secret-b"), "admin")

	tok, _ := m.Mint("user-1", "Alice", "", true)
	if _, err := v.Verify(tok); err == nil {
		t.Error("Expected verification failure for wrong secret")
	}
}

func TestLocalVerify_Expired(t *testing.T) {
	secret := []byte("test-secret")
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
		UserID: "user-1",
		Name:   "Alice",
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	v := NewLocalVerifier(secret, "admin")
	if _, err := v.Verify(tok); err == nil {
		t.Error("Expected verification failure for expired token")
	}
}

// stubVerifier lets chain tests control the outcome of each link.
type stubVerifier struct {
	id  *Identity
	err error
}

func (s *stubVerifier) Verify(string) (*Identity, error) { return s.id, s.err }

func TestChain_PriorityOrder(t *testing.T) {
	provider := &stubVerifier{id: &Identity{UserID: "from-provider", CanWrite: true}}
	local := &stubVerifier{id: &Identity{UserID: "from-local"}}

	id, err := NewChain(provider, local).Verify("tok")
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if id.UserID != "from-provider" {
		t.Errorf("Provider verifier must take precedence, got %q", id.UserID)
	}
}

func TestChain_Fallback(t *testing.T) {
	provider := &stubVerifier{err: errors.New("no key")}
	local := &stubVerifier{id: &Identity{UserID: "from-local"}}

	id, err := NewChain(provider, local).Verify("tok")
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if id.UserID != "from-local" {
		t.Errorf("Expected local fallback identity, got %q", id.UserID)
	}
}

func TestChain_AllFail(t *testing.T) {
	failing := &stubVerifier{err: errors.New("nope")}

	_, err := NewChain(failing, failing).Verify("tok")
	if !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("Expected ErrUnauthenticated, got %v", err)
	}
}
