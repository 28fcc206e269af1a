package auth

import (
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mmynk/splitledger/internal/models"
)

func TestBcryptHasher(t *testing.T) {
	h := BcryptHasher{Cost: bcrypt.MinCost}

	hash, err := h.Hash("secret123")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if hash == "secret123" {
		t.Fatal("Hash returned the plaintext")
	}
	if err := h.Verify(hash, "secret123"); err != nil {
		t.Errorf("Verify with the right password = %v", err)
	}
	if err := h.Verify(hash, "wrong"); !errors.Is(err, ErrPasswordMismatch) {
		t.Errorf("Verify with a wrong password = %v, want ErrPasswordMismatch", err)
	}
}

func TestJWTManager(t *testing.T) {
	user := &models.User{ID: "user-1", Username: "alice"}
	m := NewJWTManager("test-secret", time.Hour)

	token, err := m.Generate(user)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	claims, err := m.Validate(token)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if claims.UserID != "user-1" || claims.Username != "alice" {
		t.Errorf("claims = %+v, want user-1/alice", claims)
	}

	t.Run("wrong secret", func(t *testing.T) {
		other := NewJWTManager("other-secret", time.Hour)
		if _, err := other.Validate(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Validate = %v, want ErrInvalidToken", err)
		}
	})

	t.Run("expired", func(t *testing.T) {
		late := NewJWTManager("test-secret", time.Hour)
		late.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		if _, err := late.Validate(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Validate = %v, want ErrInvalidToken", err)
		}
	})

	t.Run("garbage", func(t *testing.T) {
		if _, err := m.Validate("not.a.token"); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Validate = %v, want ErrInvalidToken", err)
		}
	})
}
