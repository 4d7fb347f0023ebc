package auth

import (
	"errors"
	"sync"
	"testing"
	"time"
)

var (
	hashOnce sync.Once
	hashVal  string
)

// testHash returns the Argon2id hash of "s3cret", computed once per run.
func testHash(t *testing.T) string {
	t.Helper()
	hashOnce.Do(func() {
		h, err := HashPassword("s3cret")
		if err != nil {
			t.Fatalf("HashPassword() error = %v", err)
		}
		hashVal = h
	})
	return hashVal
}

func testAccounts(t *testing.T) []Account {
	return []Account{
		{Username: "pilot", PasswordHash: testHash(t), Role: RoleOperator},
		{Username: "watcher", PasswordHash: testHash(t), Role: RoleViewer},
	}
}

func TestNewAuthenticator_Validation(t *testing.T) {
	hash := testHash(t)

	tests := []struct {
		name     string
		secret   string
		accounts []Account
		wantErr  error
	}{
		{"missing secret", "", testAccounts(t), ErrMissingSecret},
		{"short secret", "short", testAccounts(t), ErrMissingSecret},
		{"no accounts", testSecret, nil, ErrNoAccounts},
		{"empty username", testSecret, []Account{{PasswordHash: hash, Role: RoleViewer}}, nil},
		{"duplicate", testSecret, []Account{
			{Username: "a", PasswordHash: hash, Role: RoleViewer},
			{Username: "a", PasswordHash: hash, Role: RoleOperator},
		}, nil},
		{"bad role", testSecret, []Account{{Username: "a", PasswordHash: hash, Role: "root"}}, nil},
		{"bad hash", testSecret, []Account{{Username: "a", PasswordHash: "plain", Role: RoleViewer}}, ErrInvalidHash},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAuthenticator(tt.secret, time.Minute, tt.accounts)
			if err == nil {
				t.Fatal("NewAuthenticator() should fail")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewAuthenticator_DefaultTTL(t *testing.T) {
	a, err := NewAuthenticator(testSecret, 0, testAccounts(t))
	if err != nil {
		t.Fatalf("NewAuthenticator() error = %v", err)
	}
	if a.TTL() != DefaultTokenTTL {
		t.Errorf("TTL() = %v, want %v", a.TTL(), DefaultTokenTTL)
	}
}

func TestAuthenticator_LoginAndVerify(t *testing.T) {
	a, err := NewAuthenticator(testSecret, 5*time.Minute, testAccounts(t))
	if err != nil {
		t.Fatalf("NewAuthenticator() error = %v", err)
	}

	token, claims, err := a.Login("pilot", "s3cret")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if claims.Subject != "pilot" || claims.Role != RoleOperator {
		t.Errorf("claims = %+v, want pilot/operator", claims)
	}

	got, err := a.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if got.Subject != "pilot" {
		t.Errorf("Verify() subject = %q, want pilot", got.Subject)
	}
}

func TestAuthenticator_LoginRejected(t *testing.T) {
	a, err := NewAuthenticator(testSecret, time.Minute, testAccounts(t))
	if err != nil {
		t.Fatalf("NewAuthenticator() error = %v", err)
	}

	if _, _, err := a.Login("pilot", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password error = %v, want ErrInvalidCredentials", err)
	}
	if _, _, err := a.Login("nobody", "s3cret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown user error = %v, want ErrInvalidCredentials", err)
	}
}

func TestAuthenticator_VerifyRemovedAccount(t *testing.T) {
	token, _, err := IssueToken(Account{Username: "former", Role: RoleOperator}, testSecret, time.Minute)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	a, err := NewAuthenticator(testSecret, time.Minute, testAccounts(t))
	if err != nil {
		t.Fatalf("NewAuthenticator() error = %v", err)
	}
	if _, err := a.Verify(token); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("Verify() error = %v, want ErrTokenInvalid", err)
	}

	// Same user, role changed since the token was issued.
	token, _, err = IssueToken(Account{Username: "watcher", Role: RoleOperator}, testSecret, time.Minute)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	if _, err := a.Verify(token); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("Verify() role mismatch error = %v, want ErrTokenInvalid", err)
	}
}
