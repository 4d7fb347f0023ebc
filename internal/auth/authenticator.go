package auth

import (
	"fmt"
	"time"
)

// MinSecretLength is the shortest accepted JWT signing secret.
const MinSecretLength = 32

// Authenticator checks operator credentials and issues and verifies tokens.
//
// It holds no mutable state after construction and is safe for concurrent use.
type Authenticator struct {
	secret   string
	ttl      time.Duration
	accounts map[string]Account
}

// NewAuthenticator validates the accounts and signing settings.
//
// Parameters:
//   - secret: HS256 signing secret, at least MinSecretLength bytes
//   - ttl: Token lifetime; DefaultTokenTTL when not positive
//   - accounts: Operator logins; usernames must be unique
//
// Returns:
//   - *Authenticator: Ready to use
//   - error: Describing the first invalid setting
func NewAuthenticator(secret string, ttl time.Duration, accounts []Account) (*Authenticator, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("%w: must be at least %d characters", ErrMissingSecret, MinSecretLength)
	}
	if len(accounts) == 0 {
		return nil, ErrNoAccounts
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	a := &Authenticator{
		secret:   secret,
		ttl:      ttl,
		accounts: make(map[string]Account, len(accounts)),
	}
	for _, acct := range accounts {
		if acct.Username == "" {
			return nil, fmt.Errorf("account username is required")
		}
		if _, dup := a.accounts[acct.Username]; dup {
			return nil, fmt.Errorf("duplicate account %q", acct.Username)
		}
		if !acct.Role.IsValid() {
			return nil, fmt.Errorf("account %q: unknown role %q", acct.Username, acct.Role)
		}
		if err := CheckHash(acct.PasswordHash); err != nil {
			return nil, fmt.Errorf("account %q: %w", acct.Username, err)
		}
		a.accounts[acct.Username] = acct
	}
	return a, nil
}

// TTL returns the lifetime of issued tokens.
func (a *Authenticator) TTL() time.Duration {
	return a.ttl
}

// Login verifies the credentials and issues a token.
// Unknown usernames and wrong passwords both return ErrInvalidCredentials.
//
// Returns:
//   - string: Signed token
//   - *Claims: The claims carried by the token
//   - error: ErrInvalidCredentials, or a signing failure
func (a *Authenticator) Login(username, password string) (string, *Claims, error) {
	acct, ok := a.accounts[username]
	if !ok {
		return "", nil, ErrInvalidCredentials
	}

	match, err := VerifyPassword(password, acct.PasswordHash)
	if err != nil {
		return "", nil, fmt.Errorf("verifying password: %w", err)
	}
	if !match {
		return "", nil, ErrInvalidCredentials
	}

	token, _, err := IssueToken(acct, a.secret, a.ttl)
	if err != nil {
		return "", nil, err
	}
	claims, err := ParseToken(token, a.secret)
	if err != nil {
		return "", nil, err
	}
	return token, claims, nil
}

// Verify parses a token and confirms its subject is still a configured
// account with the same role.
func (a *Authenticator) Verify(token string) (*Claims, error) {
	claims, err := ParseToken(token, a.secret)
	if err != nil {
		return nil, err
	}

	acct, ok := a.accounts[claims.Subject]
	if !ok || acct.Role != claims.Role {
		return nil, fmt.Errorf("%w: account %q no longer matches", ErrTokenInvalid, claims.Subject)
	}
	return claims, nil
}
