// Package auth authenticates API callers with JWTs or machine tokens.
package auth

import (
	"errors"
	"fmt"
	"sync"

	"github.com/KevinKickass/et7000d/internal/config"
)

type Permission string

const (
	PermRead  Permission = "read"
	PermWrite Permission = "write"
)

type Role string

const (
	RoleViewer   Role = "viewer"
	RoleOperator Role = "operator"
)

var ErrUnauthorized = errors.New("invalid or expired token")

// Permissions returns what role may do; unknown roles get nothing.
func (r Role) Permissions() []Permission {
	switch r {
	case RoleViewer:
		return []Permission{PermRead}
	case RoleOperator:
		return []Permission{PermRead, PermWrite}
	default:
		return nil
	}
}

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleViewer, RoleOperator:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Identity is an authenticated caller.
type Identity struct {
	Subject string
	Role    Role
}

type Service struct {
	jwtHandler *JWTHandler
	hasher     *TokenHasher
	tokens     map[string]config.MachineToken

	// verified caches machine tokens already checked against their hash.
	mu       sync.RWMutex
	verified map[string]string
}

func NewService(cfg config.AuthConfig) (*Service, error) {
	tokens := make(map[string]config.MachineToken, len(cfg.Tokens))
	for _, t := range cfg.Tokens {
		if _, err := ParseRole(t.Role); err != nil {
			return nil, fmt.Errorf("machine token %s: %w", t.Name, err)
		}
		if _, dup := tokens[t.Name]; dup {
			return nil, fmt.Errorf("duplicate machine token %s", t.Name)
		}
		tokens[t.Name] = t
	}

	return &Service{
		jwtHandler: NewJWTHandler(cfg.JWTSecret, cfg.TokenTTL),
		hasher:     NewTokenHasher(),
		tokens:     tokens,
		verified:   make(map[string]string),
	}, nil
}

// IssueToken signs a JWT for subject.
func (a *Service) IssueToken(subject string, role Role) (string, error) {
	if _, err := ParseRole(string(role)); err != nil {
		return "", err
	}
	return a.jwtHandler.GenerateAccessToken(subject, role)
}

// Authenticate accepts a JWT or a configured machine token.
func (a *Service) Authenticate(token string) (Identity, error) {
	if name, ok := machineTokenName(token); ok {
		return a.authenticateMachine(name, token)
	}

	claims, err := a.jwtHandler.ValidateAccessToken(token)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	role, err := ParseRole(claims.Role)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return Identity{Subject: claims.Subject, Role: role}, nil
}

func (a *Service) authenticateMachine(name, token string) (Identity, error) {
	mt, ok := a.tokens[name]
	if !ok {
		return Identity{}, ErrUnauthorized
	}
	identity := Identity{Subject: name, Role: Role(mt.Role)}

	a.mu.RLock()
	cached := a.verified[name]
	a.mu.RUnlock()
	if cached != "" && cached == token {
		return identity, nil
	}

	valid, err := a.hasher.Verify(token, mt.Hash)
	if err != nil || !valid {
		return Identity{}, ErrUnauthorized
	}

	a.mu.Lock()
	a.verified[name] = token
	a.mu.Unlock()
	return identity, nil
}
