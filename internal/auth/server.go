// internal/auth/server.go
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenTypeUser   = "user"
	tokenTypeServer = "server"
)

// ErrInvalidServerToken is returned for any token that does not identify a dedicated server.
var ErrInvalidServerToken = errors.New("invalid dedicated server token")

// ServerPrincipal identifies a dedicated server that has connected back.
type ServerPrincipal struct {
	ServerID uuid.UUID `json:"serverId"`
	PoolID   string    `json:"poolId"`
}

// ServerAuthenticator turns the single opaque token a dedicated server presents into a principal.
type ServerAuthenticator interface {
	Authenticate(ctx context.Context, token string) (ServerPrincipal, error)
}

// ServerTokens issues and verifies dedicated-server tokens signed with the process key.
// A zero TTL issues tokens without expiry.
type ServerTokens struct {
	TTL time.Duration
}

// IssueServerToken signs a token that lets the server with the given id authenticate once started.
func (s ServerTokens) IssueServerToken(serverID uuid.UUID, poolID string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  serverID.String(),
		"pool": poolID,
		"typ":  tokenTypeServer,
		"iat":  now.Unix(),
	}
	if s.TTL != 0 {
		claims["exp"] = now.Add(s.TTL).Unix()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(privateKey)
}

// Authenticate implements ServerAuthenticator.
func (s ServerTokens) Authenticate(ctx context.Context, token string) (ServerPrincipal, error) {
	claims, err := parse(token)
	if err != nil {
		return ServerPrincipal{}, fmt.Errorf("%w: %w", ErrInvalidServerToken, err)
	}
	if typ, _ := claims["typ"].(string); typ != tokenTypeServer {
		return ServerPrincipal{}, fmt.Errorf("%w: not a server token", ErrInvalidServerToken)
	}
	sub, _ := claims["sub"].(string)
	serverID, err := uuid.Parse(sub)
	if err != nil {
		return ServerPrincipal{}, fmt.Errorf("%w: bad subject: %w", ErrInvalidServerToken, err)
	}
	poolID, _ := claims["pool"].(string)
	return ServerPrincipal{ServerID: serverID, PoolID: poolID}, nil
}
