package services

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/desertthunder/viewsync/internal/shared"
)

// Credentials provides the opaque session token (ks) sent with every request.
type Credentials interface {
	Token(ctx context.Context) (string, error)
}

// TokenCredentials adapts an [oauth2.TokenSource] to [Credentials].
//
// Hosts with refreshable sessions plug their own source; a fixed ks uses [NewStaticCredentials].
type TokenCredentials struct {
	src oauth2.TokenSource
}

// NewTokenCredentials wraps src, reusing its token until it expires.
func NewTokenCredentials(src oauth2.TokenSource) *TokenCredentials {
	return &TokenCredentials{src: oauth2.ReuseTokenSource(nil, src)}
}

// NewStaticCredentials returns credentials for a fixed ks. An empty ks yields [shared.ErrNoCredentials] on use.
func NewStaticCredentials(ks string) *TokenCredentials {
	return &TokenCredentials{src: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: ks})}
}

// Token returns the current session token.
func (c *TokenCredentials) Token(ctx context.Context) (string, error) {
	if c == nil || c.src == nil {
		return "", shared.ErrNoCredentials
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	tok, err := c.src.Token()
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrNoCredentials, err)
	}
	if tok == nil || tok.AccessToken == "" {
		return "", shared.ErrNoCredentials
	}
	return tok.AccessToken, nil
}
