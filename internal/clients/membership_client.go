// internal/clients/membership_client.go
package clients

import (
	"context"
	"net/http"
	"time"

	"bookstore/internal/membership"
)

// Session is the result of registering or logging in.
type Session struct {
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expires_at"`
	User      *membership.User `json:"user"`
}

func (c *Client) Register(ctx context.Context, email, name, password string) (*Session, error) {
	req := map[string]string{"email": email, "name": name, "password": password}
	var session Session
	if err := c.do(ctx, http.MethodPost, "/auth/register", req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	req := map[string]string{"email": email, "password": password}
	var session Session
	if err := c.do(ctx, http.MethodPost, "/auth/login", req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}
