// SkillSwap Gateway - Guarded Route Delivery for the SkillSwap Web Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skillswap-gateway

package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"

	"github.com/tomtom215/skillswap-gateway/internal/authz"
)

// Tokens is a credential pair issued by the SkillSwap API.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int `json:"expires_in"`
}

// LoginResult is the answer to a password login.
type LoginResult struct {
	Tokens
	TwoFactorRequired bool   `json:"two_factor_required"`
	Challenge         string `json:"challenge_token,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type twoFactorRequest struct {
	Challenge string `json:"challenge_token"`
	Code      string `json:"code"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Login exchanges credentials for tokens. When the account has two-factor
// authentication enabled it returns the challenge together with
// ErrTwoFactorRequired.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var out LoginResult
	if err := c.do(ctx, "login", http.MethodPost, "/api/auth/login", "", loginRequest{Email: email, Password: password}, &out); err != nil {
		return nil, err
	}
	if out.TwoFactorRequired {
		if out.Challenge == "" {
			return nil, fmt.Errorf("login: %w: two-factor challenge missing", ErrInvalidResponse)
		}
		return &out, ErrTwoFactorRequired
	}
	if out.AccessToken == "" {
		return nil, fmt.Errorf("login: %w: access token missing", ErrInvalidResponse)
	}
	return &out, nil
}

// VerifyTwoFactor completes a login challenged for a second factor.
func (c *Client) VerifyTwoFactor(ctx context.Context, challenge, code string) (*Tokens, error) {
	var out Tokens
	if err := c.do(ctx, "verify_2fa", http.MethodPost, "/api/auth/2fa/verify", "", twoFactorRequest{Challenge: challenge, Code: code}, &out); err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, fmt.Errorf("verify_2fa: %w: access token missing", ErrInvalidResponse)
	}
	return &out, nil
}

// Refresh rotates a refresh token into a new credential pair.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	var out Tokens
	if err := c.do(ctx, "refresh", http.MethodPost, "/api/auth/refresh", "", refreshRequest{RefreshToken: refreshToken}, &out); err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, fmt.Errorf("refresh: %w: access token missing", ErrInvalidResponse)
	}
	if out.RefreshToken == "" {
		out.RefreshToken = refreshToken
	}
	return &out, nil
}

// Logout revokes the credential pair. An already revoked pair is not an error.
func (c *Client) Logout(ctx context.Context, accessToken, refreshToken string) error {
	err := c.do(ctx, "logout", http.MethodPost, "/api/auth/logout", accessToken, refreshRequest{RefreshToken: refreshToken}, nil)
	if errors.Is(err, ErrUnauthorized) {
		return nil
	}
	return err
}

// Profile fetches the user behind accessToken.
func (c *Client) Profile(ctx context.Context, accessToken string) (*authz.User, error) {
	var out authz.User
	if err := c.do(ctx, "profile", http.MethodGet, "/api/users/me", accessToken, nil, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, fmt.Errorf("profile: %w: user id missing", ErrInvalidResponse)
	}
	return &out, nil
}

// Resolve fetches the roles and permissions the API grants userID. Roles
// asserted by the access token are merged in. It implements authz.Resolver.
func (c *Client) Resolve(ctx context.Context, userID string, tokenRoles []string) (authz.Grants, error) {
	var out authz.Grants
	path := "/api/users/" + url.PathEscape(userID) + "/permissions"
	if err := c.do(ctx, "permissions", http.MethodGet, path, c.serviceToken, nil, &out); err != nil {
		return authz.Grants{}, err
	}
	for _, role := range tokenRoles {
		if !slices.Contains(out.Roles, role) {
			out.Roles = append(out.Roles, role)
		}
	}
	return out, nil
}

var _ authz.Resolver = (*Client)(nil)
