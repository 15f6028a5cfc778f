package apiclient

import (
	"context"
	"encoding/json"
	"net/http"

	"microcourses/internal/core/domain"
)

// AuthEndpoints covers /auth/*. A 401 from any of them ends the session.
type AuthEndpoints struct {
	c *Client
}

func (a *AuthEndpoints) Register(ctx context.Context, req domain.RegisterRequest) (*domain.AuthPayload, error) {
	var out domain.AuthPayload
	if err := a.c.Do(ctx, Request{Method: http.MethodPost, Path: "/auth/register", Body: req}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *AuthEndpoints) Login(ctx context.Context, req domain.LoginRequest) (*domain.AuthPayload, error) {
	var out domain.AuthPayload
	if err := a.c.Do(ctx, Request{Method: http.MethodPost, Path: "/auth/login", Body: req}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *AuthEndpoints) Logout(ctx context.Context) error {
	return a.c.Do(ctx, Request{Method: http.MethodPost, Path: "/auth/logout"}, nil)
}

func (a *AuthEndpoints) Profile(ctx context.Context) (*domain.User, error) {
	var out struct {
		User *domain.User `json:"user"`
	}
	if err := a.c.Do(ctx, Request{Method: http.MethodGet, Path: "/auth/profile"}, &out); err != nil {
		return nil, err
	}
	if out.User == nil {
		return nil, domain.ErrNotAuthenticated
	}
	return out.User, nil
}

func (a *AuthEndpoints) UpdateProfile(ctx context.Context, update domain.ProfileUpdate) (json.RawMessage, error) {
	var out struct {
		User json.RawMessage `json:"user"`
	}
	if err := a.c.Do(ctx, Request{Method: http.MethodPut, Path: "/auth/profile", Body: update}, &out); err != nil {
		return nil, err
	}
	return out.User, nil
}

func (a *AuthEndpoints) ChangePassword(ctx context.Context, change domain.PasswordChange) error {
	return a.c.Do(ctx, Request{Method: http.MethodPut, Path: "/auth/change-password", Body: change}, nil)
}

func (a *AuthEndpoints) ApplyForCreator(ctx context.Context, req domain.CreatorApplicationRequest) (*domain.CreatorApplication, error) {
	var out struct {
		CreatorApplication *domain.CreatorApplication `json:"creatorApplication"`
	}
	if err := a.c.Do(ctx, Request{Method: http.MethodPost, Path: "/auth/apply-creator", Body: req}, &out); err != nil {
		return nil, err
	}
	return out.CreatorApplication, nil
}
