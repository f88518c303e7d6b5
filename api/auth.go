package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"

	models "storefront/model"
)

// Register creates an account. It does not log in.
func (c *Client) Register(ctx context.Context, req models.RegisterRequest) error {
	body := struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}{req.Username, req.Email, req.Password}
	return c.do(ctx, "auth.register", http.MethodPost, "accounts/register/", body, nil)
}

// Login exchanges credentials for a token pair.
func (c *Client) Login(ctx context.Context, req models.LoginRequest) (models.Credentials, error) {
	var out models.Credentials
	if err := c.do(ctx, "auth.token", http.MethodPost, "token/", req, &out); err != nil {
		return models.Credentials{}, err
	}
	if out.Empty() {
		return models.Credentials{}, &Error{Kind: KindNetwork, Message: "token response carried no access token"}
	}
	return out, nil
}

// RefreshToken exchanges a refresh token for a new pair. When the backend
// does not rotate the refresh token the old one is kept.
func (c *Client) RefreshToken(ctx context.Context, refresh string) (models.Credentials, error) {
	var out models.Credentials
	body := map[string]string{"refresh": refresh}
	if err := c.do(ctx, "auth.refresh", http.MethodPost, "token/refresh/", body, &out); err != nil {
		return models.Credentials{}, err
	}
	if out.Refresh == "" {
		out.Refresh = refresh
	}
	return out, nil
}

// Profile fetches the account of the bearer.
func (c *Client) Profile(ctx context.Context) (models.Profile, error) {
	var p models.Profile
	if err := c.do(ctx, "auth.profile", http.MethodGet, "accounts/my/account/", nil, &p); err != nil {
		return models.Profile{}, err
	}
	return p, nil
}

// UpdateProfile writes the account and returns the stored profile. The
// backend answers either {"user": {...}} or the bare profile.
func (c *Client) UpdateProfile(ctx context.Context, req models.ProfileUpdate) (models.Profile, error) {
	raw, err := c.doRaw(ctx, "auth.profile_update", http.MethodPut, "accounts/my/account/", req)
	if err != nil {
		return models.Profile{}, err
	}
	payload := gjson.ParseBytes(raw)
	if u := payload.Get("user"); u.Exists() && u.IsObject() {
		payload = u
	}
	var p models.Profile
	if err := json.Unmarshal([]byte(payload.Raw), &p); err != nil {
		return models.Profile{}, &Error{Kind: KindNetwork, Message: "unexpected response from the store", Cause: fmt.Errorf("decode profile: %w", err)}
	}
	return p, nil
}

// ChangePassword changes the bearer's password.
func (c *Client) ChangePassword(ctx context.Context, req models.PasswordChange) error {
	body := struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}{req.OldPassword, req.NewPassword}
	return c.do(ctx, "auth.change_password", http.MethodPost, "accounts/change_password/", body, nil)
}
