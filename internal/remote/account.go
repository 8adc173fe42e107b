package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/mrlokans/storynest/internal/identity"
)

var (
	// ErrInvalidLogin is returned for rejected credentials.
	ErrInvalidLogin = errors.New("wrong email or password")
	// ErrWrongPassword is returned when a password change names the wrong
	// current password.
	ErrWrongPassword = errors.New("current password is incorrect")
)

// SignIn is the result of a login or registration.
type SignIn struct {
	Token string            `json:"token"`
	User  identity.Identity `json:"user"`
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

// Login exchanges credentials for an API token and starts using it.
func (c *Client) Login(ctx context.Context, email, password string) (SignIn, error) {
	var out SignIn
	err := c.doJSON(ctx, http.MethodPost, "/api/auth/login", credentials{Email: email, Password: password}, &out)
	if errors.Is(err, ErrUnauthorized) {
		return SignIn{}, ErrInvalidLogin
	}
	if err != nil {
		return SignIn{}, errors.Wrap(err, "logging in")
	}
	c.SetToken(out.Token)
	return out, nil
}

// Register creates an account, signs it in and starts using its token.
func (c *Client) Register(ctx context.Context, email, password, name string) (SignIn, error) {
	var out SignIn
	in := credentials{Email: email, Password: password, Name: name}
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/register", in, &out); err != nil {
		return SignIn{}, errors.Wrap(err, "registering")
	}
	c.SetToken(out.Token)
	return out, nil
}

// Me returns the identity the current token belongs to.
func (c *Client) Me(ctx context.Context) (identity.Identity, error) {
	var id identity.Identity
	if err := c.doJSON(ctx, http.MethodGet, "/api/auth/me", nil, &id); err != nil {
		return identity.Identity{}, errors.Wrap(err, "fetching current user")
	}
	return id, nil
}

// Logout revokes the current token on the server and forgets it.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/logout", nil, nil); err != nil {
		return errors.Wrap(err, "logging out")
	}
	c.SetToken("")
	return nil
}

// ProfileChanges lists the account fields to change. Nil fields are left
// alone and an empty string clears the field.
type ProfileChanges struct {
	Name      *string `json:"name,omitempty"`
	Username  *string `json:"username,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}

// UpdateProfile changes the signed-in account and returns its new identity.
func (c *Client) UpdateProfile(ctx context.Context, changes ProfileChanges) (identity.Identity, error) {
	var id identity.Identity
	if err := c.doJSON(ctx, http.MethodPatch, "/api/auth/me", changes, &id); err != nil {
		return identity.Identity{}, errors.Wrap(err, "updating profile")
	}
	return id, nil
}

type passwordChange struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ChangePassword replaces the account password. The current token stays valid.
func (c *Client) ChangePassword(ctx context.Context, current, next string) error {
	err := c.doJSON(ctx, http.MethodPost, "/api/auth/password", passwordChange{CurrentPassword: current, NewPassword: next}, nil)
	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusForbidden {
		return ErrWrongPassword
	}
	if err != nil {
		return errors.Wrap(err, "changing password")
	}
	return nil
}

// UploadCover sends an image as the multipart field "file" and returns the
// URL the server stored it under.
func (c *Client) UploadCover(ctx context.Context, filename string, r io.Reader) (string, error) {
	url, err := c.upload(ctx, "/api/covers", filename, r)
	if err != nil {
		return "", errors.Wrap(err, "uploading cover")
	}
	return url, nil
}

// UploadAvatar stores a profile picture and returns its URL. Pass the URL to
// UpdateProfile to use it.
func (c *Client) UploadAvatar(ctx context.Context, filename string, r io.Reader) (string, error) {
	url, err := c.upload(ctx, "/api/avatars", filename, r)
	if err != nil {
		return "", errors.Wrap(err, "uploading avatar")
	}
	return url, nil
}

func (c *Client) upload(ctx context.Context, path, filename string, r io.Reader) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return "", errors.Wrap(err, "creating form file")
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", errors.Wrap(err, "reading image")
	}
	if err := mw.Close(); err != nil {
		return "", errors.Wrap(err, "closing form")
	}

	req, err := c.newRequest(ctx, http.MethodPost, path, &body, mw.FormDataContentType())
	if err != nil {
		return "", err
	}
	res, err := c.do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	var out struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", errors.Wrap(err, "decoding upload response")
	}
	return out.URL, nil
}
