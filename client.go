package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

const (
	refreshPath = "refresh/"

	csrfCookieName    = "csrftoken"
	csrfHeaderName    = "X-CSRFToken"
	refreshCookieName = "refresh_token"

	defaultRefreshLeeway = 5 * time.Minute
)

// Client talks to the accounts API. It owns the in-memory access
// credential and the refresh protocol: a 401 on any request except the
// refresh call itself triggers a single-flight refresh, after which the
// failed request is re-issued exactly once. The refresh credential never
// passes through this type; it lives in an HTTP-only cookie managed by
// the cookie jar.
type Client struct {
	h       *http.Client
	baseURL string
	logger  *slog.Logger

	tokenMu     sync.Mutex
	accessToken string

	refreshGroup  singleflight.Group
	refreshLeeway time.Duration
}

type ClientArgs struct {
	H       *http.Client
	BaseURL string
	Logger  *slog.Logger

	// RefreshLeeway is how close to its exp claim a credential may get
	// before EnsureFreshToken refreshes it. Defaults to five minutes.
	RefreshLeeway time.Duration
}

func NewClient(args ClientArgs) (*Client, error) {
	if args.BaseURL == "" {
		return nil, fmt.Errorf("no base url provided")
	}

	if args.H == nil {
		args.H = &http.Client{
			Timeout: 10 * time.Second,
		}
	}

	if args.H.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("could not create cookie jar: %w", err)
		}
		args.H.Jar = jar
	}

	if args.Logger == nil {
		args.Logger = slog.Default()
	}

	if args.RefreshLeeway == 0 {
		args.RefreshLeeway = defaultRefreshLeeway
	}

	if !strings.HasSuffix(args.BaseURL, "/") {
		args.BaseURL += "/"
	}

	return &Client{
		h:             args.H,
		baseURL:       args.BaseURL,
		logger:        args.Logger,
		refreshLeeway: args.RefreshLeeway,
	}, nil
}

// SetAccessToken replaces the in-memory credential. Passing an empty
// string logs the client out locally.
func (c *Client) SetAccessToken(token string) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	c.accessToken = token
}

func (c *Client) AccessToken() string {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	return c.accessToken
}

// HasRefreshCookie reports whether the jar holds a refresh credential for
// the API origin, meaning a me/ fetch could succeed even without an
// access token in memory.
func (c *Client) HasRefreshCookie() bool {
	return c.cookieValue(refreshCookieName) != ""
}

func (c *Client) cookieValue(name string) string {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return ""
	}

	for _, ck := range c.h.Jar.Cookies(u) {
		if ck.Name == name {
			return ck.Value
		}
	}

	return ""
}

// do issues one API request and, on a 401 from anything but the refresh
// endpoint, repairs the credential and retries once. Concurrent 401
// victims share a single refresh call; if it fails they all surface
// their original 401, not the refresh error.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	err := c.send(ctx, method, path, body, out)

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized || path == refreshPath {
		return err
	}

	if _, refreshErr := c.refreshAccessToken(ctx); refreshErr != nil {
		c.SetAccessToken("")
		return err
	}

	// at most one retry: a second 401 here means a genuinely revoked
	// session and is returned as-is
	return c.send(ctx, method, path, body, out)
}

// refreshAccessToken exchanges the cookie-held refresh credential for a
// new access token. All concurrent callers coalesce onto one request.
func (c *Client) refreshAccessToken(ctx context.Context) (string, error) {
	v, err, _ := c.refreshGroup.Do("refresh", func() (any, error) {
		var resp refreshResponse
		if err := c.send(ctx, http.MethodPost, refreshPath, nil, &resp); err != nil {
			c.SetAccessToken("")
			return nil, fmt.Errorf("token refresh failed: %w", err)
		}

		c.SetAccessToken(resp.Access)
		return resp.Access, nil
	})
	if err != nil {
		return "", err
	}

	return v.(string), nil
}

// EnsureFreshToken refreshes the credential proactively when its exp
// claim is within the leeway window. Tokens without a readable exp are
// treated as opaque and left to the reactive 401 path.
func (c *Client) EnsureFreshToken(ctx context.Context) error {
	token := c.AccessToken()
	if token == "" {
		return nil
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}

	if time.Until(exp.Time) > c.refreshLeeway {
		return nil
	}

	_, err = c.refreshAccessToken(ctx)
	return err
}

func (c *Client) send(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("could not marshal request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	if token := c.AccessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	if csrf := c.cookieValue(csrfCookieName); csrf != "" {
		req.Header.Set(csrfHeaderName, csrf)
	}

	resp, err := c.h.Do(req)
	if err != nil {
		return fmt.Errorf("could not get response from server: %w", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("could not read body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp.StatusCode, b)
	}

	if out != nil && len(b) > 0 {
		if err := json.Unmarshal(b, out); err != nil {
			return fmt.Errorf("could not unmarshal response: %w", err)
		}
	}

	return nil
}

func (c *Client) Login(ctx context.Context, payload LoginRequest) (*AuthResponse, error) {
	var resp AuthResponse
	if err := c.do(ctx, http.MethodPost, "login/", payload, &resp); err != nil {
		return nil, err
	}

	c.SetAccessToken(resp.Tokens.Access)
	return &resp, nil
}

func (c *Client) Register(ctx context.Context, payload RegisterRequest) (*AuthResponse, error) {
	var resp AuthResponse
	if err := c.do(ctx, http.MethodPost, "register/", payload, &resp); err != nil {
		return nil, err
	}

	c.SetAccessToken(resp.Tokens.Access)
	return &resp, nil
}

// Logout notifies the server and always clears the local credential,
// whatever the server says.
func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "logout/", nil, nil)
	c.SetAccessToken("")
	if err != nil {
		c.logger.Warn("logout request failed", "error", err)
	}
	return err
}

// CurrentUser fetches the identity record. A 401 is terminal for this
// call: the credential is cleared and (nil, nil) is returned so callers
// treat the user as signed out without retrying.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	var user User
	if err := c.do(ctx, http.MethodGet, "me/", nil, &user); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.IsUnauthorized() {
			c.SetAccessToken("")
			return nil, nil
		}
		return nil, err
	}

	return &user, nil
}

func (c *Client) UpdateProfile(ctx context.Context, updates ProfileUpdate) (*User, error) {
	var user User
	if err := c.do(ctx, http.MethodPatch, "settings/profile/", updates, &user); err != nil {
		return nil, err
	}

	return &user, nil
}

func (c *Client) ChangePassword(ctx context.Context, payload PasswordChangeRequest) error {
	return c.do(ctx, http.MethodPost, "settings/password/", payload, nil)
}

func (c *Client) ChangeEmail(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "settings/email/", map[string]string{"email": email}, nil)
}

func (c *Client) DeleteAccount(ctx context.Context, password string) error {
	return c.do(ctx, http.MethodPost, "settings/delete/", map[string]string{"password": password}, nil)
}

func (c *Client) VerifyEmail(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, "verify-email/", map[string]string{"token": token}, nil)
}

func (c *Client) ResendVerification(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "resend-verification/", map[string]string{"email": email}, nil)
}

func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "password-reset/request/", map[string]string{"email": email}, nil)
}

func (c *Client) ResetPassword(ctx context.Context, token, newPassword, newPasswordConfirm string) error {
	payload := map[string]string{
		"token":                token,
		"new_password":         newPassword,
		"new_password_confirm": newPasswordConfirm,
	}
	return c.do(ctx, http.MethodPost, "password-reset/confirm/", payload, nil)
}

func (c *Client) Sessions(ctx context.Context) ([]UserSession, error) {
	var sessions []UserSession
	if err := c.do(ctx, http.MethodGet, "sessions/", nil, &sessions); err != nil {
		return nil, err
	}

	return sessions, nil
}

func (c *Client) TerminateSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodDelete, "sessions/"+url.PathEscape(sessionID)+"/", nil, nil)
}

// GoogleLoginURL asks the server for the Google OAuth authorization URL
// the user agent should be sent to.
func (c *Client) GoogleLoginURL(ctx context.Context) (string, error) {
	var resp struct {
		AuthorizationURL string `json:"authorization_url"`
	}
	if err := c.do(ctx, http.MethodGet, "oauth/google/initiate/", nil, &resp); err != nil {
		return "", err
	}

	if resp.AuthorizationURL == "" {
		return "", fmt.Errorf("server returned no authorization url")
	}

	return resp.AuthorizationURL, nil
}

// GoogleCallback exchanges the OAuth callback code for a session.
func (c *Client) GoogleCallback(ctx context.Context, code, state string) (*AuthResponse, error) {
	payload := map[string]string{"code": code, "state": state}

	var resp AuthResponse
	if err := c.do(ctx, http.MethodPost, "oauth/google/callback/", payload, &resp); err != nil {
		return nil, err
	}

	c.SetAccessToken(resp.Tokens.Access)
	return &resp, nil
}
