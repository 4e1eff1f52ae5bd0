package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const defaultStaleTime = 5 * time.Minute

// SessionStore is the single source of truth for "is a user signed in".
// It caches the identity record in memory with a freshness window, keeps
// an advisory copy in a ProfileStore for optimistic first paint, and
// exposes the login/register/logout/profile mutations that are allowed
// to change it.
type SessionStore struct {
	client   *Client
	profiles ProfileStore
	limiter  *LoginLimiter
	policy   LoginPolicy
	logger   *slog.Logger

	mu        sync.Mutex
	user      *User
	fetchedAt time.Time

	staleTime time.Duration
}

type SessionStoreArgs struct {
	Client   *Client
	Profiles ProfileStore
	Policy   LoginPolicy
	Logger   *slog.Logger

	// StaleTime is how long a fetched identity record is served from
	// memory before me/ is consulted again. Defaults to five minutes.
	StaleTime time.Duration
}

func NewSessionStore(args SessionStoreArgs) (*SessionStore, error) {
	if args.Client == nil {
		return nil, fmt.Errorf("no client provided")
	}

	if args.Profiles == nil {
		args.Profiles = NewMemoryProfileStore()
	}

	if args.Logger == nil {
		args.Logger = slog.Default()
	}

	if args.StaleTime == 0 {
		args.StaleTime = defaultStaleTime
	}

	args.Policy.applyDefaults()

	return &SessionStore{
		client:    args.Client,
		profiles:  args.Profiles,
		limiter:   NewLoginLimiter(),
		policy:    args.Policy,
		logger:    args.Logger,
		staleTime: args.StaleTime,
	}, nil
}

func (s *SessionStore) Client() *Client {
	return s.client
}

// CurrentUser returns the signed-in identity, or nil when nobody is.
// While the cached record is fresh no network call is made. Without a
// credential in memory or a refresh-capable cookie it short-circuits to
// nil so an anonymous page load never produces a 401 round trip.
func (s *SessionStore) CurrentUser(ctx context.Context) (*User, error) {
	s.mu.Lock()
	if s.user != nil && time.Since(s.fetchedAt) < s.staleTime {
		u := *s.user
		s.mu.Unlock()
		return &u, nil
	}
	s.mu.Unlock()

	if s.client.AccessToken() == "" && !s.client.HasRefreshCookie() {
		return nil, nil
	}

	user, err := s.client.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}

	// a nil user means the credential was rejected; treat as signed out
	s.setUser(user)
	if user == nil {
		return nil, nil
	}

	u := *user
	return &u, nil
}

// CachedUser returns the advisory identity copy without touching the
// network: memory first, then the durable store. Never use this for
// access-control decisions.
func (s *SessionStore) CachedUser() *User {
	s.mu.Lock()
	if s.user != nil {
		u := *s.user
		s.mu.Unlock()
		return &u
	}
	s.mu.Unlock()

	user, err := s.profiles.Load()
	if err != nil {
		s.logger.Warn("could not load persisted profile", "error", err)
		return nil
	}

	return user
}

func (s *SessionStore) IsAuthenticated(ctx context.Context) bool {
	user, err := s.CurrentUser(ctx)
	return err == nil && user != nil
}

// RequiresCaptcha reports whether enough login attempts have failed for
// this email that the UI should gate the next attempt behind a captcha.
func (s *SessionStore) RequiresCaptcha(email string) bool {
	return s.limiter.Count(loginKey(email)) >= s.policy.CaptchaThreshold
}

func (s *SessionStore) Login(ctx context.Context, payload LoginRequest) (*User, error) {
	if errs := ValidateLogin(payload); errs != nil {
		return nil, errs
	}

	key := loginKey(payload.Email)
	if !s.limiter.Allow(key, s.policy.MaxAttempts, s.policy.Window) {
		return nil, fmt.Errorf("too many login attempts, try again in %d minutes", int(s.policy.Window.Minutes()))
	}

	resp, err := s.client.Login(ctx, payload)
	if err != nil {
		return nil, err
	}

	s.limiter.Clear(key)
	s.setUser(&resp.User)

	u := resp.User
	return &u, nil
}

func (s *SessionStore) Register(ctx context.Context, payload RegisterRequest) (*User, error) {
	if errs := ValidateRegister(payload); errs != nil {
		return nil, errs
	}

	resp, err := s.client.Register(ctx, payload)
	if err != nil {
		return nil, err
	}

	s.setUser(&resp.User)

	u := resp.User
	return &u, nil
}

// Logout is best-effort against the server and unconditional locally.
func (s *SessionStore) Logout(ctx context.Context) {
	_ = s.client.Logout(ctx)
	s.setUser(nil)
}

// AdoptSession installs a session obtained outside the normal login call,
// e.g. from a completed BankID ceremony or an OAuth callback.
func (s *SessionStore) AdoptSession(user User, tokens Tokens) {
	s.client.SetAccessToken(tokens.Access)
	s.setUser(&user)
}

// UpdateProfile applies the change optimistically: the pre-mutation
// snapshot is captured synchronously, the tentative merge is visible
// while the request is in flight, and a rejection restores exactly that
// snapshot. On success the server's copy wins.
func (s *SessionStore) UpdateProfile(ctx context.Context, updates ProfileUpdate) (*User, error) {
	s.mu.Lock()
	var snapshot *User
	if s.user != nil {
		prev := *s.user
		snapshot = &prev

		tentative := prev
		applyProfileUpdate(&tentative, updates)
		s.user = &tentative
		s.persist(&tentative)
	}
	s.mu.Unlock()

	updated, err := s.client.UpdateProfile(ctx, updates)
	if err != nil {
		if snapshot != nil {
			s.mu.Lock()
			s.user = snapshot
			s.persist(snapshot)
			s.mu.Unlock()
		}
		return nil, err
	}

	s.setUser(updated)

	u := *updated
	return &u, nil
}

func (s *SessionStore) ChangePassword(ctx context.Context, payload PasswordChangeRequest) error {
	if errs := ValidatePasswordChange(payload); errs != nil {
		return errs
	}

	return s.client.ChangePassword(ctx, payload)
}

// Invalidate forces the next CurrentUser call back to the network.
func (s *SessionStore) Invalidate() {
	s.mu.Lock()
	s.fetchedAt = time.Time{}
	s.mu.Unlock()
}

func (s *SessionStore) setUser(user *User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user == nil {
		s.user = nil
		s.fetchedAt = time.Time{}
		s.persist(nil)
		return
	}

	u := *user
	s.user = &u
	s.fetchedAt = time.Now()
	s.persist(&u)
}

// persist mirrors the in-memory record into the advisory store. Failures
// are logged and swallowed; durable storage is never load-bearing.
func (s *SessionStore) persist(user *User) {
	var err error
	if user == nil {
		err = s.profiles.Clear()
	} else {
		err = s.profiles.Save(*user)
	}
	if err != nil {
		s.logger.Warn("could not persist profile", "error", err)
	}
}

func applyProfileUpdate(user *User, updates ProfileUpdate) {
	if updates.FirstName != nil {
		user.FirstName = *updates.FirstName
	}
	if updates.LastName != nil {
		user.LastName = *updates.LastName
	}
	if updates.PhoneNumber != nil {
		user.PhoneNumber = *updates.PhoneNumber
	}
	if updates.Address != nil {
		user.Address = *updates.Address
	}
	if updates.City != nil {
		user.City = *updates.City
	}
	if updates.Postcode != nil {
		user.Postcode = *updates.Postcode
	}
	if updates.Country != nil {
		user.Country = *updates.Country
	}
}

func loginKey(email string) string {
	return "login_" + email
}
