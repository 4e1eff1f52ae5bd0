package auth

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"strings"
	"sync"
	"time"
)

// BankIDClient talks to the BankID broker endpoints. It must share its
// http.Client (and therefore cookie jar) with the session Client: the
// server keys the pending ceremony on the browser session cookie.
type BankIDClient struct {
	h       *http.Client
	baseURL string
}

type BankIDClientArgs struct {
	H       *http.Client
	BaseURL string
}

func NewBankIDClient(args BankIDClientArgs) (*BankIDClient, error) {
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

	if !strings.HasSuffix(args.BaseURL, "/") {
		args.BaseURL += "/"
	}

	return &BankIDClient{
		h:       args.H,
		baseURL: args.BaseURL,
	}, nil
}

func (c *BankIDClient) Initiate(ctx context.Context, payload BankIDInitiateRequest) (*BankIDInitiateResponse, error) {
	var resp BankIDInitiateResponse
	if err := c.post(ctx, "initiate/", payload, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

func (c *BankIDClient) Collect(ctx context.Context) (*BankIDCollectResponse, error) {
	var resp BankIDCollectResponse
	if err := c.post(ctx, "collect/", nil, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

func (c *BankIDClient) Cancel(ctx context.Context) error {
	return c.post(ctx, "cancel/", nil, nil)
}

func (c *BankIDClient) post(ctx context.Context, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("could not marshal request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

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

// FlowStatus is the BankID ceremony state: idle -> initializing ->
// pending -> complete | failed. failed may be retried with a fresh Start.
type FlowStatus string

const (
	StatusIdle         FlowStatus = "idle"
	StatusInitializing FlowStatus = "initializing"
	StatusPending      FlowStatus = "pending"
	StatusComplete     FlowStatus = "complete"
	StatusFailed       FlowStatus = "failed"
)

// Fallback texts shown when the server supplies none. The server owns the
// progress messages while pending; it knows ceremony-specific detail.
const (
	msgConnecting = "Ansluter till BankID..."
	msgOpenApp    = "Öppna BankID-appen på din enhet"
	msgCompleted  = "Autentisering lyckades!"
	msgStartError = "Kunde inte starta BankID"
	msgFailed     = "BankID-autentisering misslyckades"
	msgPollError  = "Ett fel uppstod vid autentisering"
	msgExpired    = "Tiden har gått ut. Försök igen."
)

type FlowConfig struct {
	PollInterval  time.Duration // default 2s
	Window        time.Duration // default 5m
	CompleteDelay time.Duration // default 1.5s

	// OnComplete fires once, CompleteDelay after the ceremony completes,
	// so the UI can show the success state before navigating away.
	OnComplete func()
}

func (c *FlowConfig) applyDefaults() {
	if c.PollInterval == 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.Window == 0 {
		c.Window = 5 * time.Minute
	}
	if c.CompleteDelay == 0 {
		c.CompleteDelay = 1500 * time.Millisecond
	}
}

// Flow drives one BankID ceremony to completion, failure, or deadline
// expiry, and hands the issued session to the SessionStore on success.
// All timers are torn down on every terminal transition; a collect
// response that lands after cancel or expiry is discarded, never applied.
type Flow struct {
	client *BankIDClient
	store  *SessionStore
	cfg    FlowConfig
	logger *slog.Logger

	mu        sync.Mutex
	status    FlowStatus
	message   string
	session   *BankIDInitiateResponse
	startedAt time.Time
	deadline  time.Time
	stop      context.CancelFunc
	gen       int
}

func NewFlow(client *BankIDClient, store *SessionStore, cfg FlowConfig) (*Flow, error) {
	if client == nil {
		return nil, fmt.Errorf("no bankid client provided")
	}
	if store == nil {
		return nil, fmt.Errorf("no session store provided")
	}

	cfg.applyDefaults()

	return &Flow{
		client: client,
		store:  store,
		cfg:    cfg,
		logger: slog.Default(),
		status: StatusIdle,
	}, nil
}

func (f *Flow) Status() FlowStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *Flow) Message() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.message
}

// TimeRemaining is the countdown until the ceremony deadline; zero when
// no ceremony is pending.
func (f *Flow) TimeRemaining() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.status != StatusPending {
		return 0
	}

	if remaining := time.Until(f.deadline); remaining > 0 {
		return remaining
	}

	return 0
}

// AutoStartURL is the deep link that opens the BankID app on the same
// device, or empty when no ceremony is active.
func (f *Flow) AutoStartURL() string {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.session == nil || f.session.AutoStartToken == "" {
		return ""
	}

	return "bankid:///?autostarttoken=" + f.session.AutoStartToken + "&redirect=null"
}

// QRAuthCode computes the animated QR payload for the other-device flow:
// "bankid.<qrStartToken>.<seconds>.<hmac>" where the HMAC-SHA256 of the
// elapsed seconds is keyed with the qrStartSecret.
func (f *Flow) QRAuthCode(now time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.session == nil || f.session.QRStartToken == "" || f.session.QRStartSecret == "" {
		return "", fmt.Errorf("no qr material for this ceremony")
	}

	seconds := int(now.Sub(f.startedAt).Seconds())
	if seconds < 0 {
		seconds = 0
	}

	mac := hmac.New(sha256.New, []byte(f.session.QRStartSecret))
	mac.Write([]byte(strconv.Itoa(seconds)))

	return fmt.Sprintf("bankid.%s.%d.%s", f.session.QRStartToken, seconds, hex.EncodeToString(mac.Sum(nil))), nil
}

// Start initiates a fresh ceremony. Allowed from idle and failed; a
// ceremony that is already running or completed must be cancelled or
// reset first.
func (f *Flow) Start(ctx context.Context, payload BankIDInitiateRequest) error {
	f.mu.Lock()
	if f.status == StatusInitializing || f.status == StatusPending || f.status == StatusComplete {
		f.mu.Unlock()
		return fmt.Errorf("bankid ceremony already in progress")
	}
	f.gen++
	gen := f.gen
	f.status = StatusInitializing
	f.message = msgConnecting
	f.session = nil
	f.mu.Unlock()

	sess, err := f.client.Initiate(ctx, payload)
	if err != nil {
		f.fail(gen, msgStartError)
		return err
	}

	f.mu.Lock()
	if f.gen != gen {
		// cancelled while the initiate call was in flight
		f.mu.Unlock()
		return nil
	}

	f.session = sess
	f.status = StatusPending
	f.message = msgOpenApp
	f.startedAt = time.Now()
	f.deadline = f.startedAt.Add(f.cfg.Window)

	pollCtx, cancel := context.WithDeadline(context.Background(), f.deadline)
	f.stop = cancel
	f.mu.Unlock()

	go f.poll(pollCtx, gen)

	return nil
}

// Cancel tears the timers down before any state change, then resets to
// idle. The server is notified best-effort, and only when a ceremony was
// actually running; cancelling from idle or failed touches the network
// not at all.
func (f *Flow) Cancel(ctx context.Context) {
	f.mu.Lock()
	wasActive := f.status == StatusInitializing || f.status == StatusPending

	if f.stop != nil {
		f.stop()
		f.stop = nil
	}

	f.gen++
	f.status = StatusIdle
	f.message = ""
	f.session = nil
	f.deadline = time.Time{}
	f.mu.Unlock()

	if !wasActive {
		return
	}

	if err := f.client.Cancel(ctx); err != nil {
		f.logger.Warn("bankid cancel notification failed", "error", err)
	}
}

func (f *Flow) poll(ctx context.Context, gen int) {
	ticker := time.NewTicker(f.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				f.fail(gen, msgExpired)
			}
			return
		case <-ticker.C:
			resp, err := f.client.Collect(ctx)
			if err != nil {
				if ctx.Err() != nil {
					if errors.Is(ctx.Err(), context.DeadlineExceeded) {
						f.fail(gen, msgExpired)
					}
					return
				}
				f.fail(gen, msgPollError)
				return
			}

			if done := f.apply(gen, resp); done {
				return
			}

			// one outstanding collect at a time: a tick that fired while
			// the last collect was in flight is dropped, not queued
			select {
			case <-ticker.C:
			default:
			}
		}
	}
}

// apply folds one collect response into the state machine. Responses from
// a superseded generation, or arriving after a terminal transition, are
// discarded.
func (f *Flow) apply(gen int, resp *BankIDCollectResponse) bool {
	f.mu.Lock()

	if f.gen != gen || f.status != StatusPending {
		f.mu.Unlock()
		return true
	}

	switch resp.Status {
	case CollectComplete:
		if f.stop != nil {
			f.stop()
			f.stop = nil
		}
		f.status = StatusComplete
		f.message = msgCompleted
		f.mu.Unlock()

		if resp.User != nil && resp.Tokens != nil {
			f.store.AdoptSession(*resp.User, *resp.Tokens)
		}

		if f.cfg.OnComplete != nil {
			time.AfterFunc(f.cfg.CompleteDelay, f.cfg.OnComplete)
		}
		return true

	case CollectFailed:
		if f.stop != nil {
			f.stop()
			f.stop = nil
		}
		f.status = StatusFailed
		f.message = resp.Message
		if f.message == "" {
			f.message = msgFailed
		}
		f.mu.Unlock()
		return true

	default:
		if resp.Message != "" {
			f.message = resp.Message
		}
		f.mu.Unlock()
		return false
	}
}

func (f *Flow) fail(gen int, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.gen != gen || (f.status != StatusPending && f.status != StatusInitializing) {
		return
	}

	if f.stop != nil {
		f.stop()
		f.stop = nil
	}

	f.status = StatusFailed
	f.message = message
}
