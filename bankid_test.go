package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bankidBackend scripts the broker: initiate hands out a fixed order and
// collect walks through the queued responses, repeating the last one.
type bankidBackend struct {
	mu        sync.Mutex
	script    []BankIDCollectResponse
	initErr   bool
	initiates atomic.Int64
	collects  atomic.Int64
	cancels   atomic.Int64
}

func (b *bankidBackend) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/accounts/bankid/initiate/", func(w http.ResponseWriter, r *http.Request) {
		b.initiates.Add(1)
		if b.initErr {
			writeJSON(w, 500, map[string]string{"detail": "broker unavailable"})
			return
		}
		writeJSON(w, 200, BankIDInitiateResponse{
			OrderRef:       "order-1",
			AutoStartToken: "ast-1",
			QRStartToken:   "qr-token",
			QRStartSecret:  "qr-secret",
		})
	})

	mux.HandleFunc("/api/accounts/bankid/collect/", func(w http.ResponseWriter, r *http.Request) {
		b.collects.Add(1)

		b.mu.Lock()
		resp := BankIDCollectResponse{Status: CollectPending}
		if len(b.script) > 0 {
			resp = b.script[0]
			if len(b.script) > 1 {
				b.script = b.script[1:]
			}
		}
		b.mu.Unlock()

		writeJSON(w, 200, resp)
	})

	mux.HandleFunc("/api/accounts/bankid/cancel/", func(w http.ResponseWriter, r *http.Request) {
		b.cancels.Add(1)
		writeJSON(w, 200, map[string]string{})
	})

	return mux
}

func newTestFlow(t *testing.T, backend *bankidBackend, cfg FlowConfig) (*Flow, *SessionStore) {
	t.Helper()

	client := newTestClient(t, backend.handler())

	store, err := NewSessionStore(SessionStoreArgs{Client: client})
	require.NoError(t, err)

	bankidClient, err := NewBankIDClient(BankIDClientArgs{
		H:       client.h,
		BaseURL: client.baseURL + "bankid/",
	})
	require.NoError(t, err)

	flow, err := NewFlow(bankidClient, store, cfg)
	require.NoError(t, err)

	return flow, store
}

func waitForStatus(t *testing.T, flow *Flow, want FlowStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		return flow.Status() == want
	}, 3*time.Second, 5*time.Millisecond, "flow never reached %s", want)
}

func TestFlowCompletes(t *testing.T) {
	assert := assert.New(t)

	backend := &bankidBackend{
		script: []BankIDCollectResponse{
			{Status: CollectPending, Message: "Open your app"},
			{Status: CollectPending, Message: "Waiting..."},
			{
				Status: CollectComplete,
				User:   &User{ID: "u1", Email: "a@b.com"},
				Tokens: &Tokens{Access: "bankid-access"},
			},
		},
	}

	var completed atomic.Int64
	flow, store := newTestFlow(t, backend, FlowConfig{
		PollInterval:  10 * time.Millisecond,
		CompleteDelay: time.Millisecond,
		OnComplete:    func() { completed.Add(1) },
	})

	assert.Equal(StatusIdle, flow.Status())

	require.NoError(t, flow.Start(ctx, BankIDInitiateRequest{}))

	waitForStatus(t, flow, StatusComplete)

	// the issued session landed in the store
	assert.Equal("bankid-access", store.Client().AccessToken())
	user := store.CachedUser()
	require.NotNil(t, user)
	assert.Equal("a@b.com", user.Email)

	assert.Eventually(func() bool { return completed.Load() == 1 }, time.Second, 5*time.Millisecond)

	// polling stopped on the terminal transition
	count := backend.collects.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(count, backend.collects.Load())
	assert.Equal(int64(3), count)

	// complete is terminal without a reset
	err := flow.Start(ctx, BankIDInitiateRequest{})
	assert.Error(err)
}

func TestFlowPendingMessageComesFromServer(t *testing.T) {
	assert := assert.New(t)

	backend := &bankidBackend{
		script: []BankIDCollectResponse{
			{Status: CollectPending, Message: "Skriv in din säkerhetskod"},
		},
	}

	flow, _ := newTestFlow(t, backend, FlowConfig{PollInterval: 10 * time.Millisecond})

	require.NoError(t, flow.Start(ctx, BankIDInitiateRequest{}))

	assert.Eventually(func() bool {
		return flow.Message() == "Skriv in din säkerhetskod"
	}, time.Second, 5*time.Millisecond)
	assert.Equal(StatusPending, flow.Status())
	assert.Greater(flow.TimeRemaining(), time.Duration(0))

	flow.Cancel(ctx)
}

func TestFlowDeadline(t *testing.T) {
	assert := assert.New(t)

	backend := &bankidBackend{}

	flow, _ := newTestFlow(t, backend, FlowConfig{
		PollInterval: 10 * time.Millisecond,
		Window:       60 * time.Millisecond,
	})

	require.NoError(t, flow.Start(ctx, BankIDInitiateRequest{}))

	waitForStatus(t, flow, StatusFailed)
	assert.Equal("Tiden har gått ut. Försök igen.", flow.Message())

	// no poll call after the deadline fired
	count := backend.collects.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(count, backend.collects.Load())

	// a deadline failure is terminal until the user retries explicitly
	assert.Equal(StatusFailed, flow.Status())
}

func TestFlowFailureUsesServerMessage(t *testing.T) {
	assert := assert.New(t)

	backend := &bankidBackend{
		script: []BankIDCollectResponse{
			{Status: CollectFailed, Message: "Åtgärden avbruten"},
		},
	}

	flow, store := newTestFlow(t, backend, FlowConfig{PollInterval: 10 * time.Millisecond})

	require.NoError(t, flow.Start(ctx, BankIDInitiateRequest{}))

	waitForStatus(t, flow, StatusFailed)
	assert.Equal("Åtgärden avbruten", flow.Message())
	assert.Empty(store.Client().AccessToken())

	// retry re-enters the ceremony from failed
	backend.mu.Lock()
	backend.script = []BankIDCollectResponse{
		{Status: CollectComplete, User: &User{ID: "u1", Email: "a@b.com"}, Tokens: &Tokens{Access: "t"}},
	}
	backend.mu.Unlock()

	require.NoError(t, flow.Start(ctx, BankIDInitiateRequest{}))
	waitForStatus(t, flow, StatusComplete)
}

func TestFlowInitiateFailure(t *testing.T) {
	assert := assert.New(t)

	backend := &bankidBackend{initErr: true}

	flow, _ := newTestFlow(t, backend, FlowConfig{PollInterval: 10 * time.Millisecond})

	err := flow.Start(ctx, BankIDInitiateRequest{})

	assert.Error(err)
	assert.Equal(StatusFailed, flow.Status())
	assert.Equal("Kunde inte starta BankID", flow.Message())
	assert.Equal(int64(0), backend.collects.Load())
}

func TestCancelIdempotence(t *testing.T) {
	assert := assert.New(t)

	backend := &bankidBackend{}

	flow, _ := newTestFlow(t, backend, FlowConfig{PollInterval: 10 * time.Millisecond})

	// cancel from idle issues no network call
	flow.Cancel(ctx)
	assert.Equal(int64(0), backend.cancels.Load())
	assert.Equal(StatusIdle, flow.Status())

	require.NoError(t, flow.Start(ctx, BankIDInitiateRequest{}))
	waitForStatus(t, flow, StatusPending)

	// cancel from pending notifies the server and stops polling at once
	flow.Cancel(ctx)
	assert.Equal(StatusIdle, flow.Status())
	assert.Equal(int64(1), backend.cancels.Load())

	// let a collect that raced with the cancel settle before counting
	time.Sleep(20 * time.Millisecond)
	count := backend.collects.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(count, backend.collects.Load())

	// cancel again from idle: still no extra network call
	flow.Cancel(ctx)
	assert.Equal(int64(1), backend.cancels.Load())
}

func TestCancelFromFailedIsLocal(t *testing.T) {
	assert := assert.New(t)

	backend := &bankidBackend{
		script: []BankIDCollectResponse{{Status: CollectFailed}},
	}

	flow, _ := newTestFlow(t, backend, FlowConfig{PollInterval: 10 * time.Millisecond})

	require.NoError(t, flow.Start(ctx, BankIDInitiateRequest{}))
	waitForStatus(t, flow, StatusFailed)
	assert.Equal("BankID-autentisering misslyckades", flow.Message())

	flow.Cancel(ctx)

	assert.Equal(StatusIdle, flow.Status())
	assert.Empty(flow.Message())
	assert.Equal(int64(0), backend.cancels.Load())
}

func TestAutoStartURL(t *testing.T) {
	assert := assert.New(t)

	backend := &bankidBackend{}
	flow, _ := newTestFlow(t, backend, FlowConfig{PollInterval: 10 * time.Millisecond})

	assert.Empty(flow.AutoStartURL())

	require.NoError(t, flow.Start(ctx, BankIDInitiateRequest{}))
	waitForStatus(t, flow, StatusPending)

	assert.Equal("bankid:///?autostarttoken=ast-1&redirect=null", flow.AutoStartURL())

	flow.Cancel(ctx)
	assert.Empty(flow.AutoStartURL())
}

func TestQRAuthCode(t *testing.T) {
	assert := assert.New(t)

	backend := &bankidBackend{}
	flow, _ := newTestFlow(t, backend, FlowConfig{PollInterval: 10 * time.Millisecond})

	_, err := flow.QRAuthCode(time.Now())
	assert.Error(err)

	require.NoError(t, flow.Start(ctx, BankIDInitiateRequest{}))
	waitForStatus(t, flow, StatusPending)

	code, err := flow.QRAuthCode(time.Now())
	require.NoError(t, err)

	parts := strings.Split(code, ".")
	require.Len(t, parts, 4)
	assert.Equal("bankid", parts[0])
	assert.Equal("qr-token", parts[1])

	mac := hmac.New(sha256.New, []byte("qr-secret"))
	mac.Write([]byte(parts[2]))
	assert.Equal(hex.EncodeToString(mac.Sum(nil)), parts[3])

	flow.Cancel(ctx)
}

func TestFlowTransportErrorFails(t *testing.T) {
	assert := assert.New(t)

	var collects atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/api/accounts/bankid/initiate/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, BankIDInitiateResponse{OrderRef: "order-1", AutoStartToken: "ast-1"})
	})
	mux.HandleFunc("/api/accounts/bankid/collect/", func(w http.ResponseWriter, r *http.Request) {
		collects.Add(1)
		writeJSON(w, 500, map[string]string{"detail": "broker blew up"})
	})

	client := newTestClient(t, mux)
	store, err := NewSessionStore(SessionStoreArgs{Client: client})
	require.NoError(t, err)

	bankidClient, err := NewBankIDClient(BankIDClientArgs{
		H:       client.h,
		BaseURL: client.baseURL + "bankid/",
	})
	require.NoError(t, err)

	flow, err := NewFlow(bankidClient, store, FlowConfig{PollInterval: 10 * time.Millisecond})
	require.NoError(t, err)

	require.NoError(t, flow.Start(ctx, BankIDInitiateRequest{}))

	waitForStatus(t, flow, StatusFailed)
	assert.Equal("Ett fel uppstod vid autentisering", flow.Message())

	// a failed ceremony never auto-restarts
	count := collects.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(count, collects.Load())
	assert.Equal(int64(1), count)
}
