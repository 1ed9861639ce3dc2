package commands

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/oauth2"

	"github.com/teranos/savesync/am"
	"github.com/teranos/savesync/errors"
	"github.com/teranos/savesync/events"
	"github.com/teranos/savesync/internal/util"
	"github.com/teranos/savesync/remote"
	driveremote "github.com/teranos/savesync/remote/drive"
	"github.com/teranos/savesync/savestore"
	"github.com/teranos/savesync/session"
	"github.com/teranos/savesync/session/tokenfile"
	savesync "github.com/teranos/savesync/sync"
	"github.com/teranos/savesync/version"
)

func memoryConfig(t *testing.T) *am.Config {
	return &am.Config{
		Database: am.DatabaseConfig{Path: filepath.Join(t.TempDir(), "savesync.db")},
		Local:    am.LocalConfig{Key: "savestate"},
		Remote:   am.RemoteConfig{Backend: am.BackendMemory, RequestTimeoutSeconds: 2},
		Session:  am.SessionConfig{Provider: am.ProviderStatic, Active: true},
		Conflict: am.ConflictConfig{Enabled: true, Field: "seed"},
		Server:   am.ServerConfig{SaveRatePerSecond: 100, SaveBurst: 10},
	}
}

func TestParseValue(t *testing.T) {
	assert.Equal(t, true, parseValue("true"))
	assert.Equal(t, int64(8788), parseValue("8788"))
	assert.Equal(t, 2.5, parseValue("2.5"))
	assert.Equal(t, "s3", parseValue("s3"))
}

func TestPrintSettings(t *testing.T) {
	settings := map[string]interface{}{
		"remote": map[string]interface{}{"backend": "s3"},
	}

	for _, format := range []string{"toml", "json", "yaml"} {
		t.Run(format, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, printSettings(&buf, format, settings))
			assert.Contains(t, buf.String(), "backend")
			assert.Contains(t, buf.String(), "s3")
		})
	}

	var buf bytes.Buffer
	assert.Error(t, printSettings(&buf, "ini", settings))
}

func TestPrintSources(t *testing.T) {
	var buf bytes.Buffer
	err := printSources(&buf, []am.SettingInfo{
		{Key: "local.key", Value: "slot", Source: am.SourceProject, SourcePath: "/work/savesync.toml"},
		{Key: "remote.s3.endpoint", Value: strings.Repeat("x", 80), Source: am.SourceDefault},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "local.key")
	assert.Contains(t, out, "/work/savesync.toml")
	assert.Contains(t, out, "...")
}

func TestJournalTable(t *testing.T) {
	data := journalTable([]savestore.Entry{
		{Session: 2, Operation: "write", Handle: "h1", Size: 12, CreatedAt: time.Now()},
		{Session: 1, Operation: "locate", Error: "service unavailable"},
	})

	require.Len(t, data, 3)
	assert.Equal(t, "Operation", data[0][2])
	assert.Equal(t, "ok", data[1][5])
	assert.Equal(t, "service unavailable", data[2][5])
}

func TestOAuthConfig(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Remote.Drive.ClientID = "client"

	conf := oauthConfig(cfg, "http://127.0.0.1:1234/callback")
	assert.Equal(t, "client", conf.ClientID)
	assert.Equal(t, []string{driveremote.Scope}, conf.Scopes)
	assert.Contains(t, conf.AuthCodeURL("state"), "accounts.google.com")
}

func TestCallbackHandler(t *testing.T) {
	codes := make(chan string, 1)
	failures := make(chan error, 1)
	h := callbackHandler("expected", codes, failures)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?state=wrong&code=c", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, codes)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?state=expected&error=access_denied", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	err := <-failures
	assert.True(t, errors.IsUnauthorizedError(err))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?state=expected&code=abc", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc", <-codes)
}

func TestNewProvider(t *testing.T) {
	cfg := memoryConfig(t)
	p, tokens := newProvider(cfg, nil)
	assert.Nil(t, tokens)
	assert.IsType(t, &session.Static{}, p)

	cfg.Session.Provider = am.ProviderTokenFile
	cfg.Session.TokenFile = filepath.Join(t.TempDir(), "token.json")
	p, tokens = newProvider(cfg, nil)
	require.NotNil(t, tokens)
	assert.Equal(t, cfg.Session.TokenFile, tokens.Path())
	assert.Same(t, tokens, p)
}

func TestNewTransport(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig(t)

	tr, err := newTransport(ctx, cfg, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &remote.Memory{}, tr)

	cfg.Remote.Backend = am.BackendDrive
	_, err = newTransport(ctx, cfg, nil, nil)
	assert.Error(t, err)

	cfg.Remote.Backend = "ftp"
	_, err = newTransport(ctx, cfg, nil, nil)
	assert.Error(t, err)
}

func TestNewTransport_DriveFollowsTokenFile(t *testing.T) {
	var mu gosync.Mutex
	var auths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		auths = append(auths, r.Header.Get("Authorization"))
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"files":[]}`))
	}))
	defer srv.Close()

	ctx := context.Background()
	cfg := memoryConfig(t)
	cfg.Remote.Backend = am.BackendDrive
	cfg.Remote.Drive.ClientID = "client"
	cfg.Remote.Drive.Endpoint = srv.URL + "/"
	cfg.Session.Provider = am.ProviderTokenFile
	cfg.Session.TokenFile = filepath.Join(t.TempDir(), "token.json")

	_, tokens := newProvider(cfg, zaptest.NewLogger(t).Sugar())

	// no token yet: building the transport still succeeds
	tr, err := newTransport(ctx, cfg, tokens, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)

	_, err = tr.List(ctx, savesync.SaveFilename, savesync.AppDataNamespace)
	require.Error(t, err)
	assert.True(t, errors.IsUnauthorizedError(err))

	for _, account := range []string{"account-A", "account-B"} {
		require.NoError(t, tokenfile.Remove(cfg.Session.TokenFile))
		require.NoError(t, tokenfile.Save(cfg.Session.TokenFile, &oauth2.Token{
			AccessToken:  account,
			RefreshToken: "r",
			TokenType:    "Bearer",
			Expiry:       time.Now().Add(time.Hour),
		}))
		_, err = tr.List(ctx, savesync.SaveFilename, savesync.AppDataNamespace)
		require.NoError(t, err)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"Bearer account-A", "Bearer account-B"}, auths)
}

func TestOpenRuntime_DriveWithoutToken(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Remote.Backend = am.BackendDrive
	cfg.Remote.Drive.ClientID = "client"
	cfg.Remote.Drive.Endpoint = "http://127.0.0.1:1/"
	cfg.Session.Provider = am.ProviderTokenFile
	cfg.Session.TokenFile = filepath.Join(t.TempDir(), "token.json")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := openRuntime(ctx, cfg)
	require.NoError(t, err, "run must start before login")
	loopDone, err := rt.start(ctx)
	require.NoError(t, err)
	defer rt.shutdown(cancel, loopDone)

	assert.False(t, rt.gate.Active())
	st := rt.ctrl.State()
	assert.False(t, st.Active)
	assert.Equal(t, savesync.PhaseIdle, st.Phase)
}

func TestFetchBridgeStatus(t *testing.T) {
	agents := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agents <- r.UserAgent()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"phase":"Ready","handle":"abc123","pending":2,"clients":1,"version":"v9.9.9"}`))
	}))
	defer srv.Close()

	cfg := memoryConfig(t)
	cfg.Server.Port = util.Ptr(srv.Listener.Addr().(*net.TCPAddr).Port)

	st, err := fetchBridgeStatus(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "Ready", st.Phase)
	assert.Equal(t, "abc123", st.Handle)
	assert.Equal(t, "v9.9.9", st.Version)
	assert.Equal(t, version.Get().UserAgent(), <-agents)
}

func TestRuntime_PushAndJournal(t *testing.T) {
	cfg := memoryConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := openRuntime(ctx, cfg)
	require.NoError(t, err)

	require.NoError(t, rt.store.Set(ctx, "savestate", `{"seed":4}`))
	blob, found, err := rt.localSave(ctx)
	require.NoError(t, err)
	require.True(t, found)

	loopDone, err := rt.start(ctx)
	require.NoError(t, err)

	st, err := rt.waitReady(ctx, rt.requestTimeout())
	require.NoError(t, err)
	assert.NotEmpty(t, st.Handle)
	assert.False(t, rt.located.Load(), "memory backend starts empty, so the file is created")

	rt.bus.Publish(events.Event{Topic: events.TopicSaveRequested, Blob: blob})
	select {
	case err := <-rt.writes:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("write was not reported")
	}

	require.Eventually(t, func() bool {
		entries, err := rt.journal.Recent(ctx, 10)
		if err != nil || len(entries) < 3 {
			return false
		}
		return entries[0].Operation == "write" && entries[0].Size == len(blob)
	}, 2*time.Second, 10*time.Millisecond)

	entries, err := rt.journal.Recent(ctx, 10)
	require.NoError(t, err)
	var ops []string
	for _, e := range entries {
		ops = append(ops, e.Operation)
	}
	assert.Equal(t, []string{"write", "create", "locate"}, ops)

	rt.shutdown(cancel, loopDone)
	assert.Equal(t, savesync.PhaseUnbound, rt.ctrl.State().Phase)
}

func TestRuntime_WaitReadySignedOut(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Session.Active = false
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := openRuntime(ctx, cfg)
	require.NoError(t, err)
	loopDone, err := rt.start(ctx)
	require.NoError(t, err)
	defer rt.shutdown(cancel, loopDone)

	_, err = rt.waitReady(ctx, time.Second)
	require.Error(t, err)
	assert.True(t, errors.IsUnauthorizedError(err))
}
