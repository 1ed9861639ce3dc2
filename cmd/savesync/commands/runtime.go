package commands

import (
	"context"
	"database/sql"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"

	"github.com/teranos/savesync/am"
	"github.com/teranos/savesync/db"
	"github.com/teranos/savesync/errors"
	"github.com/teranos/savesync/events"
	"github.com/teranos/savesync/logger"
	"github.com/teranos/savesync/remote"
	driveremote "github.com/teranos/savesync/remote/drive"
	s3remote "github.com/teranos/savesync/remote/s3"
	"github.com/teranos/savesync/savestore"
	"github.com/teranos/savesync/session"
	"github.com/teranos/savesync/session/tokenfile"
	savesync "github.com/teranos/savesync/sync"
)

// journalQueueSize bounds sync_log writes waiting behind the controller loop
const journalQueueSize = 64

// loadConfig loads and validates configuration
func loadConfig() (*am.Config, error) {
	cfg, err := am.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return cfg, nil
}

// oauthConfig builds the Drive sign-in client from configuration
func oauthConfig(cfg *am.Config, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.Remote.Drive.ClientID,
		ClientSecret: cfg.Remote.Drive.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{driveremote.Scope},
		RedirectURL:  redirectURL,
	}
}

// newProvider returns the identity provider named by session.provider.
// The token-file provider is also returned on its own for commands that
// need its token source.
func newProvider(cfg *am.Config, log *zap.SugaredLogger) (session.Provider, *tokenfile.Provider) {
	if cfg.Session.Provider == am.ProviderStatic {
		return session.NewStatic(cfg.Session.Active), nil
	}
	p := tokenfile.New(cfg.Session.TokenFile, log)
	return p, p
}

// newTransport builds the remote transport named by remote.backend
func newTransport(ctx context.Context, cfg *am.Config, tokens *tokenfile.Provider, log *zap.SugaredLogger) (remote.Transport, error) {
	switch cfg.Remote.Backend {
	case am.BackendDrive:
		if tokens == nil {
			return nil, errors.WithHint(
				errors.New("the drive backend needs a signed-in token"),
				"set session.provider = \"token_file\" and run 'savesync login'",
			)
		}
		// oauth2.Transport asks the source on every request, so the
		// token file in force at request time authorizes it
		client := &http.Client{Transport: &oauth2.Transport{
			Source: tokens.TokenSource(ctx, oauthConfig(cfg, "")),
			Base:   http.DefaultTransport,
		}}
		opts := []option.ClientOption{option.WithHTTPClient(client)}
		if cfg.Remote.Drive.Endpoint != "" {
			opts = append(opts, option.WithEndpoint(cfg.Remote.Drive.Endpoint))
		}
		return driveremote.New(ctx, log, opts...)

	case am.BackendS3:
		client, err := s3remote.NewClient(ctx, s3remote.Options{
			Region:         cfg.Remote.S3.Region,
			Endpoint:       cfg.Remote.S3.Endpoint,
			ForcePathStyle: cfg.Remote.S3.ForcePathStyle,
		})
		if err != nil {
			return nil, err
		}
		return s3remote.New(client, cfg.Remote.S3.Bucket, log), nil

	case am.BackendMemory:
		return remote.NewMemory(), nil

	default:
		return nil, errors.Newf("unknown remote backend %q", cfg.Remote.Backend)
	}
}

type fetchResult struct {
	blob savesync.SaveBlob
	err  error
}

// syncRuntime is everything a sync session needs, wired from configuration
type syncRuntime struct {
	cfg        *am.Config
	log        *zap.SugaredLogger
	db         *sql.DB
	store      *savestore.SQLStore
	journal    *savestore.Journal
	bus        *events.Bus
	tokens     *tokenfile.Provider
	gate       *session.Gate
	ctrl       *savesync.Controller
	reconciler *savesync.Reconciler

	journalQueue chan savestore.Entry
	journalDone  chan struct{}

	// one-shot commands wait on these
	located atomic.Bool
	writes  chan error
	fetches chan fetchResult
}

// openRuntime opens the database and builds transport, bus, controller,
// reconciler and session gate. Nothing runs until start is called.
func openRuntime(ctx context.Context, cfg *am.Config) (*syncRuntime, error) {
	log := logger.ComponentLogger("savesync")

	database, err := db.OpenWithMigrations(cfg.GetDatabasePath(), log.Named("db"))
	if err != nil {
		return nil, err
	}

	provider, tokens := newProvider(cfg, log.Named("session"))

	transport, err := newTransport(ctx, cfg, tokens, log.Named("remote"))
	if err != nil {
		database.Close()
		return nil, errors.Wrap(err, "failed to build remote transport")
	}

	rt := &syncRuntime{
		cfg:          cfg,
		log:          log,
		db:           database,
		store:        savestore.NewSQLStore(database, log.Named("store")),
		journal:      savestore.NewJournal(database),
		bus:          events.NewBus(log.Named("events")),
		tokens:       tokens,
		gate:         session.NewGate(provider, log.Named("gate")),
		journalQueue: make(chan savestore.Entry, journalQueueSize),
		journalDone:  make(chan struct{}),
		writes:       make(chan error, 1),
		fetches:      make(chan fetchResult, 1),
	}

	rt.ctrl = savesync.NewController(transport, rt.bus, log.Named("controller"), savesync.Options{
		RequestTimeout: time.Duration(cfg.Remote.RequestTimeoutSeconds) * time.Second,
		Hooks:          rt.hooks(),
	})

	policy := savesync.ConflictPolicy{Field: cfg.Conflict.Field}
	rt.reconciler = savesync.NewReconciler(policy, rt.store, cfg.GetLocalKey(), rt.bus, log.Named("reconciler"))

	go rt.drainJournal()
	return rt, nil
}

// hooks journal every accepted transport result and feed the one-shot channels
func (rt *syncRuntime) hooks() savesync.Hooks {
	return savesync.Hooks{
		Locate: func(session uint64, h savesync.Handle, found bool, err error) {
			rt.located.Store(found)
			rt.record(session, "locate", h, 0, err)
		},
		Create: func(session uint64, h savesync.Handle, err error) {
			rt.record(session, "create", h, 0, err)
		},
		Fetch: func(session uint64, h savesync.Handle, blob savesync.SaveBlob, err error) {
			rt.record(session, "fetch", h, len(blob), err)
			select {
			case rt.fetches <- fetchResult{blob: blob, err: err}:
			default:
			}
		},
		Write: func(session uint64, h savesync.Handle, blob savesync.SaveBlob, err error) {
			rt.record(session, "write", h, len(blob), err)
			select {
			case rt.writes <- err:
			default:
			}
		},
	}
}

// record queues a journal entry without blocking the controller loop
func (rt *syncRuntime) record(session uint64, op string, h savesync.Handle, size int, err error) {
	e := savestore.Entry{Session: session, Operation: op, Handle: string(h), Size: size}
	if err != nil {
		e.Error = err.Error()
	}
	select {
	case rt.journalQueue <- e:
	default:
		rt.log.Warnw("Journal queue full, dropping entry", logger.FieldOperation, op)
	}
}

func (rt *syncRuntime) drainJournal() {
	defer close(rt.journalDone)
	for e := range rt.journalQueue {
		var opErr error
		if e.Error != "" {
			opErr = errors.New(e.Error)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rt.journal.Record(ctx, e.Session, e.Operation, e.Handle, e.Size, opErr)
		switch {
		case err == nil:
		case db.IsDatabaseClosed(err):
			rt.log.Debugw("Database closed, dropping journal entry", logger.FieldOperation, e.Operation)
		default:
			rt.log.Warnw("Failed to journal sync operation",
				logger.FieldOperation, e.Operation,
				logger.FieldError, err,
			)
		}
		cancel()
	}
}

// start runs the controller loop and connects it to the session gate.
// The returned channel is closed when the loop has exited.
func (rt *syncRuntime) start(ctx context.Context) (<-chan struct{}, error) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		rt.ctrl.Run(ctx)
	}()

	if err := rt.gate.Subscribe(ctx, rt.ctrl.OnSessionChanged); err != nil {
		return done, err
	}
	return done, nil
}

// waitReady blocks until the controller holds a handle
func (rt *syncRuntime) waitReady(ctx context.Context, timeout time.Duration) (savesync.State, error) {
	if !rt.gate.Active() {
		return rt.ctrl.State(), errors.WithHint(
			errors.Mark(errors.New("not signed in"), errors.ErrUnauthorized),
			"run 'savesync login' first",
		)
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	st, err := rt.ctrl.Wait(waitCtx, func(s savesync.State) bool { return s.Phase == savesync.PhaseReady })
	if err != nil {
		return st, errors.Mark(
			errors.Wrapf(err, "remote save file not ready (phase %s)", st.Phase),
			errors.ErrTimeout,
		)
	}
	return st, nil
}

// requestTimeout is the per-call timeout plus slack for the full locate/create chain
func (rt *syncRuntime) requestTimeout() time.Duration {
	return 3 * time.Duration(rt.cfg.Remote.RequestTimeoutSeconds) * time.Second
}

// localSave returns the blob in the local slot
func (rt *syncRuntime) localSave(ctx context.Context) (string, bool, error) {
	blob, found, err := rt.store.Get(ctx, rt.cfg.GetLocalKey())
	if err != nil {
		return "", false, err
	}
	return blob, found && strings.TrimSpace(blob) != "", nil
}

// Close flushes the journal and closes the database. The controller loop
// must have exited first.
func (rt *syncRuntime) Close() {
	rt.reconciler.Stop()
	close(rt.journalQueue)
	<-rt.journalDone
	if err := rt.db.Close(); err != nil {
		rt.log.Warnw("Failed to close database", logger.FieldError, err)
	}
}

// shutdown stops the controller loop started by start and closes the runtime
func (rt *syncRuntime) shutdown(cancel context.CancelFunc, loopDone <-chan struct{}) {
	cancel()
	<-loopDone
	rt.Close()
}
