// Package tokenfile is a session provider backed by an OAuth token file.
//
// A session is active while the file holds a usable token: one with a refresh
// token, or an access token that has not expired. Signing in or out from
// another process is observed through fsnotify.
package tokenfile

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/teranos/savesync/am"
	"github.com/teranos/savesync/errors"
	"github.com/teranos/savesync/logger"
)

// DefaultDebounce coalesces the burst of events an editor or atomic rename produces
const DefaultDebounce = 200 * time.Millisecond

// Provider watches one token file
type Provider struct {
	path     string
	logger   *zap.SugaredLogger
	Debounce time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

// New creates a provider for the token file at path
func New(path string, logger *zap.SugaredLogger) *Provider {
	return &Provider{path: filepath.Clean(path), logger: logger, Debounce: DefaultDebounce}
}

// Path returns the watched token file
func (p *Provider) Path() string {
	return p.path
}

// Start watches the token file's directory and returns whether a usable token is present now
func (p *Provider) Start(ctx context.Context, notify func(active bool)) (bool, error) {
	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return false, errors.Wrapf(err, "failed to create token directory %s", dir)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return false, errors.Wrap(err, "failed to create fsnotify watcher")
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return false, errors.Wrapf(err, "failed to watch %s", dir)
	}

	active := p.Active()
	p.logger.Debugw("Token file provider started",
		"path", p.path,
		"active", active,
	)

	go p.watchLoop(ctx, watcher, notify)
	return active, nil
}

// Active reports whether the token file currently holds a usable token
func (p *Provider) Active() bool {
	tok, err := Load(p.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			p.logger.Warnw("Token file unreadable, treating session as inactive",
				"path", p.path,
				logger.FieldError, err,
			)
		}
		return false
	}
	return Usable(tok)
}

func (p *Provider) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, notify func(bool)) {
	defer watcher.Close()

	for {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			if p.timer != nil {
				p.timer.Stop()
			}
			p.mu.Unlock()
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != p.path {
				continue
			}
			p.logger.Debugw("Token file changed", "op", event.Op.String())
			p.schedule(ctx, notify)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.logger.Warnw("Token file watcher error", logger.FieldError, err)
		}
	}
}

// schedule debounces rapid changes into one notification
func (p *Provider) schedule(ctx context.Context, notify func(bool)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(p.Debounce, func() {
		if ctx.Err() != nil {
			return
		}
		notify(p.Active())
	})
}

// Usable reports whether tok can authorize requests now or after a refresh
func Usable(tok *oauth2.Token) bool {
	if tok == nil {
		return false
	}
	return tok.RefreshToken != "" || tok.Valid()
}

// Load reads a token written by Save
func Load(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read token file %s", path)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, errors.Wrapf(err, "failed to parse token file %s", path)
	}
	return &tok, nil
}

// Save writes tok atomically with owner-only permissions
func Save(path string, tok *oauth2.Token) error {
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal token")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return errors.Wrap(err, "failed to create token directory")
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, am.TokenFilePermissions); err != nil {
		return errors.Wrap(err, "failed to write token")
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "failed to install token")
	}
	return nil
}

// Remove signs out by deleting the token file. A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to remove token file %s", path)
	}
	return nil
}

// TokenSource returns a source that follows the token file. Every call reads
// the file, so a sign-in after startup or a sign-in as another account is used
// by the next request. Refreshed tokens are written back for other processes.
// A missing file is reported per call as an unauthorized error.
func (p *Provider) TokenSource(ctx context.Context, cfg *oauth2.Config) oauth2.TokenSource {
	return &savingSource{
		ctx:    ctx,
		cfg:    cfg,
		path:   p.path,
		logger: p.logger,
	}
}

type savingSource struct {
	ctx    context.Context
	cfg    *oauth2.Config
	path   string
	logger *zap.SugaredLogger

	mu     sync.Mutex
	stored *oauth2.Token
	base   oauth2.TokenSource
}

func (s *savingSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := Load(s.path)
	if err != nil {
		s.stored, s.base = nil, nil
		return nil, errors.Mark(errors.WithHint(err, "sign in with 'savesync login'"), errors.ErrUnauthorized)
	}

	if s.base == nil || !sameToken(s.stored, stored) {
		s.logger.Debugw("Token file changed, rebuilding token source", "path", s.path)
		s.base = s.cfg.TokenSource(s.ctx, stored)
		s.stored = stored
	}

	tok, err := s.base.Token()
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to refresh token"), errors.ErrUnauthorized)
	}

	if tok.AccessToken != s.stored.AccessToken {
		if err := Save(s.path, tok); err != nil {
			s.logger.Warnw("Failed to persist refreshed token", logger.FieldError, err)
		} else {
			s.stored = tok
		}
	}
	return tok, nil
}

func sameToken(a, b *oauth2.Token) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.AccessToken == b.AccessToken && a.RefreshToken == b.RefreshToken
}
