package commands

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/teranos/savesync/am"
	"github.com/teranos/savesync/errors"
	"github.com/teranos/savesync/session/tokenfile"
)

// loginTimeout bounds how long login waits for the browser redirect
const loginTimeout = 5 * time.Minute

// LoginCmd signs in to Google Drive and stores the token
var LoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to Google Drive",
	Long: `Sign in through the browser and store the OAuth token at session.token_file.
A running 'savesync run' notices the new token and starts syncing.`,
	RunE: runLogin,
}

// LogoutCmd removes the stored token
var LogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out (removes the stored token)",
	Long: `Delete the token at session.token_file. A running 'savesync run' notices and
stops all remote activity; queued writes are dropped.`,
	RunE: runLogout,
}

var loginNoBrowser bool

func init() {
	LoginCmd.Flags().BoolVar(&loginNoBrowser, "no-browser", false, "Print the sign-in URL instead of opening a browser")
}

func tokenFileConfig() (*am.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Session.Provider != am.ProviderTokenFile {
		return nil, errors.WithHint(
			errors.Newf("session.provider is %q; login needs token_file", cfg.Session.Provider),
			"savesync am set session.provider token_file",
		)
	}
	return cfg, nil
}

func runLogin(cmd *cobra.Command, args []string) error {
	cfg, err := tokenFileConfig()
	if err != nil {
		return err
	}
	if cfg.Remote.Backend != am.BackendDrive {
		return errors.Newf("login is only needed for the drive backend (remote.backend = %q)", cfg.Remote.Backend)
	}

	ctx, cancel := context.WithTimeout(context.Background(), loginTimeout)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return errors.Wrap(err, "failed to open loopback listener")
	}
	redirect := fmt.Sprintf("http://127.0.0.1:%d/callback", ln.Addr().(*net.TCPAddr).Port)

	conf := oauthConfig(cfg, redirect)
	verifier := oauth2.GenerateVerifier()
	state := uuid.NewString()
	authURL := conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.S256ChallengeOption(verifier))

	codes := make(chan string, 1)
	failures := make(chan error, 1)
	srv := &http.Server{
		Handler:           callbackHandler(state, codes, failures),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go srv.Serve(ln)
	defer srv.Close()

	pterm.Info.Println("Sign in to Google Drive in your browser:")
	fmt.Println(authURL)
	if !loginNoBrowser {
		openBrowser(authURL)
	}

	var code string
	select {
	case code = <-codes:
	case err := <-failures:
		return err
	case <-ctx.Done():
		return errors.Mark(errors.New("sign-in was not completed"), errors.ErrTimeout)
	}

	tok, err := conf.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return errors.Mark(errors.Wrap(err, "failed to exchange authorization code"), errors.ErrUnauthorized)
	}
	if err := tokenfile.Save(cfg.Session.TokenFile, tok); err != nil {
		return err
	}

	pterm.Success.Printf("Signed in; token stored at %s\n", cfg.Session.TokenFile)
	return nil
}

// callbackHandler accepts one redirect carrying the expected state
func callbackHandler(state string, codes chan<- string, failures chan<- error) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}
		if msg := q.Get("error"); msg != "" {
			http.Error(w, "sign-in failed: "+msg, http.StatusUnauthorized)
			select {
			case failures <- errors.Mark(errors.Newf("sign-in refused: %s", msg), errors.ErrUnauthorized):
			default:
			}
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}
		select {
		case codes <- code:
		default:
		}
		fmt.Fprintln(w, "Signed in to savesync. You can close this tab.")
	})
	return mux
}

func runLogout(cmd *cobra.Command, args []string) error {
	cfg, err := tokenFileConfig()
	if err != nil {
		return err
	}
	if err := tokenfile.Remove(cfg.Session.TokenFile); err != nil {
		return err
	}
	pterm.Success.Println("Signed out")
	return nil
}

// openBrowser opens url with the platform's default handler.
// Errors are ignored; the URL is printed as well.
func openBrowser(url string) {
	var err error
	switch runtime.GOOS {
	case "darwin":
		err = exec.Command("open", url).Start()
	case "linux":
		err = exec.Command("xdg-open", url).Start()
	case "windows":
		err = exec.Command("cmd", "/c", "start", url).Start()
	}
	_ = err
}
