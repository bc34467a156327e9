package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const googleUserinfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

// Opener shows the authorization URL to the user (a browser launch, or a
// line printed to the terminal).
type Opener func(authURL string) error

// OAuth signs users in with an OAuth 2.0 authorization-code flow against
// Google, receiving the redirect on a loopback listener.
type OAuth struct {
	config      oauth2.Config
	userinfoURL string
	opener      Opener
	session     *SessionFile
	hub         *Hub
	logger      *slog.Logger
}

var _ Provider = (*OAuth)(nil)

// OAuthOption configures an OAuth provider.
type OAuthOption func(*OAuth)

// WithEndpoint overrides the authorization server and userinfo URL.
func WithEndpoint(ep oauth2.Endpoint, userinfoURL string) OAuthOption {
	return func(o *OAuth) {
		o.config.Endpoint = ep
		o.userinfoURL = userinfoURL
	}
}

// WithOAuthLogger sets the logger.
func WithOAuthLogger(logger *slog.Logger) OAuthOption {
	return func(o *OAuth) { o.logger = logger }
}

// NewOAuth creates a Google OAuth provider and restores any persisted session.
func NewOAuth(clientID, clientSecret string, session *SessionFile, opener Opener, opts ...OAuthOption) (*OAuth, error) {
	restored, err := session.Load()
	if err != nil {
		return nil, err
	}
	o := &OAuth{
		config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     endpoints.Google,
			Scopes:       []string{"openid", "email", "profile"},
		},
		userinfoURL: googleUserinfoURL,
		opener:      opener,
		session:     session,
		hub:         NewHub(restored),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

type callbackResult struct {
	code string
	err  error
}

// SignInInteractive opens the consent page and waits for the redirect.
// Cancelling ctx, or the user denying consent, yields ErrPopupClosed.
func (o *OAuth) SignInInteractive(ctx context.Context) (*User, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("sign in: listen: %w", err)
	}

	cfg := o.config
	cfg.RedirectURL = "http://" + ln.Addr().String() + "/callback"
	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()

	results := make(chan callbackResult, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var res callbackResult
		switch {
		case q.Get("state") != state:
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		case q.Get("error") != "":
			res.err = fmt.Errorf("%w: %s", ErrPopupClosed, q.Get("error"))
		case q.Get("code") == "":
			res.err = errors.New("sign in: callback without code")
		default:
			res.code = q.Get("code")
		}
		if res.err != nil {
			fmt.Fprintln(w, "Sign-in failed. You can close this window.")
		} else {
			fmt.Fprintln(w, "Signed in. You can close this window.")
		}
		select {
		case results <- res:
		default:
		}
	})
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go srv.Serve(ln)
	defer srv.Close()

	authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOnline, oauth2.S256ChallengeOption(verifier))
	o.logger.Debug("oauth: waiting for redirect", "redirect", cfg.RedirectURL)
	if err := o.opener(authURL); err != nil {
		return nil, fmt.Errorf("sign in: open browser: %w", err)
	}

	var res callbackResult
	select {
	case res = <-results:
	case <-ctx.Done():
		return nil, ErrPopupClosed
	}
	if res.err != nil {
		return nil, res.err
	}

	tok, err := cfg.Exchange(ctx, res.code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("sign in: exchange code: %w", err)
	}
	u, err := o.fetchUser(ctx, cfg.Client(ctx, tok))
	if err != nil {
		return nil, err
	}

	if err := o.session.Save(u); err != nil {
		return nil, err
	}
	o.hub.Publish(u)
	return cloneUser(u), nil
}

func (o *OAuth) fetchUser(ctx context.Context, client *http.Client) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.userinfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("sign in: userinfo: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sign in: userinfo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sign in: userinfo: status %d", resp.StatusCode)
	}

	var info struct {
		Sub     string `json:"sub"`
		Name    string `json:"name"`
		Email   string `json:"email"`
		Picture string `json:"picture"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("sign in: userinfo: %w", err)
	}
	if info.Sub == "" {
		return nil, errors.New("sign in: userinfo without subject")
	}
	return &User{ID: info.Sub, Name: info.Name, Email: info.Email, PhotoURL: info.Picture}, nil
}

// SignOut forgets the session. Google tokens are not revoked.
func (o *OAuth) SignOut(ctx context.Context) error {
	if err := o.session.Clear(); err != nil {
		return err
	}
	o.hub.Publish(nil)
	return nil
}

// Subscribe registers fn for auth-state changes.
func (o *OAuth) Subscribe(fn func(*User)) Subscription {
	return o.hub.Subscribe(fn)
}
