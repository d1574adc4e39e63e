// Command gdrive-auth runs the OAuth consent flow once and prints the
// refresh token the gdrive storage provider needs in GDRIVE_REFRESH_TOKEN.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"scenecast/internal/config"
	"scenecast/internal/pkg/logger"
	"scenecast/internal/storage"
)

const consentTimeout = 3 * time.Minute

func main() {
	log := logger.New(logger.Config{Level: "info", Format: "text", ServiceName: "gdrive-auth"})

	cfg, err := config.Load()
	if err != nil {
		log.LogFatal("invalid configuration", err)
	}
	g := cfg.Storage.GDrive
	if g.ClientID == "" || g.ClientSecret == "" {
		log.LogFatal("GDRIVE_CLIENT_ID and GDRIVE_CLIENT_SECRET are required", nil)
	}

	tok, err := authorize(context.Background(), g.ClientID, g.ClientSecret, log)
	if err != nil {
		log.LogFatal("authorization failed", err)
	}

	// The token is absent when the app was already authorized without
	// prompt=consent.
	if strings.TrimSpace(tok.RefreshToken) == "" {
		fmt.Println("\nNo refresh token was returned.")
		fmt.Println("Revoke the app's access at https://myaccount.google.com/permissions and run this command again.")
		return
	}
	fmt.Println("\nGDRIVE_REFRESH_TOKEN=" + tok.RefreshToken)
}

func authorize(ctx context.Context, clientID, clientSecret string, log *logger.Logger) (*oauth2.Token, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	defer ln.Close()

	redirectURL := fmt.Sprintf("http://127.0.0.1:%d/callback", ln.Addr().(*net.TCPAddr).Port)
	conf := storage.OAuthConfig(clientID, clientSecret, redirectURL)
	state := uuid.NewString()

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /callback", func(w http.ResponseWriter, r *http.Request) {
		code, err := callbackCode(r, state)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			select {
			case errCh <- err:
			default:
			}
			return
		}
		fmt.Fprintln(w, "Authorized. You can close this window and return to the terminal.")
		select {
		case codeCh <- code:
		default:
		}
	})

	srv := &http.Server{Handler: mux, ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	defer srv.Close()

	authURL := conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
	fmt.Println("\nOpen this URL in your browser:\n\n" + authURL)
	log.Info("waiting for authorization", "redirect_url", redirectURL)

	var code string
	select {
	case code = <-codeCh:
	case err := <-errCh:
		return nil, err
	case <-time.After(consentTimeout):
		return nil, fmt.Errorf("no authorization within %s", consentTimeout)
	}

	return conf.Exchange(ctx, code)
}

// callbackCode extracts the authorization code from the OAuth redirect.
func callbackCode(r *http.Request, state string) (string, error) {
	q := r.URL.Query()
	if q.Get("state") != state {
		return "", errors.New("invalid state")
	}
	if e := q.Get("error"); e != "" {
		return "", fmt.Errorf("auth error: %s", e)
	}
	code := q.Get("code")
	if code == "" {
		return "", errors.New("missing code")
	}
	return code, nil
}
