// Command authdemo runs a small local web app demonstrating the hosted
// sign-in flow against a real OIDC provider. Configure it with:
//
//	OIDC_ISSUER_URL    discovery issuer (required)
//	OIDC_CLIENT_ID     registered client id (required)
//	OIDC_CLIENT_SECRET client secret (optional for public clients)
//	OIDC_TOKEN_URL     token endpoint for refresh and revocation (required)
//	OIDC_REVOKE_URL    RFC 7009 revocation endpoint (optional)
//	OIDC_USERINFO_URL  userinfo endpoint (optional)
//	LISTEN_ADDR        local listen address (default :8080)
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog"

	"github.com/veridianlabs/go-auth-client/auth"
	"github.com/veridianlabs/go-auth-client/events"
	"github.com/veridianlabs/go-auth-client/events/localbus"
	"github.com/veridianlabs/go-auth-client/hostedui"
	"github.com/veridianlabs/go-auth-client/provider/oidcclient"
	"github.com/veridianlabs/go-auth-client/storage/memstore"
)

func main() {
	for {
		if err := run(); err != nil {
			log.Fatalf("Error running demo: %s\n", err)
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Printf("Demo stopped\n")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	displayAppname("auth demo")

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	addr := envOr("LISTEN_ADDR", ":8080")
	client, err := buildClient(logger, "http://localhost"+addr+"/callback")
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", homeHandler(client))
	mux.HandleFunc("/callback", callbackHandler(client))
	mux.HandleFunc("/signout", signOutHandler(client))

	server := &http.Server{Addr: addr, Handler: mux}
	go listenAndServe(server)
	waitForStopSignal()
	returnError = shutdown(server)
	return returnError
}

func buildClient(logger zerolog.Logger, redirectURL string) (*auth.Client, error) {
	issuer := os.Getenv("OIDC_ISSUER_URL")
	clientID := os.Getenv("OIDC_CLIENT_ID")
	tokenURL := os.Getenv("OIDC_TOKEN_URL")
	if issuer == "" || clientID == "" || tokenURL == "" {
		return nil, errors.New("OIDC_ISSUER_URL, OIDC_CLIENT_ID and OIDC_TOKEN_URL are required")
	}
	clientSecret := os.Getenv("OIDC_CLIENT_SECRET")

	prov, err := oidcclient.New(oidcclient.Config{
		TokenURL:     tokenURL,
		RevokeURL:    os.Getenv("OIDC_REVOKE_URL"),
		UserInfoURL:  os.Getenv("OIDC_USERINFO_URL"),
		ClientID:     clientID,
		ClientSecret: clientSecret,
	}, oidcclient.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("oidcclient.New: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	exchanger, err := hostedui.NewExchanger(ctx, hostedui.ExchangerConfig{
		IssuerURL:      issuer,
		ClientID:       clientID,
		ClientSecret:   clientSecret,
		RedirectSignIn: redirectURL,
	})
	if err != nil {
		return nil, fmt.Errorf("hostedui.NewExchanger: %w", err)
	}

	store := memstore.New()
	bus := localbus.New()
	bus.Subscribe(events.ChannelAuth, func(ev events.Event) {
		logger.Info().Str("event", ev.Name).Str("message", ev.Message).Msg("auth event")
	})

	handler, err := hostedui.NewHandler(hostedui.Config{
		Exchanger:      exchanger,
		Bus:            bus,
		Storage:        store,
		RedirectSignIn: "/",
	}, hostedui.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("hostedui.NewHandler: %w", err)
	}

	client, err := auth.New(auth.Config{
		Provider: prov,
		Storage:  store,
		Bus:      bus,
		HostedUI: handler,
	}, auth.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("auth.New: %w", err)
	}
	return client, nil
}

func homeHandler(client *auth.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := client.CurrentUser(r.Context())
		if err != nil {
			signInURL, err := client.StartHostedSignIn("", r.UserAgent())
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			http.Redirect(w, r, signInURL, http.StatusFound)
			return
		}
		fmt.Fprintf(w, "signed in as %s\n\nattributes:\n", user.Username())
		for name, value := range user.Attributes() {
			fmt.Fprintf(w, "  %s = %s\n", name, value)
		}
		fmt.Fprintf(w, "\nvisit /signout to sign out\n")
	}
}

func callbackHandler(client *auth.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callbackURL := "http://" + r.Host + r.URL.String()
		outcome, err := client.CompleteHostedSignIn(r.Context(), callbackURL)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if outcome.Session == nil {
			http.Error(w, "sign-in failed, check the logs", http.StatusUnauthorized)
			return
		}
		http.Redirect(w, r, "/", http.StatusFound)
	}
}

func signOutHandler(client *auth.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := client.SignOut(r.Context(), true); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, "/", http.StatusFound)
	}
}

func listenAndServe(server *http.Server) error {
	log.Printf("Demo listening on %s\n", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
