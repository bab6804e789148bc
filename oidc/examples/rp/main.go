// rp is a relying party which authenticates users against a provider with
// encrypted id_tokens and userinfo, keeping flows in a sqlite session store.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/idtrust/rpflow/jwt"
	"github.com/idtrust/rpflow/oidc"
	"github.com/idtrust/rpflow/oidc/callback"
	"github.com/idtrust/rpflow/session"
	_ "modernc.org/sqlite"
)

// List of required configuration environment variables
const (
	clientID       = "OIDC_CLIENT_ID"
	clientSecret   = "OIDC_CLIENT_SECRET"
	issuer         = "OIDC_ISSUER"
	authEndpoint   = "OIDC_AUTHORIZATION_ENDPOINT"
	tokenEndpoint  = "OIDC_TOKEN_ENDPOINT"
	userInfoURL    = "OIDC_USERINFO_ENDPOINT"
	jwksURL        = "OIDC_JWKS_URL"
	signingKeyFile = "RP_SIGNING_KEY_FILE"
	port           = "RP_PORT"
)

// List of optional configuration environment variables
const (
	providerCAFile = "OIDC_PROVIDER_CA_FILE"
	requestURI     = "RP_REQUEST_URI"
	sessionDB      = "RP_SESSION_DB"
	matching       = "RP_MATCHING_RESPONSE_VALIDATION"
	sessionTTL     = 30 * time.Minute
)

func envConfig() (map[string]string, error) {
	const op = "envConfig"
	env := map[string]string{}
	for _, k := range []string{clientID, clientSecret, issuer, authEndpoint, tokenEndpoint, userInfoURL, jwksURL, signingKeyFile, port} {
		v := os.Getenv(k)
		if v == "" {
			return nil, fmt.Errorf("%s: %s is empty", op, k)
		}
		env[k] = v
	}
	for _, k := range []string{providerCAFile, requestURI, sessionDB, matching} {
		env[k] = os.Getenv(k)
	}
	if env[sessionDB] == "" {
		env[sessionDB] = "file:rp-sessions.db"
	}
	return env, nil
}

func main() {
	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "rp",
		Level: hclog.LevelFromString(os.Getenv("RP_LOG_LEVEL")),
	})

	env, err := envConfig()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// handle ctrl-c
	sigintCh := make(chan os.Signal, 1)
	signal.Notify(sigintCh, os.Interrupt)
	defer signal.Stop(sigintCh)

	cfg, err := rpConfig(env)
	if err != nil {
		logger.Error("unable to configure relying party", "error", err)
		os.Exit(1)
	}

	var source oidc.RequestSource
	switch env[requestURI] {
	case "":
		source, err = oidc.NewRequestObject(map[string]interface{}{
			"userinfo": map[string]interface{}{
				"email":          map[string]interface{}{"essential": true},
				"email_verified": map[string]interface{}{"essential": true},
			},
		})
		if err != nil {
			logger.Error("unable to build request object", "error", err)
			os.Exit(1)
		}
	default:
		source = oidc.RequestURI{URI: env[requestURI]}
	}
	initiator, err := oidc.NewInitiator(cfg, source, oidc.WithLogger(logger.Named("initiator")))
	if err != nil {
		logger.Error("unable to create initiator", "error", err)
		os.Exit(1)
	}
	collector, err := oidc.NewCollector(cfg,
		oidc.WithLogger(logger.Named("collector")),
		oidc.WithMatchingResponseValidation(env[matching] != "false"),
	)
	if err != nil {
		logger.Error("unable to create collector", "error", err)
		os.Exit(1)
	}
	defer collector.Done()

	db, err := sql.Open("sqlite", env[sessionDB])
	if err != nil {
		logger.Error("unable to open session db", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	backend, err := session.NewSQL(ctx, db)
	if err != nil {
		logger.Error("unable to create session store", "error", err)
		os.Exit(1)
	}
	go purgeSessions(ctx, logger.Named("sessions"), backend)
	sessions := &session.Cookies{Backend: backend, Secure: true}

	eFn := failedFn(logger)
	login, err := callback.Login(ctx, initiator, sessions, eFn)
	if err != nil {
		logger.Error("unable to create login handler", "error", err)
		os.Exit(1)
	}
	pairing, err := callback.Pairing(ctx, initiator, sessions, eFn)
	if err != nil {
		logger.Error("unable to create pairing handler", "error", err)
		os.Exit(1)
	}
	authCode, err := callback.AuthCode(ctx, collector, sessions, successFn(logger), eFn)
	if err != nil {
		logger.Error("unable to create callback handler", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/login", login)
	mux.HandleFunc("/pair", pairing)
	mux.HandleFunc("/callback", authCode)

	listener, err := net.Listen("tcp", fmt.Sprintf("localhost:%s", env[port]))
	if err != nil {
		logger.Error("unable to listen", "error", err)
		os.Exit(1)
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	srvCh := make(chan error, 1)
	// Start local server
	go func() {
		logger.Info("relying party listening", "addr", listener.Addr().String())
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			srvCh <- err
		}
	}()

	select {
	case err := <-srvCh:
		logger.Error("server closed with error", "error", err)
	case <-sigintCh:
		logger.Info("interrupted")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}
}

func rpConfig(env map[string]string) (*oidc.Config, error) {
	const op = "rpConfig"
	keyPEM, err := os.ReadFile(env[signingKeyFile])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	key, err := jwt.ParsePrivateKeyPEM(string(keyPEM))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	pc, err := oidc.NewProviderConfig(env[issuer], env[authEndpoint], env[tokenEndpoint], env[userInfoURL], oidc.WithProviderJWKSURL(env[jwksURL]))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	opts := []oidc.Option{oidc.WithSigningKey(key)}
	if env[providerCAFile] != "" {
		ca, err := os.ReadFile(env[providerCAFile])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		opts = append(opts, oidc.WithProviderCA(string(ca)))
	}
	return oidc.NewConfig(env[clientID], oidc.ClientSecret(env[clientSecret]), fmt.Sprintf("http://localhost:%s/callback", env[port]), pc, opts...)
}

// purgeSessions removes the sessions of abandoned flows.
func purgeSessions(ctx context.Context, logger hclog.Logger, s *session.SQL) {
	ticker := time.NewTicker(sessionTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Purge(ctx, time.Now().Add(-sessionTTL))
			if err != nil {
				logger.Warn("unable to purge sessions", "error", err)
				continue
			}
			logger.Debug("purged sessions", "values", n)
		}
	}
}
