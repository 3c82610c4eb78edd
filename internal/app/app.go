// Package app wires the configuration, storage, lock table, token
// verifiers and HTTP handlers into one servable application.
package app

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/waffleoffice/wopihost/internal/auth"
	"github.com/waffleoffice/wopihost/internal/config"
	"github.com/waffleoffice/wopihost/internal/discovery"
	"github.com/waffleoffice/wopihost/internal/lock"
	"github.com/waffleoffice/wopihost/internal/store"
	"github.com/waffleoffice/wopihost/internal/token"
	"github.com/waffleoffice/wopihost/internal/web"
	"github.com/waffleoffice/wopihost/internal/wopi"
)

// App is the assembled application.
type App struct {
	Handler http.Handler
}

// New builds the application from resolved configuration. The lock table is
// injected so the caller decides between the in-process table and a shared
// backend.
func New(ctx context.Context, cfg *config.Config, locks lock.Table, log *zap.Logger) (*App, error) {
	secret := []byte(cfg.TokenSecret)

	var signer *token.FileSigner
	if cfg.AddressingMode == store.ModeToken {
		signer = token.NewFileSigner(secret)
	}
	st, err := store.New(cfg.FilesDir, cfg.AddressingMode, signer)
	if err != nil {
		return nil, err
	}
	settings, err := store.NewSettings(cfg.SettingsDir, cfg.PublicURL)
	if err != nil {
		return nil, err
	}

	// Provider-issued tokens are tried first, then our own. A missing
	// identity provider at startup only disables the first verifier.
	verifiers := []token.Verifier{}
	provider, err := token.NewProviderVerifier(ctx, cfg.DexIssuer+"/keys", cfg.SuperAdmin)
	if err != nil {
		log.Warn("identity provider keys unavailable, continuing with local tokens only", zap.Error(err))
	} else {
		verifiers = append(verifiers, provider)
	}
	verifiers = append(verifiers, token.NewLocalVerifier(secret, cfg.SuperAdmin))
	chain := token.NewChain(verifiers...)

	minter := token.NewMinter(secret)
	gate := auth.NewGate(chain, log)
	oidc := auth.NewOIDC(cfg.DexIssuer, cfg.ClientID, cfg.ClientSecret,
		cfg.PublicURL+"/auth/callback", minter, chain, !cfg.DevMode, log)

	disc := discovery.New(cfg.DocumentServerURL)
	engine := wopi.NewHandler(st, settings, locks, disc, cfg.PublicURL, cfg.MaxDocumentBytes, log)
	ui := web.NewHandler(st, settings, disc, cfg.PublicURL, log)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /auth/login", oidc.Login)
	mux.HandleFunc("GET /auth/callback", oidc.Callback)
	mux.HandleFunc("GET /auth/logout", oidc.Logout)
	mux.HandleFunc("GET /favicon.ico", ui.Favicon)

	mux.Handle("GET /wopi/files/{id}", gate.RequireToken(http.HandlerFunc(engine.CheckFileInfo)))
	mux.Handle("GET /wopi/files/{id}/contents", gate.RequireToken(http.HandlerFunc(engine.GetFile)))
	mux.Handle("POST /wopi/files/{id}/contents", gate.RequireToken(http.HandlerFunc(engine.PutFile)))
	mux.Handle("POST /wopi/files/{id}", gate.RequireToken(http.HandlerFunc(engine.Override)))
	mux.Handle("GET /wopi/settings", gate.RequireToken(http.HandlerFunc(engine.Settings)))
	mux.Handle("POST /wopi/settings/upload", gate.RequireToken(http.HandlerFunc(engine.SettingsUpload)))
	mux.Handle("GET /wopi/collaboraUrl", gate.RequireToken(http.HandlerFunc(engine.CollaboraURL)))

	mux.Handle("GET /{$}", gate.RequireLogin(http.HandlerFunc(ui.Index)))
	mux.Handle("GET /edit/{id}", gate.RequireLogin(http.HandlerFunc(ui.EditPage)))
	mux.Handle("DELETE /edit/{id}", gate.RequireLogin(http.HandlerFunc(ui.DeleteFile)))
	mux.Handle("POST /create/{filetype}", gate.RequireLogin(http.HandlerFunc(ui.CreateFile)))
	mux.Handle("GET /settings", gate.RequireLogin(http.HandlerFunc(ui.SettingsPage)))
	mux.HandleFunc("GET /settings/{path...}", ui.ServeSettingsFile)

	return &App{Handler: mux}, nil
}
