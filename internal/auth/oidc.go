package auth

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/waffleoffice/wopihost/internal/token"
)

const (
	sessionCookie = "access_token"
	stateCookie   = "oauth_state"
)

// OIDC runs the authorization-code login flow against the identity provider
// and turns a successful login into a locally minted access token cookie.
type OIDC struct {
	cfg      *oauth2.Config
	minter   *token.Minter
	verifier token.Verifier
	secure   bool
	log      *zap.Logger
}

// NewOIDC builds the flow for an issuer that exposes /auth and /token
// endpoints (Dex layout).
func NewOIDC(issuer, clientID, clientSecret, redirectURL string, minter *token.Minter, verifier token.Verifier, secure bool, log *zap.Logger) *OIDC {
	return &OIDC{
		cfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  issuer + "/auth",
				TokenURL: issuer + "/token",
			},
		},
		minter:   minter,
		verifier: verifier,
		secure:   secure,
		log:      log,
	}
}

// Login redirects the browser to the identity provider with a fresh state
// nonce pinned in a short-lived cookie.
func (o *OIDC) Login(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		Secure:   o.secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, o.cfg.AuthCodeURL(state), http.StatusFound)
}

// Callback exchanges the authorization code, verifies the returned id_token
// through the same verifier chain the gate uses, and sets the session cookie.
func (o *OIDC) Callback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "Missing code")
		return
	}
	if c, err := r.Cookie(stateCookie); err != nil || c.Value == "" || c.Value != r.URL.Query().Get("state") {
		writeError(w, http.StatusBadRequest, "State mismatch")
		return
	}

	tok, err := o.cfg.Exchange(r.Context(), code)
	if err != nil {
		o.log.Error("code exchange failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "Authentication failed")
		return
	}
	idToken, _ := tok.Extra("id_token").(string)
	if idToken == "" {
		o.log.Error("token response carried no id_token")
		writeError(w, http.StatusBadGateway, "Authentication failed")
		return
	}
	identity, err := o.verifier.Verify(idToken)
	if err != nil {
		o.log.Error("id_token rejected", zap.Error(err))
		writeError(w, http.StatusUnauthorized, "Authentication failed")
		return
	}

	signed, err := o.minter.Mint(identity.UserID, identity.Name, "", true)
	if err != nil {
		o.log.Error("mint access token failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Authentication failed")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    signed,
		Path:     "/",
		MaxAge:   int(token.LocalTokenTTL.Seconds()),
		HttpOnly: true,
		Secure:   o.secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1})
	http.Redirect(w, r, "/", http.StatusFound)
}

// Logout clears the session cookie.
func (o *OIDC) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   o.secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/", http.StatusFound)
}
