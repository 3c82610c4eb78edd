// Package config loads the server configuration from the environment, with
// secrets going through the secret resolver.
package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/waffleoffice/wopihost/internal/secret"
	"github.com/waffleoffice/wopihost/internal/store"
)

// Config is the fully resolved server configuration.
type Config struct {
	Addr string

	// Identity provider.
	DexIssuer    string
	ClientID     string
	ClientSecret string

	// Local token signing key.
	TokenSecret string

	// Document server and our own public address.
	DocumentServerURL string
	PublicURL         string

	FilesDir    string
	SettingsDir string

	SuperAdmin       string
	AddressingMode   store.Mode
	MaxDocumentBytes int64

	// LockTable selects the shared lock backend; empty means in-process.
	LockTable string

	DevMode bool
}

// Load reads the environment, resolves secrets and prepares the storage
// directories. All missing required variables are reported together.
func Load(ctx context.Context, resolver secret.Resolver) (*Config, error) {
	cfg := &Config{
		Addr:              getenv("LISTEN_ADDR", ":8080"),
		DexIssuer:         os.Getenv("DEX_ISSUER"),
		ClientID:          os.Getenv("CLIENT_ID"),
		DocumentServerURL: os.Getenv("DOCUMENTSERVER_URL"),
		PublicURL:         strings.TrimRight(os.Getenv("PUBLIC_URL"), "/"),
		FilesDir:          getenv("FILES_DIR", "./files"),
		SettingsDir:       getenv("SETTINGS_DIR", "./settings"),
		SuperAdmin:        getenv("SUPER_ADMIN_USER", "admin"),
		LockTable:         os.Getenv("LOCK_TABLE"),
		DevMode:           os.Getenv("DEV_MODE") == "true",
	}

	var missing []string
	for name, val := range map[string]string{
		"DEX_ISSUER":         cfg.DexIssuer,
		"CLIENT_ID":          cfg.ClientID,
		"DOCUMENTSERVER_URL": cfg.DocumentServerURL,
		"PUBLIC_URL":         cfg.PublicURL,
	} {
		if val == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}

	switch mode := store.Mode(getenv("ADDRESSING_MODE", string(store.ModeRaw))); mode {
	case store.ModeRaw, store.ModeToken:
		cfg.AddressingMode = mode
	default:
		return nil, fmt.Errorf("invalid ADDRESSING_MODE %q (want raw or token)", mode)
	}

	maxBytes := getenv("MAX_DOCUMENT_BYTES", "102400")
	n, err := strconv.ParseInt(maxBytes, 10, 64)
	if err != nil || n <= 0 {
		return nil, fmt.Errorf("invalid MAX_DOCUMENT_BYTES %q", maxBytes)
	}
	cfg.MaxDocumentBytes = n

	tokenParam := getenv("TOKEN_SECRET_PARAM", "/wopihost/token-secret")
	cfg.TokenSecret, err = resolver.Resolve(ctx, tokenParam)
	if err != nil {
		return nil, fmt.Errorf("resolve token secret: %w", err)
	}

	clientSecretParam := getenv("OIDC_CLIENT_SECRET_PARAM", "/wopihost/oidc-client-secret")
	cfg.ClientSecret, err = resolver.Resolve(ctx, clientSecretParam)
	if err != nil {
		return nil, fmt.Errorf("resolve client secret: %w", err)
	}

	for _, dir := range []string{cfg.FilesDir, cfg.SettingsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return cfg, nil
}

func getenv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
