package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

const (
	// DefaultClientVersion is used when PHONEPE_CLIENT_VERSION is unset.
	DefaultClientVersion = "1"

	oauthTokenPath = "/v1/oauth/token"
)

// Gateway carries the PhonePe credentials and endpoints for a single request.
type Gateway struct {
	ClientID      string
	ClientSecret  string
	ClientVersion string
	APIBaseURL    string
	OAuthURL      string
}

// WebhookCredentials holds the Basic-Auth pair PhonePe uses when calling back.
type WebhookCredentials struct {
	Username string
	Password string
}

// Configured reports whether both halves of the credential pair are present.
func (w WebhookCredentials) Configured() bool {
	return w.Username != "" && w.Password != ""
}

// MissingKeysError lists required environment variables that were not set.
type MissingKeysError struct {
	Keys []string
}

func (e *MissingKeysError) Error() string {
	return fmt.Sprintf("payment gateway configuration is missing: %s", strings.Join(e.Keys, ", "))
}

// EnvResolver reads gateway settings from the process environment on every call,
// so credential rotation only needs an environment change.
type EnvResolver struct {
	dotenv sync.Once
}

// NewEnvResolver constructs an EnvResolver.
func NewEnvResolver() *EnvResolver {
	return &EnvResolver{}
}

// Gateway resolves the PhonePe gateway configuration. No network call is made.
func (r *EnvResolver) Gateway() (Gateway, error) {
	k, err := r.load()
	if err != nil {
		return Gateway{}, err
	}
	return gatewayFrom(k)
}

// Webhook resolves the webhook Basic-Auth credentials exactly as set; they are
// compared byte for byte. Unset values yield an unconfigured pair rather than
// an error.
func (r *EnvResolver) Webhook() WebhookCredentials {
	k, err := r.load()
	if err != nil {
		return WebhookCredentials{}
	}
	return WebhookCredentials{
		Username: k.String("PHONEPE_WEBHOOK_USERNAME"),
		Password: k.String("PHONEPE_WEBHOOK_PASSWORD"),
	}
}

func (r *EnvResolver) load() (*koanf.Koanf, error) {
	r.dotenv.Do(func() { _ = godotenv.Load() })
	k := koanf.New(".")
	if err := k.Load(env.Provider("PHONEPE_", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}
	return k, nil
}

func gatewayFrom(k *koanf.Koanf) (Gateway, error) {
	gw := Gateway{
		ClientID:      strings.TrimSpace(k.String("PHONEPE_CLIENT_ID")),
		ClientSecret:  strings.TrimSpace(k.String("PHONEPE_CLIENT_SECRET")),
		ClientVersion: valueOrDefault(k.String("PHONEPE_CLIENT_VERSION"), DefaultClientVersion),
		APIBaseURL:    strings.TrimRight(strings.TrimSpace(k.String("PHONEPE_API_BASE_URL")), "/"),
		OAuthURL:      strings.TrimSpace(k.String("PHONEPE_OAUTH_URL")),
	}

	var missing []string
	if gw.ClientID == "" {
		missing = append(missing, "PHONEPE_CLIENT_ID")
	}
	if gw.ClientSecret == "" {
		missing = append(missing, "PHONEPE_CLIENT_SECRET")
	}
	if gw.APIBaseURL == "" {
		missing = append(missing, "PHONEPE_API_BASE_URL")
	}
	if len(missing) > 0 {
		return Gateway{}, &MissingKeysError{Keys: missing}
	}
	if gw.OAuthURL == "" {
		gw.OAuthURL = gw.APIBaseURL + oauthTokenPath
	}
	return gw, nil
}
