package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"

	"github.com/justcook/justcook-backend/pkg/config"
	"github.com/justcook/justcook-backend/pkg/logger"
)

const defaultTimeout = 10 * time.Second

// keyPrefixes lists the secret and restricted key prefixes accepted per
// Stripe environment.
var keyPrefixes = map[string][]string{
	"test": {"sk_test_", "rk_test_"},
	"live": {"sk_live_", "rk_live_"},
}

var (
	errAPIKeyRequired   = errors.New("stripe api key is required")
	errSecretRequired   = errors.New("stripe webhook secret is required")
	errInvalidStripeEnv = errors.New(`stripe environment must be "test" or "live"`)
)

type createSessionFunc func(*stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)

// Client holds the Stripe credentials for one environment. API calls use the
// package-level backend keyed by stripe.Key.
type Client struct {
	environment   string
	signingSecret string
	timeout       time.Duration
	createSession createSessionFunc
}

// NewClient refuses a key that belongs to the other environment, so a test
// deployment can never charge real cards.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	secret := strings.TrimSpace(cfg.Secret)
	switch {
	case apiKey == "":
		return nil, errAPIKeyRequired
	case secret == "":
		return nil, errSecretRequired
	case !keyMatches(env, apiKey):
		return nil, fmt.Errorf("stripe environment %q needs a key starting with %s", env, strings.Join(keyPrefixes[env], " or "))
	}

	stripe.Key = apiKey
	client := &Client{
		environment:   env,
		signingSecret: secret,
		timeout:       cfg.Timeout,
		createSession: session.New,
	}
	if client.timeout <= 0 {
		client.timeout = defaultTimeout
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "stripe_env", env), "stripe client ready")
	}
	return client, nil
}

func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// SigningSecret verifies Stripe-Signature headers on incoming webhooks.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

func normalizeEnv(raw string) (string, error) {
	env := strings.ToLower(strings.TrimSpace(raw))
	if env == "" {
		env = "test"
	}
	if _, ok := keyPrefixes[env]; !ok {
		return "", errInvalidStripeEnv
	}
	return env, nil
}

func keyMatches(env, key string) bool {
	for _, prefix := range keyPrefixes[env] {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}
