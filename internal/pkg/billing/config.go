package billing

import (
	"strings"
	"time"

	"github.com/ManuelReschke/SubGate/internal/pkg/env"
)

const DefaultProcessingTimeout = 2 * time.Minute

// Config holds the billing settings read from the environment.
type Config struct {
	IPNSecret         string
	ConfirmSecret     string
	ChatInviteURL     string
	Production        bool
	GrantTimeout      time.Duration
	ProcessingTimeout time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		IPNSecret:         strings.TrimSpace(env.GetEnv("NOWPAYMENTS_IPN_SECRET", "")),
		ConfirmSecret:     strings.TrimSpace(env.GetEnv("CONFIRM_SECRET", "")),
		ChatInviteURL:     strings.TrimSpace(env.GetEnv("CHAT_INVITE_URL", "")),
		Production:        env.IsProduction(),
		GrantTimeout:      env.GetDuration("GRANT_TIMEOUT", DefaultGrantTimeout),
		ProcessingTimeout: env.GetDuration("WEBHOOK_PROCESSING_TIMEOUT", DefaultProcessingTimeout),
	}
}

// Verifier returns the signature verifier for this configuration.
func (c Config) Verifier() Verifier {
	return Verifier{Secret: c.IPNSecret, Production: c.Production}
}
