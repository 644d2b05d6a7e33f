package ratelimit

import (
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/Proton-105/slotwatch/pkg/config"
)

// ErrNoRule is returned when no limit is configured for a command.
var ErrNoRule = errors.New("no rate limit rule")

// Rules exposes the configured limits.
type Rules struct {
	config config.RateLimitConfig
}

// NewRules constructs rate limiting rules from configuration settings.
func NewRules(cfg config.RateLimitConfig) *Rules {
	return &Rules{config: cfg}
}

// Enabled reports whether limiting is switched on.
func (r *Rules) Enabled() bool {
	return r != nil && r.config.Enabled
}

// IsWhitelisted returns true if the userID bypasses rate limits.
func (r *Rules) IsWhitelisted(userID int64) bool {
	return slices.Contains(r.config.Whitelist, userID)
}

// GetCommandLimit returns the limit and window for a command, with or without
// the leading slash. Commands without a rule return ErrNoRule.
func (r *Rules) GetCommandLimit(command string) (int, time.Duration, error) {
	switch strings.TrimPrefix(command, "/") {
	case "subscribe":
		return parseRule(r.config.Commands.Subscribe)
	case "status":
		return parseRule(r.config.Commands.Status)
	default:
		return 0, 0, ErrNoRule
	}
}

// GetPerUserLimit returns the rule applied to every update of a user.
func (r *Rules) GetPerUserLimit() (int, time.Duration, error) {
	return parseRule(r.config.PerUser)
}

func parseRule(rule config.RateLimitRule) (int, time.Duration, error) {
	if rule.Limit <= 0 || rule.Window == "" {
		return 0, 0, ErrNoRule
	}
	window, err := time.ParseDuration(rule.Window)
	if err != nil {
		return 0, 0, err
	}
	return rule.Limit, window, nil
}
