// Package ratelimit gives each MCP tool its own token bucket.
package ratelimit

import (
	"fmt"

	"golang.org/x/time/rate"
)

// Limit is a per-tool allowance expressed per minute.
type Limit struct {
	PerMinute float64
	Burst     int
}

// ToolLimiters maps tool names to their rate limiters.
type ToolLimiters map[string]*rate.Limiter

// NewToolLimiters creates one limiter per named tool. Each starts with a
// full burst and refills at PerMinute/60 tokens per second.
func NewToolLimiters(limits map[string]Limit) ToolLimiters {
	limiters := make(ToolLimiters, len(limits))
	for tool, l := range limits {
		limiters[tool] = rate.NewLimiter(rate.Limit(l.PerMinute/60.0), l.Burst)
	}
	return limiters
}

// CheckLimit consumes one token for toolName. Tools without a configured
// limiter are always allowed.
func CheckLimit(limiters ToolLimiters, toolName string) error {
	limiter, ok := limiters[toolName]
	if !ok {
		return nil
	}
	if !limiter.Allow() {
		return fmt.Errorf("rate limit exceeded for %s, please try again shortly", toolName)
	}
	return nil
}
