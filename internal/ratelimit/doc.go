// Package ratelimit enforces the per-app request quota.
//
// Each app code gets a fixed window: the first admitted request opens the
// window, and at most RateLimit.Count requests are admitted until it closes.
// Checking and consuming quota is a single atomic step, and denied requests
// never consume quota.
package ratelimit
