package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// RateLimit is a requests-per-window quota.
type RateLimit struct {
	Count  int
	Window time.Duration
}

// String renders the quota in the "<count>/<unit>" form used by app tables.
func (r RateLimit) String() string {
	switch r.Window {
	case time.Second:
		return fmt.Sprintf("%d/second", r.Count)
	case time.Minute:
		return fmt.Sprintf("%d/minute", r.Count)
	case time.Hour:
		return fmt.Sprintf("%d/hour", r.Count)
	case 24 * time.Hour:
		return fmt.Sprintf("%d/day", r.Count)
	}
	return fmt.Sprintf("%d/%s", r.Count, r.Window)
}

// ParseRateLimit parses quotas such as "100/hour" or "5/30s".
func ParseRateLimit(s string) (RateLimit, error) {
	count, unit, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return RateLimit{}, fmt.Errorf("%w: rate limit %q must be <count>/<window>", ErrValidation, s)
	}
	n, err := strconv.Atoi(strings.TrimSpace(count))
	if err != nil || n <= 0 {
		return RateLimit{}, fmt.Errorf("%w: rate limit count %q must be a positive integer", ErrValidation, count)
	}

	var window time.Duration
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "second", "sec", "s":
		window = time.Second
	case "minute", "min", "m":
		window = time.Minute
	case "hour", "h":
		window = time.Hour
	case "day", "d":
		window = 24 * time.Hour
	default:
		window, err = time.ParseDuration(strings.TrimSpace(unit))
		if err != nil || window <= 0 {
			return RateLimit{}, fmt.Errorf("%w: rate limit window %q is not a known unit or duration", ErrValidation, unit)
		}
	}
	return RateLimit{Count: n, Window: window}, nil
}

// AppProfile identifies one calling application and its generation defaults.
// Profiles are immutable once loaded.
type AppProfile struct {
	Code                string
	Name                string
	AllowedRequestTypes map[string]struct{}
	RateLimit           RateLimit
	MaxTokens           int
	Temperature         float64
}

// NewAppProfile builds a validated profile.
func NewAppProfile(code, name string, requestTypes []string, limit RateLimit, maxTokens int, temperature float64) (AppProfile, error) {
	p := AppProfile{
		Code:                strings.TrimSpace(code),
		Name:                name,
		AllowedRequestTypes: make(map[string]struct{}, len(requestTypes)),
		RateLimit:           limit,
		MaxTokens:           maxTokens,
		Temperature:         temperature,
	}
	for _, rt := range requestTypes {
		if rt = strings.TrimSpace(rt); rt != "" {
			p.AllowedRequestTypes[rt] = struct{}{}
		}
	}
	if err := p.Validate(); err != nil {
		return AppProfile{}, err
	}
	return p, nil
}

// Validate checks the profile's fields.
func (p AppProfile) Validate() error {
	if p.Code == "" {
		return NewValidationError("app_code", "cannot be empty", ErrValidation)
	}
	if len(p.AllowedRequestTypes) == 0 {
		return NewValidationError("allowed_request_types", "must list at least one type", ErrValidation)
	}
	if p.RateLimit.Count <= 0 || p.RateLimit.Window <= 0 {
		return NewValidationError("rate_limit", "must have a positive count and window", ErrValidation)
	}
	if p.MaxTokens <= 0 {
		return NewValidationError("max_tokens", "must be positive", ErrValidation)
	}
	if p.Temperature < 0 || p.Temperature > 2 {
		return NewValidationError("temperature", "must be between 0 and 2", ErrValidation)
	}
	return nil
}

// Allows reports whether requestType is permitted for this app.
func (p AppProfile) Allows(requestType string) bool {
	_, ok := p.AllowedRequestTypes[requestType]
	return ok
}

// RequestTypes returns the allowed request types in sorted order.
func (p AppProfile) RequestTypes() []string {
	out := make([]string, 0, len(p.AllowedRequestTypes))
	for rt := range p.AllowedRequestTypes {
		out = append(out, rt)
	}
	sort.Strings(out)
	return out
}
