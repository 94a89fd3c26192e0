// Package config handles configuration loading, parsing, and validation
// from various sources (environment variables, files). It provides type-safe
// access to the server, queue, provider and rate-limit settings while keeping
// configuration details separate from business logic.
package config
