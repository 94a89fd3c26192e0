// Package domain contains the entities shared by every layer of the service:
// jobs and their lifecycle state machine, app profiles with their quotas, and
// the sentinel errors used to classify admission and processing failures.
// It has no dependencies on infrastructure or delivery mechanisms.
package domain
