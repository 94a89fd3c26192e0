// Package postgres implements the optional job history archive on PostgreSQL.
//
// Terminal jobs are written to the job_history table as they finish so that a
// poll for a request id can still be answered after the in-memory store has
// purged it. The schema is managed with goose migrations embedded in the
// binary, and connections use the pgx stdlib driver.
package postgres
