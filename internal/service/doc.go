// Package service contains the application-level use cases of the queue.
//
// RequestGateway is the single entry point for calling applications: it
// admits generation requests (app check, request type check, payload check,
// rate limit, then queue slot) and answers status polls. It coordinates the
// registry, limiter, job store and queue but holds no job state itself.
//
// The HTTP layer maps the sentinel errors returned here to status codes.
package service
