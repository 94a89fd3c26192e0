// Package task owns the lifecycle of admitted jobs: the job store with its
// compare-and-swap transitions, the bounded FIFO queue of request ids, the
// worker pool that drives jobs through the completion provider with retries,
// and the sweeper that expires stuck jobs and purges old ones.
package task
