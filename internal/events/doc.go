// Package events fans job lifecycle changes out to interested components.
//
// The job store emits a JobEvent after every committed change. Handlers such
// as the metrics recorder, the status stream hub and the history archive
// register with an InMemoryEventEmitter and receive every event in order of
// registration.
package events
