// Package notifications delivers exception alerts via pluggable notifiers.
//
// The default implementation posts rendered HTML and plain-text email
// bodies to the configured mail relay and gracefully degrades to a no-op
// when no relay is configured. Workflow code depends only on the small
// Service interface, so alternative transports slot in without touching
// the callers.
package notifications
