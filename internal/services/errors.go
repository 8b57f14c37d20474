// Package services holds the error taxonomy shared by every worker.
package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation marks malformed or missing required input. Messages
	// carrying it are dropped from their queue without dead-lettering.
	ErrValidation = errors.New("validation error")
	// ErrTransient marks a recoverable dependency failure. Messages stay
	// on the queue for redelivery.
	ErrTransient = errors.New("transient failure")
	// ErrIntegrity marks a consistency failure such as a keyless tracker
	// write or a missing parent record. Delivery-flow messages carrying
	// it are dead-lettered for inspection.
	ErrIntegrity = errors.New("integrity failure")
	// ErrNotFound marks a missing record where the caller expected one.
	ErrNotFound = errors.New("not found")
	// ErrConfiguration marks missing or invalid runtime configuration.
	ErrConfiguration = errors.New("configuration error")
)

// Wrap builds an error that includes component context while tagging it
// with the provided marker for later disposition classification.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Disposition describes what a poll loop should do with a failed message.
type Disposition int

const (
	// DispositionRetry leaves the message on the queue for redelivery.
	DispositionRetry Disposition = iota
	// DispositionDrop deletes the message without dead-lettering.
	DispositionDrop
	// DispositionDeadLetter deletes the message and forwards it to the
	// dead-letter sink with its failure reason.
	DispositionDeadLetter
)

// Classify maps a handler error to its queue disposition.
func Classify(err error) Disposition {
	switch {
	case err == nil:
		return DispositionDrop
	case errors.Is(err, ErrValidation):
		return DispositionDrop
	case errors.Is(err, ErrIntegrity):
		return DispositionDeadLetter
	default:
		return DispositionRetry
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "unspecified failure"
	}
	return strings.Join(parts, ": ")
}
