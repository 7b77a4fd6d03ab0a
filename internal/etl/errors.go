package etl

import (
	"errors"
	"fmt"
)

// TransientSourceError wraps network/5xx/timeout failures. It is
// retried with backoff up to a bounded count, then surfaces as a stage
// failure.
type TransientSourceError struct {
	Source string
	Err    error
}

func (e TransientSourceError) Error() string {
	return fmt.Sprintf("transient source error (%s): %s", e.Source, e.Err)
}

func (e TransientSourceError) Unwrap() error {
	return e.Err
}

// ValidationError rejects a single record, never the batch it came in.
type ValidationError struct {
	FieldName string
	Reason    string
}

func (e ValidationError) Error() string {
	if e.FieldName == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.FieldName)
}

// ReferentialIntegrityError rejects an entity or relation whose
// dependency is missing from the load ledger.
type ReferentialIntegrityError struct {
	Kind     Kind
	DedupKey string
}

func (e ReferentialIntegrityError) Error() string {
	return fmt.Sprintf("missing %s dependency: %q", e.Kind, e.DedupKey)
}

// ConfigurationError is the only error class fatal to the whole run.
type ConfigurationError struct {
	Reason string
}

func (e ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

func IsFatal(err error) bool {
	var cfg ConfigurationError
	return errors.As(err, &cfg)
}

func IsTransient(err error) bool {
	var t TransientSourceError
	return errors.As(err, &t)
}
