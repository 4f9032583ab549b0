// Package security provides security utilities for input validation,
// sanitization, and sensitive data masking.
package security

import (
	"fmt"
	"regexp"
	"unicode/utf8"
)

// Validation limits for decode requests.
const (
	// Sentence limits.
	MaxSentenceLength = 10000

	// Pool limits.
	MinPoolSize = 1
	MaxPoolSize = 1024

	// NBest limits.
	MinNBest = 1

	// Name limits for metrics, decoders, and checkpoints.
	MaxNameLength = 64

	// Request limits.
	MaxRequestSize = 10 * 1024 * 1024 // 10MB
)

// ValidationError represents a field validation error.
type ValidationError struct {
	Field      string
	Value      interface{}
	Constraint string
}

func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("validation failed for %s: %s (got: %v)", e.Field, e.Constraint, e.Value)
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Constraint)
}

// nameRegex matches valid registry names: alphanumeric, hyphen, underscore.
var nameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)

// ValidateSentence validates a hypothesis, reference, or source segment.
// Requirements: at most 10000 chars, valid UTF-8. Empty segments are
// allowed; candidate pools from real systems routinely contain empty
// outputs, and those must still be decodable.
func ValidateSentence(field, sentence string) error {
	length := utf8.RuneCountInString(sentence)
	if length > MaxSentenceLength {
		return &ValidationError{
			Field:      field,
			Value:      length,
			Constraint: fmt.Sprintf("maximum length is %d characters", MaxSentenceLength),
		}
	}

	if !utf8.ValidString(sentence) {
		return &ValidationError{
			Field:      field,
			Constraint: "must be valid UTF-8",
		}
	}

	return nil
}

// ValidateName validates a metric, decoder, or checkpoint name.
// Requirements: 1-64 chars, alphanumeric + hyphen + underscore, must
// start with alphanumeric. Empty names are allowed; they select the
// configured default.
func ValidateName(field, name string) error {
	if name == "" {
		return nil
	}

	if len(name) > MaxNameLength {
		return &ValidationError{
			Field:      field,
			Value:      len(name),
			Constraint: fmt.Sprintf("maximum length is %d characters", MaxNameLength),
		}
	}

	if !nameRegex.MatchString(name) {
		return &ValidationError{
			Field:      field,
			Value:      SanitizeForLog(name),
			Constraint: "must contain only alphanumeric characters, hyphens, and underscores, and start with alphanumeric",
		}
	}

	return nil
}

// ValidateNBest validates the nbest parameter. Zero selects the
// configured default; the decoder clamps values above the pool size.
func ValidateNBest(nbest int) error {
	if nbest < 0 {
		return &ValidationError{
			Field:      "nbest",
			Value:      nbest,
			Constraint: "must not be negative",
		}
	}
	return nil
}

// ValidatePoolSize validates the number of hypotheses in a pool.
func ValidatePoolSize(size int) error {
	if size < MinPoolSize {
		return &ValidationError{
			Field:      "hypotheses",
			Constraint: "at least one hypothesis is required",
		}
	}

	if size > MaxPoolSize {
		return &ValidationError{
			Field:      "hypotheses",
			Value:      size,
			Constraint: fmt.Sprintf("maximum pool size is %d", MaxPoolSize),
		}
	}

	return nil
}

// DecodeRequestValidator validates a decode request's inputs.
type DecodeRequestValidator struct {
	Decoder    string
	Metric     string
	NBest      int
	Hypotheses []string
	References []string
	Source     string
}

// Validate checks all fields of the decode request.
func (v *DecodeRequestValidator) Validate() error {
	if err := ValidateName("decoder", v.Decoder); err != nil {
		return err
	}
	if err := ValidateName("metric", v.Metric); err != nil {
		return err
	}
	if err := ValidateNBest(v.NBest); err != nil {
		return err
	}
	if err := ValidatePoolSize(len(v.Hypotheses)); err != nil {
		return err
	}

	for i, h := range v.Hypotheses {
		if err := ValidateSentence(fmt.Sprintf("hypotheses[%d]", i), h); err != nil {
			return err
		}
	}
	for i, r := range v.References {
		if err := ValidateSentence(fmt.Sprintf("references[%d]", i), r); err != nil {
			return err
		}
	}

	return nil
}
