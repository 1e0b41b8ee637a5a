package credentials

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

const (
	credentialSourceSkippedMessageConstant = "Skipping credential source"
	logFieldCredentialSourceConstant       = "credential_source"
	maximumAttemptsConstant                = 2
)

// Set is an ordered, immutable list of agent credentials. The first entry is the primary.
type Set struct {
	values []string
}

// NewSet keeps the non-blank values in order.
func NewSet(values []string) Set {
	kept := make([]string, 0, len(values))
	for _, value := range values {
		trimmedValue := strings.TrimSpace(value)
		if len(trimmedValue) > 0 {
			kept = append(kept, trimmedValue)
		}
	}
	return Set{values: kept}
}

// LoadSet resolves every declaration in order. Declarations whose value is absent are skipped
// with a warning so a deployment may configure a secondary key that is not always present.
func LoadSet(loadContext context.Context, resolver *Resolver, declarations []string, logger *zap.Logger) (Set, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	values := make([]string, 0, len(declarations))
	for _, declaration := range declarations {
		source, parseError := ParseSource(declaration)
		if parseError != nil {
			return Set{}, parseError
		}
		value, resolveError := resolver.Resolve(loadContext, source)
		if resolveError != nil {
			var missingError MissingValueError
			if errors.As(resolveError, &missingError) {
				logger.Warn(credentialSourceSkippedMessageConstant, zap.String(logFieldCredentialSourceConstant, source.String()), zap.Error(resolveError))
				continue
			}
			return Set{}, resolveError
		}
		values = append(values, value)
	}
	return NewSet(values), nil
}

// Len reports the number of credentials.
func (set Set) Len() int {
	return len(set.values)
}

// Empty reports whether no credential is configured.
func (set Set) Empty() bool {
	return len(set.values) == 0
}

// Primary returns the first credential or "" when the set is empty.
func (set Set) Primary() string {
	if set.Empty() {
		return ""
	}
	return set.values[0]
}

// Begin starts a rotation for one call. Rotations are independent, so concurrent calls never
// influence each other's choice of credential.
func (set Set) Begin() *Rotation {
	return &Rotation{values: set.values}
}

// Rotation tracks the credential in use for a single call. It permits at most one advance,
// from the primary to the second credential.
type Rotation struct {
	values   []string
	position int
}

// Current returns the credential in use, or "" when the set is empty.
func (rotation *Rotation) Current() string {
	if rotation.position >= len(rotation.values) {
		return ""
	}
	return rotation.values[rotation.position]
}

// Attempt reports the one-based attempt number of the current credential.
func (rotation *Rotation) Attempt() int {
	return rotation.position + 1
}

// Advance moves to the second credential. It returns false when the rotation is exhausted:
// there is no second credential, or the advance has already happened.
func (rotation *Rotation) Advance() (string, bool) {
	nextPosition := rotation.position + 1
	if nextPosition >= maximumAttemptsConstant || nextPosition >= len(rotation.values) {
		return "", false
	}
	rotation.position = nextPosition
	return rotation.values[nextPosition], true
}
