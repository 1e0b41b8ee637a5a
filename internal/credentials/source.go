package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

const (
	sourceSeparatorConstant                    = ":"
	environmentSourceTypeValueConstant         = "env"
	fileSourceTypeValueConstant                = "file"
	sourceMissingErrorMessageConstant          = "credential source must be provided"
	environmentNameMissingErrorMessageConstant = "environment variable name must be provided"
	filePathMissingErrorMessageConstant        = "credential file path must be provided"
	environmentValueMissingTemplateConstant    = "environment variable %s is not set"
	fileReadErrorTemplateConstant              = "unable to read credential file %s: %w"
	fileValueEmptyErrorTemplateConstant        = "credential file %s is empty"
	unsupportedSourceTemplateConstant          = "unsupported credential source type %q"
)

// SourceType enumerates the supported credential retrieval mechanisms.
type SourceType string

// Source type enumerations.
const (
	SourceTypeEnvironment SourceType = SourceType(environmentSourceTypeValueConstant)
	SourceTypeFile        SourceType = SourceType(fileSourceTypeValueConstant)
)

// Source specifies where a single credential value lives.
type Source struct {
	Type      SourceType
	Reference string
}

// String renders the source in its declaration form. It never includes the credential value.
func (source Source) String() string {
	return string(source.Type) + sourceSeparatorConstant + source.Reference
}

// MissingValueError reports a source that resolved to nothing.
type MissingValueError struct {
	Source  Source
	Message string
}

// Error describes the missing credential.
func (missingError MissingValueError) Error() string {
	return missingError.Message
}

// EnvironmentLookup obtains an environment variable value.
type EnvironmentLookup func(key string) (string, bool)

// FileReader reads the contents of a file path.
type FileReader func(path string) ([]byte, error)

// Resolver reads credential values from their sources.
type Resolver struct {
	environmentLookup EnvironmentLookup
	fileReader        FileReader
}

// NewResolver creates a resolver with optional dependency overrides.
func NewResolver(environmentLookup EnvironmentLookup, fileReader FileReader) *Resolver {
	if environmentLookup == nil {
		environmentLookup = os.LookupEnv
	}
	if fileReader == nil {
		fileReader = os.ReadFile
	}
	return &Resolver{environmentLookup: environmentLookup, fileReader: fileReader}
}

// ParseSource interprets a textual declaration: env:NAME, file:/path, or a bare NAME meaning env:NAME.
func ParseSource(declaration string) (Source, error) {
	trimmedDeclaration := strings.TrimSpace(declaration)
	if len(trimmedDeclaration) == 0 {
		return Source{}, errors.New(sourceMissingErrorMessageConstant)
	}

	components := strings.SplitN(trimmedDeclaration, sourceSeparatorConstant, 2)
	if len(components) == 1 {
		return Source{Type: SourceTypeEnvironment, Reference: trimmedDeclaration}, nil
	}

	sourceType := strings.ToLower(strings.TrimSpace(components[0]))
	reference := strings.TrimSpace(components[1])

	switch sourceType {
	case environmentSourceTypeValueConstant:
		if len(reference) == 0 {
			return Source{}, errors.New(environmentNameMissingErrorMessageConstant)
		}
		return Source{Type: SourceTypeEnvironment, Reference: reference}, nil
	case fileSourceTypeValueConstant:
		if len(reference) == 0 {
			return Source{}, errors.New(filePathMissingErrorMessageConstant)
		}
		return Source{Type: SourceTypeFile, Reference: reference}, nil
	default:
		return Source{}, fmt.Errorf(unsupportedSourceTemplateConstant, sourceType)
	}
}

// Resolve returns the trimmed credential value for source.
func (resolver *Resolver) Resolve(resolutionContext context.Context, source Source) (string, error) {
	switch source.Type {
	case SourceTypeEnvironment:
		value, found := resolver.environmentLookup(source.Reference)
		trimmedValue := strings.TrimSpace(value)
		if !found || len(trimmedValue) == 0 {
			return "", MissingValueError{Source: source, Message: fmt.Sprintf(environmentValueMissingTemplateConstant, source.Reference)}
		}
		return trimmedValue, nil
	case SourceTypeFile:
		contents, readError := resolver.fileReader(source.Reference)
		if readError != nil {
			return "", fmt.Errorf(fileReadErrorTemplateConstant, source.Reference, readError)
		}
		trimmedValue := strings.TrimSpace(string(contents))
		if len(trimmedValue) == 0 {
			return "", MissingValueError{Source: source, Message: fmt.Sprintf(fileValueEmptyErrorTemplateConstant, source.Reference)}
		}
		return trimmedValue, nil
	default:
		return "", fmt.Errorf(unsupportedSourceTemplateConstant, source.Type)
	}
}

// ResolveOptional resolves a declaration, treating a blank declaration or a missing value as "".
// Malformed declarations and unreadable files are still errors.
func (resolver *Resolver) ResolveOptional(resolutionContext context.Context, declaration string) (string, error) {
	if len(strings.TrimSpace(declaration)) == 0 {
		return "", nil
	}
	source, parseError := ParseSource(declaration)
	if parseError != nil {
		return "", parseError
	}
	value, resolveError := resolver.Resolve(resolutionContext, source)
	var missingError MissingValueError
	if errors.As(resolveError, &missingError) {
		return "", nil
	}
	return value, resolveError
}
