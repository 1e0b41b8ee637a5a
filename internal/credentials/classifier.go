package credentials

import (
	"regexp"
)

// rateLimitPatternConstant matches the phrases providers use when throttling. It is a heuristic
// over free text; swap the classifier when the agent reports a structured status.
// A bare 429 is not enough: audit reports routinely cite line numbers and amounts.
const rateLimitPatternConstant = `(?i)(rate[\s_-]?limit|http(/\d(\.\d)?)?[\s:]*429\b|status(code)?[\s:="]*429\b|too many requests|resource[\s_-]exhausted|quota[\s_-]exceeded|exceeded your current quota|try again later)`

// RateLimitClassifier decides whether agent output indicates throttling.
type RateLimitClassifier interface {
	IsRateLimited(output string) bool
}

// PatternClassifier detects throttling with a regular expression.
type PatternClassifier struct {
	pattern *regexp.Regexp
}

// NewPatternClassifier returns the default classifier.
func NewPatternClassifier() PatternClassifier {
	return PatternClassifier{pattern: regexp.MustCompile(rateLimitPatternConstant)}
}

// NewCustomPatternClassifier compiles a caller-supplied expression.
func NewCustomPatternClassifier(expression string) (PatternClassifier, error) {
	compiled, compileError := regexp.Compile(expression)
	if compileError != nil {
		return PatternClassifier{}, compileError
	}
	return PatternClassifier{pattern: compiled}, nil
}

// IsRateLimited reports whether output contains a throttling phrase.
func (classifier PatternClassifier) IsRateLimited(output string) bool {
	if classifier.pattern == nil {
		return false
	}
	return classifier.pattern.MatchString(output)
}
