// Package credentials resolves agent provider keys and rotates between them.
//
// Keys are declared as env:NAME, file:/path or a bare environment variable name.
// A Set keeps them in configured order; each call begins its own Rotation, which
// allows exactly one retry with the second key. RateLimitClassifier decides
// whether agent output signals throttling.
package credentials
