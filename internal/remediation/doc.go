// Package remediation proposes a patched contract file as a GitHub pull request.
package remediation
