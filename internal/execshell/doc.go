// Package execshell provides structured helpers for invoking external tools.
//
// It wraps os/exec with zap logging via ShellExecutor, exposes OSCommandRunner
// for default process execution, and defines the abstractions clawaudit uses
// to run the GitHub CLI and the containerized audit agent in a testable manner.
package execshell
