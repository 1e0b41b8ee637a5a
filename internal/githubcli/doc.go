// Package githubcli wraps the GitHub CLI for remediation and pull request review.
//
// It layers typed request and response structures over gh repo view and gh api,
// covering branch references, file contents, pull requests and issue comments.
// Every call goes through execshell so interactions with GitHub can be stubbed
// during testing.
package githubcli
