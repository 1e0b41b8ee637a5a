// Package webhook reacts to GitHub pull request deliveries.
//
// A supported delivery moves through received, filtered, diff-fetched, audited, commented,
// remediation-attempted and notified. Only a failure to fetch the diff or to post the review
// comment aborts the delivery; remediation and the public notification are best effort.
package webhook
