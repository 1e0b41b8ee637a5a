// Package server exposes scans, proof lookups, the audit trail, remediation pull requests,
// developer updates and GitHub deliveries over HTTP using gin.
package server
