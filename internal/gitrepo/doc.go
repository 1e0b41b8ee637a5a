// Package gitrepo parses the repository identifiers accepted by remediation requests.
//
// Callers may name a repository as owner/name, as an https clone URL, or as an
// ssh remote; every form resolves to the owner/name pair used by the GitHub API.
package gitrepo
