package gitrepo

import (
	"fmt"
	"strings"
)

const (
	sshProtocolPrefixConstant           = "ssh://"
	sshUserDelimiterConstant            = "@"
	sshPathDelimiterConstant            = ":"
	httpsProtocolPrefixConstant         = "https://"
	httpProtocolPrefixConstant          = "http://"
	gitUserPrefixConstant               = "git@"
	pathSeparatorConstant               = "/"
	gitSuffixConstant                   = ".git"
	remoteURLParseErrorTemplateConstant = "%s: %s"
	fullNameTemplateConstant            = "%s/%s"
	invalidRemoteURLMessageConstant     = "invalid repository identifier"
	requiredValueMessageConstant        = "value required"
)

// RemoteProtocol enumerates the ways a repository identifier can be written.
type RemoteProtocol string

// Supported identifier forms.
const (
	RemoteProtocolSSH       RemoteProtocol = RemoteProtocol("ssh")
	RemoteProtocolHTTPS     RemoteProtocol = RemoteProtocol("https")
	RemoteProtocolShorthand RemoteProtocol = RemoteProtocol("shorthand")
)

// RemoteURL represents a structured repository location.
type RemoteURL struct {
	Protocol   RemoteProtocol
	Host       string
	Owner      string
	Repository string
}

// FullName returns the owner/name form accepted by the GitHub API.
func (remote RemoteURL) FullName() string {
	return fmt.Sprintf(fullNameTemplateConstant, remote.Owner, remote.Repository)
}

// RemoteURLParseError indicates a repository identifier could not be parsed.
type RemoteURLParseError struct {
	Input   string
	Message string
}

// Error describes the parse failure.
func (parseError RemoteURLParseError) Error() string {
	return fmt.Sprintf(remoteURLParseErrorTemplateConstant, parseError.Input, parseError.Message)
}

// ParseRepositoryIdentifier accepts owner/name, https and ssh remote forms.
func ParseRepositoryIdentifier(identifier string) (RemoteURL, error) {
	trimmedIdentifier := strings.TrimSpace(identifier)
	if len(trimmedIdentifier) == 0 {
		return RemoteURL{}, RemoteURLParseError{Input: identifier, Message: requiredValueMessageConstant}
	}

	switch {
	case strings.HasPrefix(trimmedIdentifier, sshProtocolPrefixConstant):
		return parseSSHRemote(strings.TrimPrefix(trimmedIdentifier, sshProtocolPrefixConstant))
	case strings.HasPrefix(trimmedIdentifier, gitUserPrefixConstant):
		return parseSSHRemote(trimmedIdentifier)
	case strings.HasPrefix(trimmedIdentifier, httpsProtocolPrefixConstant):
		return parseHTTPSRemote(strings.TrimPrefix(trimmedIdentifier, httpsProtocolPrefixConstant))
	case strings.HasPrefix(trimmedIdentifier, httpProtocolPrefixConstant):
		return parseHTTPSRemote(strings.TrimPrefix(trimmedIdentifier, httpProtocolPrefixConstant))
	}

	owner, repository, parseError := splitOwnerAndRepository(trimmedIdentifier)
	if parseError != nil {
		return RemoteURL{}, RemoteURLParseError{Input: identifier, Message: invalidRemoteURLMessageConstant}
	}
	return RemoteURL{Protocol: RemoteProtocolShorthand, Owner: owner, Repository: repository}, nil
}

func parseSSHRemote(remote string) (RemoteURL, error) {
	userSplitIndex := strings.Index(remote, sshUserDelimiterConstant)
	if userSplitIndex == -1 {
		return RemoteURL{}, RemoteURLParseError{Input: remote, Message: invalidRemoteURLMessageConstant}
	}
	hostAndPath := remote[userSplitIndex+1:]
	pathSplitIndex := strings.Index(hostAndPath, sshPathDelimiterConstant)
	var host string
	var path string
	if pathSplitIndex == -1 {
		slashIndex := strings.Index(hostAndPath, pathSeparatorConstant)
		if slashIndex == -1 {
			return RemoteURL{}, RemoteURLParseError{Input: remote, Message: invalidRemoteURLMessageConstant}
		}
		host = hostAndPath[:slashIndex]
		path = hostAndPath[slashIndex+1:]
	} else {
		host = hostAndPath[:pathSplitIndex]
		path = hostAndPath[pathSplitIndex+1:]
	}
	owner, repository, parseError := splitOwnerAndRepository(path)
	if parseError != nil {
		return RemoteURL{}, parseError
	}
	return RemoteURL{Protocol: RemoteProtocolSSH, Host: host, Owner: owner, Repository: repository}, nil
}

func parseHTTPSRemote(remote string) (RemoteURL, error) {
	hostAndPath := strings.TrimSuffix(remote, pathSeparatorConstant)
	hostSplitIndex := strings.Index(hostAndPath, pathSeparatorConstant)
	if hostSplitIndex == -1 {
		return RemoteURL{}, RemoteURLParseError{Input: remote, Message: invalidRemoteURLMessageConstant}
	}
	owner, repository, parseError := splitOwnerAndRepository(hostAndPath[hostSplitIndex+1:])
	if parseError != nil {
		return RemoteURL{}, parseError
	}
	return RemoteURL{Protocol: RemoteProtocolHTTPS, Host: hostAndPath[:hostSplitIndex], Owner: owner, Repository: repository}, nil
}

func splitOwnerAndRepository(path string) (string, string, error) {
	segments := strings.Split(path, pathSeparatorConstant)
	if len(segments) != 2 || len(strings.TrimSpace(segments[0])) == 0 {
		return "", "", RemoteURLParseError{Input: path, Message: invalidRemoteURLMessageConstant}
	}
	repository, parseError := normalizeRepositoryName(segments[1])
	if parseError != nil {
		return "", "", parseError
	}
	return segments[0], repository, nil
}

func normalizeRepositoryName(repository string) (string, error) {
	trimmed := strings.TrimSuffix(repository, gitSuffixConstant)
	if len(trimmed) == 0 || strings.ContainsAny(trimmed, " \t") {
		return "", RemoteURLParseError{Input: repository, Message: invalidRemoteURLMessageConstant}
	}
	return trimmed, nil
}
