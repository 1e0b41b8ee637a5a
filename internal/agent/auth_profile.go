package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	profilesKeyConstant                = "profiles"
	usageStatsKeyConstant              = "usageStats"
	profileKeyFieldConstant            = "key"
	profileTypeFieldConstant           = "type"
	profileProviderFieldConstant       = "provider"
	profileTypeAPIKeyConstant          = "api_key"
	profileNameSeparatorConstant       = ":"
	profileFileTemporarySuffixConstant = ".tmp-*"
	profileDirectoryPermissionsConst   = 0o700
	profileFilePermissionsConstant     = 0o600
	profileReadErrorTemplateConstant   = "read %s: %w"
	profileDecodeErrorTemplateConstant = "decode %s: %w"
	profileShapeErrorTemplateConstant  = "%s: %q is not an object"
	profileWriteErrorTemplateConstant  = "write %s: %w"
)

// cooldownFields are the agent's own throttling bookkeeping, cleared so a freshly selected
// credential is used immediately.
var cooldownFields = []string{
	"cooldownUntil",
	"disabledUntil",
	"disabledReason",
	"errorCount",
	"failureCounts",
	"lastFailureAt",
}

// AuthProfileSynchronizer keeps the agent's auth-profile store in step with the credential
// chosen for the next invocation.
type AuthProfileSynchronizer struct {
	path        string
	profileName string
}

// NewAuthProfileSynchronizer constructs a synchronizer. An empty path disables it.
func NewAuthProfileSynchronizer(path string, profileName string) *AuthProfileSynchronizer {
	return &AuthProfileSynchronizer{path: strings.TrimSpace(path), profileName: strings.TrimSpace(profileName)}
}

// Enabled reports whether a profile path is configured.
func (synchronizer *AuthProfileSynchronizer) Enabled() bool {
	return synchronizer != nil && len(synchronizer.path) > 0
}

// Synchronize writes credential into the configured profile and clears its cooldown markers.
// Unrelated profiles and fields are preserved. It reports whether a file was written.
func (synchronizer *AuthProfileSynchronizer) Synchronize(credential string) (bool, error) {
	if !synchronizer.Enabled() {
		return false, nil
	}

	document, loadError := synchronizer.load()
	if loadError != nil {
		return false, loadError
	}

	profiles, profilesError := childObject(document, profilesKeyConstant, synchronizer.path)
	if profilesError != nil {
		return false, profilesError
	}
	profile, profileError := childObject(profiles, synchronizer.profileName, synchronizer.path)
	if profileError != nil {
		return false, profileError
	}
	if _, hasType := profile[profileTypeFieldConstant]; !hasType {
		profile[profileTypeFieldConstant] = profileTypeAPIKeyConstant
	}
	if _, hasProvider := profile[profileProviderFieldConstant]; !hasProvider {
		provider, _, _ := strings.Cut(synchronizer.profileName, profileNameSeparatorConstant)
		profile[profileProviderFieldConstant] = provider
	}
	profile[profileKeyFieldConstant] = credential

	usageStatistics, usageError := childObject(document, usageStatsKeyConstant, synchronizer.path)
	if usageError != nil {
		return false, usageError
	}
	if profileStatistics, present := usageStatistics[synchronizer.profileName].(map[string]any); present {
		for _, field := range cooldownFields {
			delete(profileStatistics, field)
		}
	}

	return true, synchronizer.save(document)
}

func (synchronizer *AuthProfileSynchronizer) load() (map[string]any, error) {
	contents, readError := os.ReadFile(synchronizer.path)
	if errors.Is(readError, os.ErrNotExist) {
		return map[string]any{}, nil
	}
	if readError != nil {
		return nil, fmt.Errorf(profileReadErrorTemplateConstant, synchronizer.path, readError)
	}
	if len(strings.TrimSpace(string(contents))) == 0 {
		return map[string]any{}, nil
	}
	document := map[string]any{}
	if decodeError := json.Unmarshal(contents, &document); decodeError != nil {
		return nil, fmt.Errorf(profileDecodeErrorTemplateConstant, synchronizer.path, decodeError)
	}
	return document, nil
}

func (synchronizer *AuthProfileSynchronizer) save(document map[string]any) error {
	encoded, encodeError := json.MarshalIndent(document, "", "  ")
	if encodeError != nil {
		return fmt.Errorf(profileWriteErrorTemplateConstant, synchronizer.path, encodeError)
	}

	directory := filepath.Dir(synchronizer.path)
	if mkdirError := os.MkdirAll(directory, profileDirectoryPermissionsConst); mkdirError != nil {
		return fmt.Errorf(profileWriteErrorTemplateConstant, synchronizer.path, mkdirError)
	}
	temporaryFile, createError := os.CreateTemp(directory, filepath.Base(synchronizer.path)+profileFileTemporarySuffixConstant)
	if createError != nil {
		return fmt.Errorf(profileWriteErrorTemplateConstant, synchronizer.path, createError)
	}
	temporaryPath := temporaryFile.Name()

	_, writeError := temporaryFile.Write(encoded)
	if writeError == nil {
		writeError = temporaryFile.Sync()
	}
	closeError := temporaryFile.Close()
	if writeError == nil {
		writeError = closeError
	}
	if writeError == nil {
		writeError = os.Chmod(temporaryPath, profileFilePermissionsConstant)
	}
	if writeError == nil {
		writeError = os.Rename(temporaryPath, synchronizer.path)
	}
	if writeError != nil {
		_ = os.Remove(temporaryPath)
		return fmt.Errorf(profileWriteErrorTemplateConstant, synchronizer.path, writeError)
	}
	return nil
}

func childObject(parent map[string]any, key string, path string) (map[string]any, error) {
	existing, present := parent[key]
	if !present || existing == nil {
		child := map[string]any{}
		parent[key] = child
		return child, nil
	}
	child, isObject := existing.(map[string]any)
	if !isObject {
		return nil, fmt.Errorf(profileShapeErrorTemplateConstant, path, key)
	}
	return child, nil
}
