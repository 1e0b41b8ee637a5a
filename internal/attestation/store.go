package attestation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	addressAliasKeyPrefixConstant       = "address:"
	temporaryFilePatternSuffixConstant  = ".tmp-*"
	storeDirectoryPermissionsConstant   = 0o755
	storeFilePermissionsConstant        = 0o644
	storePathRequiredMessageConstant    = "attestation store path required"
	storeReadErrorTemplateConstant      = "read attestation store %s: %w"
	storeCorruptErrorTemplateConstant   = "attestation store %s is corrupt: %w"
	storeEntryCorruptTemplateConstant   = "entry %q: %w"
	storeEncodeErrorTemplateConstant    = "encode attestation store: %w"
	storeDirectoryErrorTemplateConstant = "create attestation store directory %s: %w"
	storeWriteErrorTemplateConstant     = "write attestation store %s: %w"
)

// ErrStorePathRequired indicates a FileStore was constructed without a path.
var ErrStorePathRequired = errors.New(storePathRequiredMessageConstant)

// FileStore persists Records as a single JSON object. Proofs are stored under their code hash;
// aliases are stored under "address:<address>" with the code hash as a string value.
type FileStore struct {
	path string
}

// NewFileStore constructs a FileStore backed by path.
func NewFileStore(path string) (*FileStore, error) {
	trimmedPath := strings.TrimSpace(path)
	if len(trimmedPath) == 0 {
		return nil, ErrStorePathRequired
	}
	return &FileStore{path: trimmedPath}, nil
}

// Path reports the backing file location.
func (store *FileStore) Path() string {
	return store.path
}

// Load reads the store. A missing file is an empty registry.
func (store *FileStore) Load(loadContext context.Context) (Records, error) {
	contents, readError := os.ReadFile(store.path)
	if errors.Is(readError, os.ErrNotExist) {
		return emptyRecords(), nil
	}
	if readError != nil {
		return Records{}, fmt.Errorf(storeReadErrorTemplateConstant, store.path, readError)
	}
	if len(strings.TrimSpace(string(contents))) == 0 {
		return emptyRecords(), nil
	}

	var document map[string]json.RawMessage
	if decodeError := json.Unmarshal(contents, &document); decodeError != nil {
		return Records{}, fmt.Errorf(storeCorruptErrorTemplateConstant, store.path, decodeError)
	}

	records := emptyRecords()
	for key, rawValue := range document {
		if strings.HasPrefix(key, addressAliasKeyPrefixConstant) {
			var codeHash string
			if decodeError := json.Unmarshal(rawValue, &codeHash); decodeError != nil {
				return Records{}, fmt.Errorf(storeCorruptErrorTemplateConstant, store.path, fmt.Errorf(storeEntryCorruptTemplateConstant, key, decodeError))
			}
			records.Aliases[strings.TrimPrefix(key, addressAliasKeyPrefixConstant)] = codeHash
			continue
		}
		var proof Proof
		if decodeError := json.Unmarshal(rawValue, &proof); decodeError != nil {
			return Records{}, fmt.Errorf(storeCorruptErrorTemplateConstant, store.path, fmt.Errorf(storeEntryCorruptTemplateConstant, key, decodeError))
		}
		records.Proofs[key] = proof
	}
	return records, nil
}

// Save replaces the store atomically: the document is written to a sibling temporary file,
// flushed to disk, then renamed over the target.
func (store *FileStore) Save(saveContext context.Context, records Records) error {
	document := make(map[string]any, len(records.Proofs)+len(records.Aliases))
	for codeHash, proof := range records.Proofs {
		document[codeHash] = proof
	}
	for address, codeHash := range records.Aliases {
		document[addressAliasKeyPrefixConstant+address] = codeHash
	}

	encoded, encodeError := json.MarshalIndent(document, "", "  ")
	if encodeError != nil {
		return fmt.Errorf(storeEncodeErrorTemplateConstant, encodeError)
	}

	directory := filepath.Dir(store.path)
	if mkdirError := os.MkdirAll(directory, storeDirectoryPermissionsConstant); mkdirError != nil {
		return fmt.Errorf(storeDirectoryErrorTemplateConstant, directory, mkdirError)
	}

	temporaryFile, createError := os.CreateTemp(directory, filepath.Base(store.path)+temporaryFilePatternSuffixConstant)
	if createError != nil {
		return fmt.Errorf(storeWriteErrorTemplateConstant, store.path, createError)
	}
	temporaryPath := temporaryFile.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(temporaryPath)
		}
	}()

	if _, writeError := temporaryFile.Write(encoded); writeError != nil {
		_ = temporaryFile.Close()
		return fmt.Errorf(storeWriteErrorTemplateConstant, store.path, writeError)
	}
	if syncError := temporaryFile.Sync(); syncError != nil {
		_ = temporaryFile.Close()
		return fmt.Errorf(storeWriteErrorTemplateConstant, store.path, syncError)
	}
	if closeError := temporaryFile.Close(); closeError != nil {
		return fmt.Errorf(storeWriteErrorTemplateConstant, store.path, closeError)
	}
	if chmodError := os.Chmod(temporaryPath, storeFilePermissionsConstant); chmodError != nil {
		return fmt.Errorf(storeWriteErrorTemplateConstant, store.path, chmodError)
	}
	if renameError := os.Rename(temporaryPath, store.path); renameError != nil {
		return fmt.Errorf(storeWriteErrorTemplateConstant, store.path, renameError)
	}
	committed = true
	return nil
}
