// Package tokenfile caches backend access tokens on disk so that short-lived
// CLI invocations reuse a still-valid client-credentials token instead of
// requesting a new one every run.
package tokenfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
)

// FilePerms restricts cache files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the cache directory.
const DirPerms = 0o700

// File is the on-disk format. ClientID and TokenURL record which credentials
// produced the token; a cache written for other credentials is ignored.
type File struct {
	Token    *oauth2.Token `json:"token"`
	ClientID string        `json:"client_id"`
	TokenURL string        `json:"token_url"`
}

// Matches reports whether the cached token was issued for clientID at
// tokenURL.
func (f *File) Matches(clientID, tokenURL string) bool {
	return f != nil && f.Token != nil && f.ClientID == clientID && f.TokenURL == tokenURL
}

// Load reads a cache file. It returns (nil, nil) if the file does not exist.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil //nolint:nilnil // sentinel for "not cached"
	}

	if err != nil {
		return nil, fmt.Errorf("tokenfile: reading %s: %w", path, err)
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("tokenfile: decoding %s: %w", path, err)
	}

	if f.Token == nil {
		return nil, fmt.Errorf("tokenfile: %s missing token field", path)
	}

	return &f, nil
}

// Save writes f atomically with 0600 permissions. Token values are never
// logged.
func Save(path string, f *File) error {
	if f == nil || f.Token == nil {
		return errors.New("tokenfile: nothing to save")
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("tokenfile: encoding: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, DirPerms); err != nil {
		return fmt.Errorf("tokenfile: creating directory %s: %w", dir, err)
	}

	// Temp file in the same directory so the rename stays on one filesystem.
	tmp, err := os.CreateTemp(dir, ".token-*.tmp")
	if err != nil {
		return fmt.Errorf("tokenfile: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	if err := writeSynced(tmp, data); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("tokenfile: renaming: %w", err)
	}

	return nil
}

func writeSynced(tmp *os.File, data []byte) error {
	if err := tmp.Chmod(FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: writing: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("tokenfile: closing: %w", err)
	}

	return nil
}

// Remove deletes the cache file. A missing file is not an error.
func Remove(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("tokenfile: removing %s: %w", path, err)
	}

	return nil
}
