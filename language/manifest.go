package language

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Manifest lists compiled languages on disk.
type Manifest struct {
	Languages []Entry `toml:"language"`
}

// Entry is one [[language]] table of a manifest.
type Entry struct {
	Name   string `toml:"name"`
	Path   string `toml:"path"`
	SHA256 string `toml:"sha256"`
}

// LoadManifest reads and validates a manifest. Relative paths are resolved
// against the manifest's directory.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, err
	}

	var manifest Manifest
	if _, err := toml.Decode(string(data), &manifest); err != nil {
		return Manifest{}, fmt.Errorf("manifest %s: %w", path, err)
	}
	if err := manifest.Normalize(filepath.Dir(path)); err != nil {
		return Manifest{}, fmt.Errorf("manifest %s: %w", path, err)
	}
	return manifest, nil
}

// Normalize trims and lowercases the entries, resolves relative paths against
// dir and rejects empty, duplicate or malformed entries.
func (m *Manifest) Normalize(dir string) error {
	seen := make(map[string]bool, len(m.Languages))
	for i, entry := range m.Languages {
		ref := fmt.Sprintf("language[%d]", i)
		entry.Name = strings.TrimSpace(strings.ToLower(entry.Name))
		entry.Path = strings.TrimSpace(entry.Path)
		entry.SHA256 = strings.TrimSpace(strings.ToLower(entry.SHA256))

		if entry.Name == "" {
			return fmt.Errorf("%s.name must not be empty", ref)
		}
		if seen[entry.Name] {
			return fmt.Errorf("duplicate language entry %q in manifest", entry.Name)
		}
		seen[entry.Name] = true
		if entry.Path == "" {
			return fmt.Errorf("%s.path must not be empty", ref)
		}
		if !filepath.IsAbs(entry.Path) && dir != "" {
			entry.Path = filepath.Join(dir, entry.Path)
		}
		entry.Path = filepath.Clean(entry.Path)
		if entry.SHA256 != "" {
			if _, err := hex.DecodeString(entry.SHA256); err != nil || len(entry.SHA256) != 64 {
				return fmt.Errorf("%s.sha256 must be 64 hex digits", ref)
			}
		}
		m.Languages[i] = entry
	}
	return nil
}

// Load reads the compiled language named by the entry, verifying the file
// checksum when one is given.
func (e Entry) Load(opts ...Option) (*Language, error) {
	data, err := os.ReadFile(e.Path)
	if err != nil {
		return nil, &LoadError{Source: e.Path, Err: ErrMalformed, Detail: err.Error()}
	}
	if e.SHA256 != "" {
		sum := sha256.Sum256(data)
		if got := hex.EncodeToString(sum[:]); got != e.SHA256 {
			return nil, &LoadError{Source: e.Path, Err: ErrChecksum, Detail: fmt.Sprintf("file sha256 %s, manifest says %s", got, e.SHA256)}
		}
	}
	lang, err := decode(e.Path, bytes.NewReader(data), opts...)
	if err != nil {
		return nil, err
	}
	if lang.Name != e.Name {
		log.Warningf("%s: manifest name %q, compiled name %q", e.Path, e.Name, lang.Name)
	}
	return lang, nil
}
