// Package archive validates uploaded package archives and turns them into
// the write-set the registry persists: the zip itself plus every extracted
// member under its own key.
package archive

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/cratehub/crate/pkg/storage"
)

const (
	manifestEntry = "package.json"
	readmeEntry   = "README.md"
)

var (
	// ErrInvalidArchive marks bytes that do not open as a zip container.
	ErrInvalidArchive = errors.New("invalid archive")
	// ErrManifestParse marks a missing or unparseable package.json entry.
	ErrManifestParse = errors.New("failed to parse package.json")
)

// Manifest is the structured metadata embedded in an uploaded archive.
type Manifest struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// MismatchError reports a manifest field that disagrees with the
// path-supplied identity.
type MismatchError struct {
	Field    string // "name" or "version"
	Manifest string
	Path     string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("manifest %s %q does not match %s %q from the request path", e.Field, e.Manifest, e.Field, e.Path)
}

// Entry is one (key, content) pair of the write-set.
type Entry struct {
	Key  string
	Body []byte
}

// Result is the outcome of ingesting one uploaded archive.
type Result struct {
	Identity storage.Identity
	Manifest Manifest
	Readme   string

	// WriteSet holds every object to persist. The archive entry is always
	// first: the archive key is the canonical "version exists" signal, so
	// a partially failed write must not leave members behind without it.
	WriteSet []Entry
}

// Ingest validates raw archive bytes against the path-supplied identity and
// produces the write-set. The whole archive is buffered in memory; uploads
// are bounded by the server's request size limit.
func Ingest(data []byte, id storage.Identity) (*Result, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}

	manifest, err := readManifest(zr)
	if err != nil {
		return nil, err
	}
	if manifest.Name != id.Name {
		return nil, &MismatchError{Field: "name", Manifest: manifest.Name, Path: id.Name}
	}
	if manifest.Version != id.Version {
		return nil, &MismatchError{Field: "version", Manifest: manifest.Version, Path: id.Version}
	}

	readme, err := readEntry(zr, readmeEntry)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrInvalidArchive, readmeEntry, err)
	}

	writeSet := []Entry{{Key: storage.ArchiveKey(id), Body: data}}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rel, err := memberPath(f.Name)
		if err != nil {
			return nil, err
		}
		body, err := readFile(f)
		if err != nil {
			return nil, fmt.Errorf("%w: reading %s: %v", ErrInvalidArchive, f.Name, err)
		}
		writeSet = append(writeSet, Entry{Key: storage.MemberKey(id, rel), Body: body})
	}

	return &Result{
		Identity: id,
		Manifest: manifest,
		Readme:   string(readme),
		WriteSet: writeSet,
	}, nil
}

func readManifest(zr *zip.Reader) (Manifest, error) {
	raw, err := readEntry(zr, manifestEntry)
	if err != nil {
		return Manifest{}, fmt.Errorf("%w: %v", ErrManifestParse, err)
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return Manifest{}, fmt.Errorf("%w: %v", ErrManifestParse, err)
	}
	return m, nil
}

func readEntry(zr *zip.Reader, name string) ([]byte, error) {
	f, err := zr.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func readFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// memberPath validates an archive entry name as a safe relative key suffix.
// Entry paths become storage keys (and files under the local root), so
// absolute or traversing names are rejected outright.
func memberPath(name string) (string, error) {
	if strings.Contains(name, `\`) {
		return "", fmt.Errorf("%w: member %q uses backslash separators", ErrInvalidArchive, name)
	}
	cleaned := path.Clean(name)
	if cleaned != name || cleaned == "." || strings.HasPrefix(cleaned, "/") || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: unsafe member path %q", ErrInvalidArchive, name)
	}
	return cleaned, nil
}
