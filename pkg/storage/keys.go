package storage

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const (
	archiveRoot = "zipped"
	memberRoot  = "extracted"

	// ArchiveFileName is the terminal segment of every archive key.
	ArchiveFileName = "package.zip"
)

// ErrInvalidIdentity marks identity components that cannot be used as key
// path segments.
var ErrInvalidIdentity = errors.New("invalid package identity")

// Identity addresses one package release. Components are used verbatim as
// key path segments, so none of them may contain a slash.
type Identity struct {
	Owner   string `json:"owner"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

func (id Identity) String() string {
	return id.Owner + "/" + id.Name + "/" + id.Version
}

// Validate rejects identities that would not survive the key round-trip.
func (id Identity) Validate() error {
	for _, c := range []struct{ field, value string }{
		{"owner", id.Owner},
		{"name", id.Name},
		{"version", id.Version},
	} {
		if c.value == "" {
			return fmt.Errorf("%w: %s is empty", ErrInvalidIdentity, c.field)
		}
		if strings.Contains(c.value, "/") {
			return fmt.Errorf("%w: %s %q contains '/'", ErrInvalidIdentity, c.field, c.value)
		}
	}
	return nil
}

// ArchiveKey returns the canonical key for the uploaded zip of id. Its
// existence is the single source of truth for "does this version exist".
func ArchiveKey(id Identity) string {
	return archiveRoot + "/" + id.Owner + "/" + id.Name + "/" + id.Version + "/" + ArchiveFileName
}

// MemberKeyPrefix returns the shared prefix of every extracted-member key
// for id, including the trailing slash.
func MemberKeyPrefix(id Identity) string {
	return memberRoot + "/" + id.Owner + "/" + id.Name + "/" + id.Version + "/"
}

// MemberKey returns the key for one file extracted from the archive of id.
// relPath is the entry's slash-separated path inside the archive.
func MemberKey(id Identity, relPath string) string {
	return MemberKeyPrefix(id) + relPath
}

// ArchivePrefix is the listing prefix covering every archive key.
func ArchivePrefix() string {
	return archiveRoot + "/"
}

// OwnerPrefix narrows an archive listing to one owner.
func OwnerPrefix(owner string) string {
	return archiveRoot + "/" + owner + "/"
}

// PackagePrefix narrows an archive listing to one package. The trailing
// slash keeps "foo" from matching "foobar".
func PackagePrefix(owner, name string) string {
	return archiveRoot + "/" + owner + "/" + name + "/"
}

// ParseArchiveKey recovers the identity addressed by an archive key. It
// returns false for any key that is not exactly an archive key.
func ParseArchiveKey(key string) (Identity, bool) {
	parts := strings.Split(key, "/")
	if len(parts) != 5 || parts[0] != archiveRoot || parts[4] != ArchiveFileName {
		return Identity{}, false
	}
	id := Identity{Owner: parts[1], Name: parts[2], Version: parts[3]}
	if id.Owner == "" || id.Name == "" || id.Version == "" {
		return Identity{}, false
	}
	return id, true
}

// escapeKey percent-encodes each key segment while preserving the slashes
// between them.
func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
