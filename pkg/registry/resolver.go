// Package registry holds the registry's core semantics: reconstructing the
// catalog from storage listings and coordinating uploads. The storage key
// listing is the only catalog there is; nothing here keeps separate records.
package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/blang/semver/v4"

	"github.com/cratehub/crate/pkg/storage"
)

// Package is one (owner, name) pair derived from archive keys.
type Package struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

// Resolver reconstructs packages and versions from archive-key listings.
type Resolver struct {
	backend storage.Backend
	timeout time.Duration
}

// NewResolver creates a resolver over backend. timeout bounds each listing
// call; zero means no bound.
func NewResolver(backend storage.Backend, timeout time.Duration) *Resolver {
	return &Resolver{backend: backend, timeout: timeout}
}

// ListPackages returns the distinct packages present in storage, optionally
// narrowed to one owner. Results are sorted by owner then name.
func (r *Resolver) ListPackages(ctx context.Context, owner string) ([]Package, error) {
	prefix := storage.ArchivePrefix()
	if owner != "" {
		prefix = storage.OwnerPrefix(owner)
	}

	objects, err := r.list(ctx, prefix)
	if err != nil {
		return nil, err
	}

	seen := make(map[Package]struct{})
	packages := []Package{}
	for _, obj := range objects {
		id, ok := storage.ParseArchiveKey(obj.Key)
		if !ok {
			continue
		}
		p := Package{Owner: id.Owner, Name: id.Name}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		packages = append(packages, p)
	}

	sort.Slice(packages, func(i, j int) bool {
		if packages[i].Owner != packages[j].Owner {
			return packages[i].Owner < packages[j].Owner
		}
		return packages[i].Name < packages[j].Name
	})
	return packages, nil
}

// ListVersions returns every published version of one package, sorted in
// ascending version order.
func (r *Resolver) ListVersions(ctx context.Context, owner, name string) ([]storage.Identity, error) {
	objects, err := r.list(ctx, storage.PackagePrefix(owner, name))
	if err != nil {
		return nil, err
	}

	seen := make(map[storage.Identity]struct{})
	versions := []storage.Identity{}
	for _, obj := range objects {
		id, ok := storage.ParseArchiveKey(obj.Key)
		if !ok {
			continue
		}
		// The prefix ends with a slash, but a parsed cross-check costs
		// nothing and keys are externally writable on some backends.
		if id.Owner != owner || id.Name != name {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		versions = append(versions, id)
	}

	sort.Slice(versions, func(i, j int) bool {
		return compareVersions(versions[i].Version, versions[j].Version) < 0
	})
	return versions, nil
}

// Latest resolves the best published version of a package: the highest by
// semantic-version precedence. Versions that do not parse as semver rank
// below all parseable ones and order lexically among themselves.
func (r *Resolver) Latest(ctx context.Context, owner, name string) (storage.Identity, error) {
	versions, err := r.ListVersions(ctx, owner, name)
	if err != nil {
		return storage.Identity{}, err
	}
	if len(versions) == 0 {
		return storage.Identity{}, fmt.Errorf("%w: %s/%s", ErrNotFound, owner, name)
	}
	return versions[len(versions)-1], nil
}

func (r *Resolver) list(ctx context.Context, prefix string) ([]storage.Object, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	objects, err := r.backend.ListPrefix(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return objects, nil
}

// compareVersions orders version strings by semver precedence, ranking
// non-semver strings below every parseable version.
func compareVersions(a, b string) int {
	va, errA := semver.ParseTolerant(a)
	vb, errB := semver.ParseTolerant(b)
	switch {
	case errA == nil && errB == nil:
		return va.Compare(vb)
	case errA == nil:
		return 1
	case errB == nil:
		return -1
	default:
		return strings.Compare(a, b)
	}
}
