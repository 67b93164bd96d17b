package registry

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cratehub/crate/pkg/archive"
	"github.com/cratehub/crate/pkg/observability"
	"github.com/cratehub/crate/pkg/storage"
)

// fakeBackend is an in-memory storage.Backend recording write traffic.
type fakeBackend struct {
	mu        sync.Mutex
	objects   map[string][]byte
	uploads   int
	existsErr error
	uploadErr error
	failKey   string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{objects: map[string][]byte{}}
}

func (f *fakeBackend) Exists(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.existsErr != nil {
		return false, f.existsErr
	}
	_, ok := f.objects[key]
	return ok, nil
}

func (f *fakeBackend) Upload(ctx context.Context, key string, content io.Reader) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil && (f.failKey == "" || f.failKey == key) {
		return f.uploadErr
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return err
	}
	f.objects[key] = data
	f.uploads++
	return nil
}

func (f *fakeBackend) ListPrefix(ctx context.Context, prefix string) ([]storage.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var objects []storage.Object
	for key := range f.objects {
		if strings.HasPrefix(key, prefix) {
			objects = append(objects, storage.Object{Key: key})
		}
	}
	return objects, nil
}

func (f *fakeBackend) URLForKey(key string) string {
	return "https://cdn.test/" + key
}

func (f *fakeBackend) uploadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploads
}

func (f *fakeBackend) put(keys ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		f.objects[key] = []byte("x")
	}
}

type fakeNotifier struct {
	events chan UploadEvent
	err    error
}

func (n *fakeNotifier) Notify(ctx context.Context, event UploadEvent) error {
	n.events <- event
	return n.err
}

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

func buildArchive(t *testing.T, name, version string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for entry, content := range map[string]string{
		"package.json": `{"name":"` + name + `","version":"` + version + `"}`,
		"README.md":    "# " + name,
		"src/lib.go":   "package " + name,
	} {
		w, err := zw.Create(entry)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestResolver_ListPackages(t *testing.T) {
	backend := newFakeBackend()
	backend.put(
		"zipped/alice/lib/1.0.0/package.zip",
		"zipped/alice/lib/2.0.0/package.zip",
		"zipped/alice/tool/1.0.0/package.zip",
		"zipped/bob/lib/1.0.0/package.zip",
		"extracted/alice/lib/1.0.0/README.md",
		"zipped/alice/stray",
	)
	r := NewResolver(backend, time.Second)

	t.Run("all owners, deduplicated and sorted", func(t *testing.T) {
		packages, err := r.ListPackages(context.Background(), "")
		require.NoError(t, err)
		assert.Equal(t, []Package{
			{Owner: "alice", Name: "lib"},
			{Owner: "alice", Name: "tool"},
			{Owner: "bob", Name: "lib"},
		}, packages)
	})

	t.Run("owner filter", func(t *testing.T) {
		packages, err := r.ListPackages(context.Background(), "bob")
		require.NoError(t, err)
		assert.Equal(t, []Package{{Owner: "bob", Name: "lib"}}, packages)
	})

	t.Run("unknown owner", func(t *testing.T) {
		packages, err := r.ListPackages(context.Background(), "nobody")
		require.NoError(t, err)
		assert.Empty(t, packages)
	})
}

func TestResolver_ListVersions(t *testing.T) {
	backend := newFakeBackend()
	backend.put(
		"zipped/alice/foo/1.0.0/package.zip",
		"zipped/alice/foo/1.2.0/package.zip",
		"zipped/alice/foobar/9.9.9/package.zip",
	)
	r := NewResolver(backend, time.Second)

	versions, err := r.ListVersions(context.Background(), "alice", "foo")
	require.NoError(t, err)
	assert.Equal(t, []storage.Identity{
		{Owner: "alice", Name: "foo", Version: "1.0.0"},
		{Owner: "alice", Name: "foo", Version: "1.2.0"},
	}, versions, "foobar versions must not leak into foo")
}

func TestResolver_Latest(t *testing.T) {
	t.Run("semver precedence beats listing order", func(t *testing.T) {
		backend := newFakeBackend()
		backend.put(
			"zipped/alice/lib/1.10.0/package.zip",
			"zipped/alice/lib/1.2.0/package.zip",
			"zipped/alice/lib/1.9.1/package.zip",
		)
		r := NewResolver(backend, time.Second)

		latest, err := r.Latest(context.Background(), "alice", "lib")
		require.NoError(t, err)
		assert.Equal(t, "1.10.0", latest.Version)
	})

	t.Run("prereleases rank below releases", func(t *testing.T) {
		backend := newFakeBackend()
		backend.put(
			"zipped/alice/lib/2.0.0-rc.1/package.zip",
			"zipped/alice/lib/1.9.0/package.zip",
			"zipped/alice/lib/2.0.0/package.zip",
		)
		r := NewResolver(backend, time.Second)

		latest, err := r.Latest(context.Background(), "alice", "lib")
		require.NoError(t, err)
		assert.Equal(t, "2.0.0", latest.Version)
	})

	t.Run("non-semver ranks below semver", func(t *testing.T) {
		backend := newFakeBackend()
		backend.put(
			"zipped/alice/lib/nightly/package.zip",
			"zipped/alice/lib/0.0.1/package.zip",
		)
		r := NewResolver(backend, time.Second)

		latest, err := r.Latest(context.Background(), "alice", "lib")
		require.NoError(t, err)
		assert.Equal(t, "0.0.1", latest.Version)
	})

	t.Run("no versions", func(t *testing.T) {
		r := NewResolver(newFakeBackend(), time.Second)
		_, err := r.Latest(context.Background(), "alice", "ghost")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestCoordinator_Submit(t *testing.T) {
	id := storage.Identity{Owner: "alice", Name: "lib", Version: "1.0.0"}

	t.Run("success writes archive and members", func(t *testing.T) {
		backend := newFakeBackend()
		notifier := &fakeNotifier{events: make(chan UploadEvent, 1)}
		c := NewCoordinator(backend, notifier, testLogger(), time.Second)

		url, err := c.Submit(context.Background(), id, buildArchive(t, "lib", "1.0.0"), "alice", "http://registry.test")
		require.NoError(t, err)
		assert.Equal(t, "http://registry.test/v1/alice/lib/1.0.0/package.zip", url)

		for _, key := range []string{
			"zipped/alice/lib/1.0.0/package.zip",
			"extracted/alice/lib/1.0.0/package.json",
			"extracted/alice/lib/1.0.0/README.md",
			"extracted/alice/lib/1.0.0/src/lib.go",
		} {
			exists, err := backend.Exists(context.Background(), key)
			require.NoError(t, err)
			assert.True(t, exists, "missing %s", key)
		}

		select {
		case event := <-notifier.events:
			assert.Equal(t, EventPackageUploaded, event.Event)
			assert.Equal(t, "alice", event.Owner)
			assert.Equal(t, "lib", event.Manifest.Name)
			assert.Equal(t, "# lib", event.Readme)
			assert.Contains(t, event.URL, "alice/lib/1.0.0")
		case <-time.After(2 * time.Second):
			t.Fatal("notification never fired")
		}
	})

	t.Run("conflict rejects without writes", func(t *testing.T) {
		backend := newFakeBackend()
		c := NewCoordinator(backend, nil, testLogger(), time.Second)

		_, err := c.Submit(context.Background(), id, buildArchive(t, "lib", "1.0.0"), "alice", "http://registry.test")
		require.NoError(t, err)
		before := backend.uploadCount()

		_, err = c.Submit(context.Background(), id, buildArchive(t, "lib", "1.0.0"), "alice", "http://registry.test")
		assert.ErrorIs(t, err, ErrConflict)
		assert.Equal(t, before, backend.uploadCount(), "conflicting submit must not write")
	})

	t.Run("forbidden for foreign owner", func(t *testing.T) {
		backend := newFakeBackend()
		c := NewCoordinator(backend, nil, testLogger(), time.Second)

		_, err := c.Submit(context.Background(), id, buildArchive(t, "lib", "1.0.0"), "mallory", "http://registry.test")
		assert.ErrorIs(t, err, ErrForbidden)
		assert.Zero(t, backend.uploadCount())
	})

	t.Run("identity mismatch performs no writes", func(t *testing.T) {
		backend := newFakeBackend()
		c := NewCoordinator(backend, nil, testLogger(), time.Second)

		_, err := c.Submit(context.Background(), id, buildArchive(t, "otherlib", "1.0.0"), "alice", "http://registry.test")
		var mismatch *archive.MismatchError
		assert.ErrorAs(t, err, &mismatch)
		assert.Zero(t, backend.uploadCount())
	})

	t.Run("invalid archive performs no writes", func(t *testing.T) {
		backend := newFakeBackend()
		c := NewCoordinator(backend, nil, testLogger(), time.Second)

		_, err := c.Submit(context.Background(), id, []byte("not a zip"), "alice", "http://registry.test")
		assert.ErrorIs(t, err, archive.ErrInvalidArchive)
		assert.Zero(t, backend.uploadCount())
	})

	t.Run("existence check failure is unavailable, not conflict", func(t *testing.T) {
		backend := newFakeBackend()
		backend.existsErr = errors.New("connection refused")
		c := NewCoordinator(backend, nil, testLogger(), time.Second)

		_, err := c.Submit(context.Background(), id, buildArchive(t, "lib", "1.0.0"), "alice", "http://registry.test")
		assert.ErrorIs(t, err, ErrStorageUnavailable)
		assert.Zero(t, backend.uploadCount())
	})

	t.Run("write failure surfaces as storage write error", func(t *testing.T) {
		backend := newFakeBackend()
		backend.uploadErr = errors.New("disk full")
		c := NewCoordinator(backend, nil, testLogger(), time.Second)

		_, err := c.Submit(context.Background(), id, buildArchive(t, "lib", "1.0.0"), "alice", "http://registry.test")
		assert.ErrorIs(t, err, ErrStorageWrite)
	})

	t.Run("member write failure leaves archive in place", func(t *testing.T) {
		backend := newFakeBackend()
		backend.uploadErr = errors.New("disk full")
		backend.failKey = "extracted/alice/lib/1.0.0/src/lib.go"
		c := NewCoordinator(backend, nil, testLogger(), time.Second)

		_, err := c.Submit(context.Background(), id, buildArchive(t, "lib", "1.0.0"), "alice", "http://registry.test")
		assert.ErrorIs(t, err, ErrStorageWrite)

		exists, err := backend.Exists(context.Background(), "zipped/alice/lib/1.0.0/package.zip")
		require.NoError(t, err)
		assert.True(t, exists, "archive write precedes member writes")
	})

	t.Run("notifier failure does not fail the upload", func(t *testing.T) {
		backend := newFakeBackend()
		notifier := &fakeNotifier{events: make(chan UploadEvent, 1), err: errors.New("sink down")}
		c := NewCoordinator(backend, notifier, testLogger(), time.Second)

		url, err := c.Submit(context.Background(), id, buildArchive(t, "lib", "1.0.0"), "alice", "http://registry.test")
		require.NoError(t, err)
		assert.NotEmpty(t, url)
		<-notifier.events
	})
}
