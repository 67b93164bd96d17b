package registry

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cratehub/crate/pkg/archive"
	"github.com/cratehub/crate/pkg/observability"
	"github.com/cratehub/crate/pkg/storage"
)

// EventPackageUploaded is the event name carried by upload notifications.
const EventPackageUploaded = "package-uploaded"

// memberUploadConcurrency bounds the parallel member-upload fan-out.
const memberUploadConcurrency = 8

// UploadEvent is the notification payload emitted after a successful upload.
type UploadEvent struct {
	Event    string           `json:"event"`
	URL      string           `json:"url"`
	Manifest archive.Manifest `json:"manifest"`
	Readme   string           `json:"readme,omitempty"`
	Owner    string           `json:"owner"`
}

// Notifier dispatches upload events to an external sink. Delivery is
// fire-and-forget; failures are logged by the coordinator, never returned
// to the uploader.
type Notifier interface {
	Notify(ctx context.Context, event UploadEvent) error
}

// Coordinator orchestrates one upload: ownership check, ingest, conflict
// check, dual-write, notification.
type Coordinator struct {
	backend  storage.Backend
	notifier Notifier
	logger   *observability.Logger
	timeout  time.Duration
}

// NewCoordinator creates an upload coordinator. notifier may be nil when no
// webhook sink is configured; timeout bounds each storage operation.
func NewCoordinator(backend storage.Backend, notifier Notifier, logger *observability.Logger, timeout time.Duration) *Coordinator {
	return &Coordinator{
		backend:  backend,
		notifier: notifier,
		logger:   logger,
		timeout:  timeout,
	}
}

// Submit runs the upload protocol for one archive and returns the canonical
// download URL (served through the registry's redirect endpoint, rooted at
// baseURL).
//
// Duplicate prevention is a best-effort existence check: two concurrent
// submits for the same identity can both pass it and both write, with the
// last archive write winning. A conditional-write primitive on the backend
// is the upgrade path if stricter guarantees are ever needed. Writes that
// fail mid-set are not rolled back; the archive key is written first so a
// partial failure never leaves members visible without it.
func (c *Coordinator) Submit(ctx context.Context, id storage.Identity, archiveBytes []byte, authenticatedOwner, baseURL string) (string, error) {
	if authenticatedOwner != id.Owner {
		return "", fmt.Errorf("%w: %q cannot publish as %q", ErrForbidden, authenticatedOwner, id.Owner)
	}

	result, err := archive.Ingest(archiveBytes, id)
	if err != nil {
		return "", err
	}

	archiveKey := result.WriteSet[0].Key
	exists, err := c.exists(ctx, archiveKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if exists {
		return "", fmt.Errorf("%w: %s", ErrConflict, id)
	}

	// Archive first, then members in parallel.
	if err := c.upload(ctx, result.WriteSet[0]); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrStorageWrite, archiveKey, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(memberUploadConcurrency)
	for _, entry := range result.WriteSet[1:] {
		g.Go(func() error {
			if err := c.upload(gctx, entry); err != nil {
				return fmt.Errorf("%w: %s: %v", ErrStorageWrite, entry.Key, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// Already-written entries stay in place; there is no compensation.
		return "", err
	}

	url := fmt.Sprintf("%s/v1/%s/%s/%s/%s", baseURL, id.Owner, id.Name, id.Version, storage.ArchiveFileName)

	if c.notifier != nil {
		event := UploadEvent{
			Event:    EventPackageUploaded,
			URL:      url,
			Manifest: result.Manifest,
			Readme:   result.Readme,
			Owner:    id.Owner,
		}
		go c.notify(context.WithoutCancel(ctx), event)
	}

	c.logger.WithField("package", id.String()).Info("package uploaded")
	return url, nil
}

func (c *Coordinator) notify(ctx context.Context, event UploadEvent) {
	if err := c.notifier.Notify(ctx, event); err != nil {
		c.logger.WithError(err).WithField("url", event.URL).Warn("webhook notification failed")
	}
}

func (c *Coordinator) exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := c.opCtx(ctx)
	defer cancel()
	return c.backend.Exists(ctx, key)
}

func (c *Coordinator) upload(ctx context.Context, entry archive.Entry) error {
	ctx, cancel := c.opCtx(ctx)
	defer cancel()
	return c.backend.Upload(ctx, entry.Key, bytes.NewReader(entry.Body))
}

func (c *Coordinator) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}
