package api

import (
	"errors"
	"net/http"

	"github.com/cratehub/crate/pkg/archive"
	"github.com/cratehub/crate/pkg/httputil"
	"github.com/cratehub/crate/pkg/registry"
	"github.com/cratehub/crate/pkg/storage"
)

// writeError translates domain errors into wire responses. Anything not
// recognized is reported as an internal error without leaking the message.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var mismatch *archive.MismatchError

	switch {
	case errors.Is(err, storage.ErrInvalidIdentity):
		httputil.WriteValidationError(w, "invalid-identity", err.Error())
	case errors.As(err, &mismatch):
		httputil.WriteValidationError(w, "identity-mismatch", err.Error())
	case errors.Is(err, archive.ErrManifestParse):
		httputil.WriteValidationError(w, "failed-to-parse-package-json", err.Error())
	case errors.Is(err, archive.ErrInvalidArchive):
		httputil.WriteValidationError(w, "invalid-archive", err.Error())
	case errors.Is(err, registry.ErrForbidden):
		httputil.WriteForbidden(w, "forbidden", err.Error())
	case errors.Is(err, registry.ErrConflict):
		httputil.WriteConflict(w, "package-exists", err.Error())
	case errors.Is(err, registry.ErrNotFound):
		httputil.WriteNotFound(w, "not-found", err.Error())
	case errors.Is(err, registry.ErrStorageWrite):
		httputil.WriteInternalError(w, "storage-write-failed", "failed to write package to storage")
	case errors.Is(err, registry.ErrStorageUnavailable):
		httputil.WriteInternalError(w, "storage-unavailable", "storage backend unreachable")
	default:
		httputil.WriteInternalError(w, "internal-error", "internal server error")
	}
}
