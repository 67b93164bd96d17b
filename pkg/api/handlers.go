package api

import (
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/cratehub/crate/pkg/auth"
	"github.com/cratehub/crate/pkg/httputil"
	"github.com/cratehub/crate/pkg/observability"
	"github.com/cratehub/crate/pkg/storage"
)

// healthKey is probed on every health check; it never exists, the point is
// that the backend answers at all.
const healthKey = ".crate-health"

// uploadResponse is the body returned after a successful upload.
type uploadResponse struct {
	Status string `json:"status"`
	URL    string `json:"url"`
}

// upload handles PUT/POST /v1/{owner}/{name}/{version}/package.zip
func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	vars := mux.Vars(r)
	id := storage.Identity{
		Owner:   vars["owner"],
		Name:    vars["name"],
		Version: vars["version"],
	}

	username, ok := auth.Username(r.Context())
	if !ok {
		// BasicAuth always sets this; reaching here means a wiring bug.
		httputil.WriteUnauthorized(w, "unauthorized", "authentication required")
		return
	}

	body := r.Body
	if s.maxUploadSize > 0 {
		body = http.MaxBytesReader(w, r.Body, s.maxUploadSize)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		s.recordUpload("rejected", start, 0)
		if _, tooLarge := err.(*http.MaxBytesError); tooLarge {
			httputil.WriteError(w, http.StatusRequestEntityTooLarge, "upload-too-large", "archive exceeds the maximum upload size")
			return
		}
		httputil.WriteValidationError(w, "invalid-request", "failed to read request body")
		return
	}

	url, err := s.coordinator.Submit(r.Context(), id, data, username, s.baseURL(r))
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).WithField("package", id.String()).Warn("upload rejected")
		s.recordUpload("rejected", start, len(data))
		s.writeError(w, err)
		return
	}

	s.recordUpload("accepted", start, len(data))
	httputil.WriteJSON(w, http.StatusOK, uploadResponse{
		Status: "success",
		URL:    url,
	})
}

func (s *Server) recordUpload(result string, start time.Time, size int) {
	if s.metrics == nil {
		return
	}
	s.metrics.UploadsTotal.WithLabelValues(result).Inc()
	s.metrics.UploadDuration.Observe(time.Since(start).Seconds())
	if size > 0 {
		s.metrics.UploadSizeBytes.Observe(float64(size))
	}
}

// listAllPackages handles GET /v1/_packages
func (s *Server) listAllPackages(w http.ResponseWriter, r *http.Request) {
	packages, err := s.resolver.ListPackages(r.Context(), "")
	if err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, packages)
}

// listPackages handles GET /v1/{owner}/_packages
func (s *Server) listPackages(w http.ResponseWriter, r *http.Request) {
	packages, err := s.resolver.ListPackages(r.Context(), mux.Vars(r)["owner"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, packages)
}

// listVersions handles GET /v1/{owner}/{name}/_versions
func (s *Server) listVersions(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	versions, err := s.resolver.ListVersions(r.Context(), vars["owner"], vars["name"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, versions)
}

// downloadLatest handles GET /v1/{owner}/{name}/package.zip by resolving
// the best published version.
func (s *Server) downloadLatest(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := s.resolver.Latest(r.Context(), vars["owner"], vars["name"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	http.Redirect(w, r, s.backend.URLForKey(storage.ArchiveKey(id)), http.StatusFound)
}

// downloadVersion handles GET /v1/{owner}/{name}/{version}/package.zip
func (s *Server) downloadVersion(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := storage.Identity{Owner: vars["owner"], Name: vars["name"], Version: vars["version"]}
	if err := id.Validate(); err != nil {
		httputil.WriteValidationError(w, "invalid-identity", err.Error())
		return
	}
	http.Redirect(w, r, s.backend.URLForKey(storage.ArchiveKey(id)), http.StatusFound)
}

// downloadMember handles GET /v1/{owner}/{name}/{version}/package.zip/{member}.
// The redirect is issued without an existence check; a missing member
// surfaces as a 404 from the storage endpoint itself.
func (s *Server) downloadMember(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := storage.Identity{Owner: vars["owner"], Name: vars["name"], Version: vars["version"]}
	if err := id.Validate(); err != nil {
		httputil.WriteValidationError(w, "invalid-identity", err.Error())
		return
	}
	member := vars["member"]
	if member == "" {
		httputil.WriteValidationError(w, "invalid-request", "missing member path")
		return
	}
	http.Redirect(w, r, s.backend.URLForKey(storage.MemberKey(id, member)), http.StatusFound)
}

// healthz handles GET /healthz by probing the storage backend.
func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.backend.Exists(r.Context(), healthKey); err != nil {
		s.logger.WithError(err).Warn("health check failed")
		httputil.WriteError(w, http.StatusServiceUnavailable, "storage-unavailable", "storage backend unreachable")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
