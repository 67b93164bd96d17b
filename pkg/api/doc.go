// Package api exposes the registry over HTTP: authenticated uploads,
// catalog listings and download redirects, all under /v1.
package api
