// Package server hosts the Fiber HTTP service, the request middleware chain and
// the source registry that maps the first path segment of a request onto a
// configured upstream source. Artifact requests are delegated to an injected
// ArtifactHandler so the cache/upstream orchestration (package proxy) can be
// swapped for fakes in tests. Diagnostics live under the reserved /-/ prefix
// and are registered by package routes.
package server
