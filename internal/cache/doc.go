// Package cache implements the dual-tier artifact cache. Content produced by an
// expensive (and possibly failing) producer is memoized under an
// (identifier, name) key in a byte-bounded memory tier and a byte-bounded disk
// tier laid out as <root>/<identifier>/<name>. Both tiers evict by least recent
// use. Concurrent requests for the same resolved path share one producer
// invocation through the Coalescer, and the Cacher facade ties the pieces
// together so callers only ever see the content or a typed error.
//
// The disk tier rebuilds its index at startup by scanning the root directory;
// writes wait for that scan before touching the index.
package cache
