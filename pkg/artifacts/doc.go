// Package artifacts acquires versioned archives and unpacks them.
//
// Archives are cached under the wrapup cache directory keyed by kind and
// name. A cached file is trusted only when it is non-empty: downloads
// stream into a ".part" file registered with the cleanup registry and are
// renamed over the final name after the transfer completed and, when a
// checksum is pinned, verified. Anything else is deleted, so a failed
// download never leaves a phantom cache hit behind.
//
// Extraction understands tar (optionally gzip, zstd or xz compressed) and
// zip, discards leading path components on request and refuses entries or
// symlinks that would escape the destination.
package artifacts
