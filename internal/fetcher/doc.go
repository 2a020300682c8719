// Package fetcher downloads the configs archive over HTTP.
//
// Responses are streamed to disk in fixed-size chunks through a byte-count
// progress bar, so the archive is never buffered in memory.
package fetcher
