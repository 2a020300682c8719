// Package sync drives the configs synchronization pipeline.
//
// One run resolves the download link on the warehouse index page, downloads
// the archive to a temporary directory, digests it against the record of the
// previous run, extracts it safely, locates the target directory, repackages
// it into the output archive, and persists the new digest. Temporary
// artifacts are removed on every exit path.
package sync
