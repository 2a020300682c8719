// Package archive handles the ZIP legwork of the pipeline: safe extraction
// of the downloaded configs package, locating the target directory in the
// extracted tree, and repackaging that directory into the output archive.
//
// Extraction rejects entries that would resolve outside the destination
// directory; this is a hard requirement, not opportunistic hardening.
package archive
