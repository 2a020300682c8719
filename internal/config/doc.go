// Package config defines run settings for the sync pipeline and provides
// helpers to load, validate and save them in YAML format.
//
// The Config type holds the index page URL, link marker phrase, target
// directory name, output and digest file paths, and the HTTP timeout.
package config
