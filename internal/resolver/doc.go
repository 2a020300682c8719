// Package resolver scrapes the warehouse index page for the configs
// download link.
//
// The primary rule matches the anchor placed next to a known marker phrase;
// a fallback matches anchors whose href carries the vendor archive name.
package resolver
