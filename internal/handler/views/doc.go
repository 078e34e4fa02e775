// Package views holds the templ components for the HTML pages. The
// *_templ.go files are generated from the .templ sources.
package views

//go:generate templ generate
