// Package web holds the page templates and static assets compiled into the
// server binary.
package web

import "embed"

// TemplatesFS holds the layout and one file per page.
//
//go:embed templates/*.html
var TemplatesFS embed.FS

//go:embed static/*
var StaticFS embed.FS
