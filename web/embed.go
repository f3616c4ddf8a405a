package web

import "embed"

// FS contains all embedded web assets (HTML, CSS, JS).
//
//go:embed *.html *.css *.js *.svg
var FS embed.FS

// Logo is the splash screen artwork.
//
//go:embed logo.svg
var Logo []byte
