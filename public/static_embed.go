// Package public embeds the static assets served under /public/static/.
package public

import (
	"embed"
	"io/fs"
	"path"
)

//go:generate curl -sSfL -o static/htmx.min.js https://unpkg.com/htmx.org@2.0.4/dist/htmx.min.js

//go:embed static/*
var static embed.FS

const (
	// StaticPrefix is the URL path the static directory is mounted under.
	StaticPrefix = "/public/static/"

	htmxAsset = "htmx.min.js"
	htmxCDN   = "https://unpkg.com/htmx.org@2.0.4/dist/htmx.min.js"
)

// StaticFS returns the embedded static directory.
func StaticFS() (fs.FS, error) {
	return fs.Sub(static, "static")
}

// HTMXSrc returns the script URL for htmx. The embedded copy is preferred;
// the pinned CDN build is used only when the asset was not generated.
func HTMXSrc() string {
	return htmxSrc(static)
}

func htmxSrc(fsys fs.FS) string {
	if info, err := fs.Stat(fsys, path.Join("static", htmxAsset)); err == nil && !info.IsDir() && info.Size() > 0 {
		return StaticPrefix + htmxAsset
	}
	return htmxCDN
}
