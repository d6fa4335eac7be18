// Package static embeds the NErase page: index.html plus its stylesheet and
// script.
package static

import (
	"embed"
	"io/fs"
)

//go:embed index.html css js
var StaticFS embed.FS

// GetFS returns the embedded filesystem.
func GetFS() fs.FS {
	return StaticFS
}

// ReadFile reads a file from the embedded filesystem.
func ReadFile(name string) ([]byte, error) {
	return StaticFS.ReadFile(name)
}
