package templates

import (
	"embed"
	"io/fs"
)

// catalogTemplates embeds the built-in playbook templates, one YAML file per
// template under catalog/.
//
//go:embed catalog
var catalogTemplates embed.FS

// CatalogFS returns the embedded filesystem containing the built-in templates.
func CatalogFS() fs.FS {
	return catalogTemplates
}
