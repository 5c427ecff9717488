package ingest

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Manifest is a YAML batch description: a list of documents with their
// component identities. Relative document paths are resolved against
// the manifest's own directory.
//
//	datasheets:
//	  - path: sensors/bme280.md
//	    component:
//	      mpn: BME280
//	      manufacturer: Bosch
//	      category: sensor
type Manifest struct {
	Datasheets []BatchItem `yaml:"datasheets"`
}

// LoadManifest reads and parses a batch manifest from disk.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}

	base := filepath.Dir(path)
	for i, item := range manifest.Datasheets {
		if item.Path == "" {
			return nil, fmt.Errorf("manifest %s: datasheet %d has no path", path, i)
		}
		if !filepath.IsAbs(item.Path) {
			manifest.Datasheets[i].Path = filepath.Join(base, item.Path)
		}
	}
	return &manifest, nil
}
