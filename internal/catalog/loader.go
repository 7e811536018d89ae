package catalog

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tonylturner/tlvscope/internal/errors"
)

// Parse decodes a catalog document without validating it. Unknown keys
// are rejected so that typos do not silently drop records.
func Parse(data []byte) (*File, error) {
	var file File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse catalog YAML: %w", err)
	}
	return &file, nil
}

// Load reads a catalog from a YAML file and validates it.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapCatalogError(fmt.Errorf("read catalog file: %w", err), path)
	}

	file, err := Parse(data)
	if err != nil {
		return nil, errors.WrapCatalogError(err, path)
	}
	if err := file.Validate(); err != nil {
		return nil, errors.WrapCatalogError(fmt.Errorf("validate catalog: %w", err), path)
	}
	file.Path = path

	// Building the walkers catches layouts the TLV engine rejects.
	for _, p := range file.Protocols {
		if p.TLV != nil {
			if _, err := p.TLV.walkerConfig(p); err != nil {
				return nil, errors.WrapCatalogError(err, path)
			}
		}
	}
	return file, nil
}

// LoadAll loads every catalog in order.
func LoadAll(paths []string) ([]*File, error) {
	files := make([]*File, 0, len(paths))
	for _, path := range paths {
		f, err := Load(path)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}
