// Package definition loads the YAML screen definitions, checks them against
// the backend's OpenAPI documents and serves them from a read-only registry.
package definition

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tshop/admin/model"
)

// Loader reads definition files from disk.
type Loader struct{}

// NewLoader returns a Loader.
func NewLoader() *Loader {
	return &Loader{}
}

func isDefinitionFile(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// LoadAll walks each directory in lexical order and parses every .yaml or
// .yml file. Dot files and dot directories are skipped.
func (l *Loader) LoadAll(directories []string) ([]model.DomainDefinition, error) {
	var defs []model.DomainDefinition
	for _, root := range directories {
		walk := func(path string, d fs.DirEntry, err error) error {
			switch {
			case err != nil:
				return err
			case d.IsDir():
				if path != root && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			case !isDefinitionFile(d.Name()):
				return nil
			}
			def, err := l.LoadFile(path)
			if err != nil {
				return err
			}
			defs = append(defs, def)
			return nil
		}
		if err := filepath.WalkDir(root, walk); err != nil {
			return nil, fmt.Errorf("definitions in %s: %w", root, err)
		}
	}
	return defs, nil
}

// LoadFile reads and parses one definition file.
func (l *Loader) LoadFile(path string) (model.DomainDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.DomainDefinition{}, err
	}
	return Parse(path, data)
}

// Parse decodes a definition document. Unknown keys fail the parse. The
// checksum is the hex SHA-256 of data and source is kept as SourceFile.
func Parse(source string, data []byte) (model.DomainDefinition, error) {
	var def model.DomainDefinition
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil && !errors.Is(err, io.EOF) {
		return model.DomainDefinition{}, fmt.Errorf("parse %s: %w", source, err)
	}

	sum := sha256.Sum256(data)
	def.Checksum = hex.EncodeToString(sum[:])
	def.SourceFile = source
	return def, nil
}
