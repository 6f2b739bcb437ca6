// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package version

import (
	"github.com/Masterminds/semver/v3"
	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

// ManifestFile is the file name of the manifest in a versioned install dir.
const ManifestFile = "papp.yaml"

// Manifest represents a papp.yaml file shipped with every deployed build.
type Manifest struct {
	Name         string   `yaml:"name" json:"name" jsonschema:"required,minLength=1,maxLength=64,pattern=^[a-z][a-z0-9_]*$"`
	Title        string   `yaml:"title" json:"title" jsonschema:"required,minLength=1"`
	Version      string   `yaml:"version" json:"version" jsonschema:"required,minLength=1"`
	Runtime      Runtime  `yaml:"runtime" json:"runtime" jsonschema:"required,enum=go,enum=lua,enum=binary"`
	Entry        string   `yaml:"entry,omitempty" json:"entry,omitempty"`
	BuildNumber  string   `yaml:"build-number,omitempty" json:"build-number,omitempty"`
	BuildDate    string   `yaml:"build-date,omitempty" json:"build-date,omitempty"`
	Creator      string   `yaml:"creator,omitempty" json:"creator,omitempty"`
	Website      string   `yaml:"website,omitempty" json:"website,omitempty"`
	Capabilities []string `yaml:"capabilities,omitempty" json:"capabilities,omitempty"`
}

// ParseManifest parses and validates a papp.yaml file.
func ParseManifest(data []byte) (*Manifest, error) {
	if len(data) == 0 {
		return nil, oops.Code("MANIFEST_INVALID").In("version").Errorf("manifest data is empty")
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, oops.Code("MANIFEST_INVALID").In("version").Hint("invalid YAML").Wrap(err)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks manifest constraints.
func (m *Manifest) Validate() error {
	if err := ValidateName(m.Name); err != nil {
		// Flattened so the manifest code is the one reported.
		return oops.Code("MANIFEST_INVALID").In("version").With("papp", m.Name).Errorf("%v", err)
	}
	if m.Title == "" {
		return oops.Code("MANIFEST_INVALID").In("version").With("papp", m.Name).Errorf("title is required")
	}
	if _, err := semver.StrictNewVersion(m.Version); err != nil {
		return oops.Code("MANIFEST_INVALID").In("version").With("papp", m.Name).
			Errorf("version %q must be a semantic version: %v", m.Version, err)
	}

	switch m.Runtime {
	case RuntimeGo, RuntimeLua, RuntimeBinary:
	default:
		return oops.Code("MANIFEST_INVALID").In("version").With("papp", m.Name).
			Errorf("runtime must be 'go', 'lua' or 'binary', got %q", m.Runtime)
	}
	if m.Runtime == RuntimeBinary && m.Entry == "" {
		return oops.Code("MANIFEST_INVALID").In("version").With("papp", m.Name).
			Errorf("entry is required when runtime is binary")
	}
	if err := ValidateEntry(m.Entry); err != nil {
		return oops.Code("MANIFEST_INVALID").In("version").With("papp", m.Name).Errorf("%v", err)
	}
	return nil
}

// JSONSchemaExtend adds the entry path pattern, which cannot be written in a
// struct tag.
func (Manifest) JSONSchemaExtend(s *jsonschema.Schema) {
	if entry, ok := s.Properties.Get("entry"); ok {
		entry.Pattern = EntryPattern
	}
}

// Info converts the manifest into version info rooted at dir.
func (m *Manifest) Info(dir string) *Info {
	return &Info{
		Name:         m.Name,
		Title:        m.Title,
		Version:      m.Version,
		Dir:          dir,
		Runtime:      m.Runtime,
		Entry:        m.Entry,
		BuildNumber:  m.BuildNumber,
		BuildDate:    m.BuildDate,
		Creator:      m.Creator,
		Website:      m.Website,
		Capabilities: append([]string(nil), m.Capabilities...),
	}
}
