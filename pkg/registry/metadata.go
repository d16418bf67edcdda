package registry

import (
	"encoding/json"
	"fmt"
)

// License tolerates both shapes the registry has used over the years: a bare
// SPDX string and the legacy {"type": ..., "url": ...} object.
type License string

func (l *License) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*l = License(name)
		return nil
	}
	var legacy struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &legacy); err != nil {
		return fmt.Errorf("unrecognized license shape: %w", err)
	}
	*l = License(legacy.Type)
	return nil
}

// Repository tolerates both the object form {"url": ...} and the shorthand
// bare string.
type Repository struct {
	URL string `json:"url"`
}

func (r *Repository) UnmarshalJSON(data []byte) error {
	var shorthand string
	if err := json.Unmarshal(data, &shorthand); err == nil {
		r.URL = shorthand
		return nil
	}
	type object Repository
	var full object
	if err := json.Unmarshal(data, &full); err != nil {
		return fmt.Errorf("unrecognized repository shape: %w", err)
	}
	r.URL = full.URL
	return nil
}

// VersionInfo is the per-version slice of package metadata the catalog needs.
type VersionInfo struct {
	GitHead string `json:"gitHead"`
	Dist    struct {
		Shasum string `json:"shasum"`
	} `json:"dist"`
}

// PackageMetadata is the subset of a registry document the pipeline reads.
type PackageMetadata struct {
	Rev            string                 `json:"_rev"`
	Name           string                 `json:"name"`
	Description    string                 `json:"description"`
	Keywords       []string               `json:"keywords"`
	License        License                `json:"license"`
	ReadmeFilename string                 `json:"readmeFilename"`
	Versions       map[string]VersionInfo `json:"versions"`
	Repository     Repository             `json:"repository"`
}

// ParsePackage decodes a registry document.
func ParsePackage(body []byte) (*PackageMetadata, error) {
	var metadata PackageMetadata
	if err := json.Unmarshal(body, &metadata); err != nil {
		return nil, fmt.Errorf("failed to parse package metadata: %w", err)
	}
	return &metadata, nil
}
