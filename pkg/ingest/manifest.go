package ingest

import (
	"encoding/json"
	"fmt"

	"github.com/samber/lo"
)

// flexString tolerates a bare string, a {"type"|"spdx_id": ...} object, or a
// list of either. Manifests in the wild use all of them for licenses.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var plain string
	if err := json.Unmarshal(data, &plain); err == nil {
		*f = flexString(plain)
		return nil
	}
	var object struct {
		Type   string `json:"type"`
		SpdxID string `json:"spdx_id"`
	}
	if err := json.Unmarshal(data, &object); err == nil {
		if object.SpdxID != "" {
			*f = flexString(object.SpdxID)
		} else {
			*f = flexString(object.Type)
		}
		return nil
	}
	var list []flexString
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("unrecognized value shape: %w", err)
	}
	if len(list) > 0 {
		*f = list[0]
	}
	return nil
}

// githubRepo is the slice of repository metadata the pipeline reads.
type githubRepo struct {
	Name  string `json:"name"`
	Owner struct {
		Login string `json:"login"`
	} `json:"owner"`
	Description   string     `json:"description"`
	DefaultBranch string     `json:"default_branch"`
	License       flexString `json:"license"`
}

// githubTag is one entry of the tags listing.
type githubTag struct {
	Name   string `json:"name"`
	Commit struct {
		Sha string `json:"sha"`
	} `json:"commit"`
}

// githubRef is a git reference lookup result.
type githubRef struct {
	Ref    string `json:"ref"`
	Object struct {
		Sha string `json:"sha"`
	} `json:"object"`
}

// githubFile is a contents API result.
type githubFile struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// bowerManifest is the slice of bower.json the pipeline reads.
type bowerManifest struct {
	Description  string            `json:"description"`
	Keywords     []string          `json:"keywords"`
	License      flexString        `json:"license"`
	Dependencies map[string]string `json:"dependencies"`
	Pages        map[string]string `json:"pages"`
}

func (m *bowerManifest) isCollection() bool {
	return m != nil && lo.Contains(m.Keywords, "element-collection")
}
