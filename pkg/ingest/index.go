package ingest

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/webcomponents/catalog/pkg/datastore"
	"github.com/webcomponents/catalog/pkg/registry"
	"github.com/webcomponents/catalog/pkg/search"
	"github.com/webcomponents/catalog/pkg/task"
)

// rankEpoch anchors the freshness rank. Ranks are seconds since this instant
// at the library's last update.
var rankEpoch = time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC)

// analyzerPayload covers both analysis schemas: the current analyzerData
// shape and the legacy by-name maps.
type analyzerPayload struct {
	AnalyzerData *struct {
		Elements []struct {
			Tagname   string `json:"tagname"`
			Classname string `json:"classname"`
		} `json:"elements"`
		Metadata struct {
			Polymer struct {
				Behaviors []struct {
					Name string `json:"name"`
				} `json:"behaviors"`
			} `json:"polymer"`
		} `json:"metadata"`
	} `json:"analyzerData"`
	ElementsByTagName map[string]json.RawMessage `json:"elementsByTagName"`
	BehaviorsByName   map[string]json.RawMessage `json:"behaviorsByName"`
}

// UpdateIndexes rebuilds the library's search document from its default
// version. Strictly idempotent: an unchanged document writes nothing, and a
// default-version change during the build reschedules the task.
func (s *Service) UpdateIndexes(ctx context.Context, owner, repo string) error {
	id := datastore.LibraryID(owner, repo)

	var library *datastore.Library
	var defaultVersion string
	var manifest bowerManifest
	var analysisContent *datastore.Content

	err := s.Store.RunInTransaction(ctx, func(tx *datastore.Tx) error {
		var err error
		if defaultVersion, err = tx.DefaultVersionForLibrary(id); err != nil {
			return err
		}
		if defaultVersion == "" {
			return nil
		}
		if library, err = tx.GetLibrary(id); err != nil {
			return err
		}
		bower, err := tx.GetContent(id, defaultVersion, datastore.RoleBower)
		if err != nil {
			return err
		}
		if bower != nil && bower.HasJSON() {
			if err := bower.DecodeJSON(&manifest); err != nil {
				return err
			}
		}
		analysisContent, err = tx.GetContent(id, defaultVersion, datastore.RoleAnalysis)
		return err
	})
	if err != nil {
		return err
	}
	if defaultVersion == "" {
		return &task.PermanentError{Message: "no versions for " + id}
	}
	if library == nil {
		return &task.PermanentError{Message: "library not found: " + id}
	}
	if library.NpmPackage != "" {
		// Shadowed by its registry successor; the npm entity owns the
		// search document now.
		return nil
	}

	doc := buildSearchDocument(id, library, defaultVersion, &manifest, analysisContent)
	if _, err := s.Index.Put(ctx, doc); err != nil {
		return err
	}

	if library.Kind == datastore.KindCollection {
		if err := s.updateCollectionDependencies(ctx, id, defaultVersion, &manifest); err != nil {
			return err
		}
	}

	// The build raced a version ingestion or deletion if the default moved;
	// redo it against the new default.
	var currentDefault string
	err = s.Store.RunInTransaction(ctx, func(tx *datastore.Tx) error {
		var err error
		currentDefault, err = tx.DefaultVersionForLibrary(id)
		return err
	})
	if err != nil {
		return err
	}
	if currentDefault != "" && currentDefault != defaultVersion {
		return task.Retry("default version changed while updating indexes")
	}
	return nil
}

// updateCollectionDependencies maintains the member -> collection edges and
// makes sure every member is (or becomes) catalogued.
func (s *Service) updateCollectionDependencies(ctx context.Context, collectionID, collectionTag string, manifest *bowerManifest) error {
	return s.Store.RunInTransaction(ctx, func(tx *datastore.Tx) error {
		for _, value := range manifest.Dependencies {
			dep := datastore.ParseDependency(value)
			if dep == nil {
				continue
			}
			memberID := datastore.LibraryID(dep.Owner, dep.Repo)
			if err := tx.EnsureCollectionReference(memberID, collectionID, collectionTag, dep.Version); err != nil {
				return err
			}
			if err := tx.EnqueueTask(task.QueueDefault, ensureLibraryURL(dep.Owner, dep.Repo)); err != nil {
				return err
			}
		}
		return nil
	})
}

func buildSearchDocument(id string, library *datastore.Library, version string, manifest *bowerManifest, analysisContent *datastore.Content) *search.Document {
	scope, repo := datastore.SplitLibraryID(id)

	var metadata githubRepo
	_ = json.Unmarshal([]byte(library.Metadata), &metadata)

	var npmDescription string
	var npmKeywords []string
	if library.RegistryMetadata != "" {
		if registryMetadata, err := registry.ParsePackage([]byte(library.RegistryMetadata)); err == nil {
			npmDescription = registryMetadata.Description
			npmKeywords = registryMetadata.Keywords
		}
	}

	var prefixWords []string
	prefixWords = append(prefixWords, search.SplitWords(metadata.Description)...)
	prefixWords = append(prefixWords, search.SplitWords(manifest.Description)...)
	prefixWords = append(prefixWords, search.SplitWords(repo)...)

	elements, behaviors := analysisTerms(analysisContent)

	weighted := lo.RepeatBy(10, func(int) string { return repo })
	if len(elements) > 0 {
		weighted = append(weighted, lo.RepeatBy(5, func(int) string { return strings.Join(elements, " ") })...)
	}
	if len(behaviors) > 0 {
		weighted = append(weighted, lo.RepeatBy(5, func(int) string { return strings.Join(behaviors, " ") })...)
	}

	return &search.Document{
		ID:                id,
		Owner:             scope,
		GithubOwner:       library.GithubOwner,
		Repo:              repo,
		Kind:              library.Kind,
		Version:           version,
		GithubDescription: metadata.Description,
		BowerDescription:  manifest.Description,
		NpmDescription:    npmDescription,
		BowerKeywords:     strings.Join(manifest.Keywords, " "),
		NpmKeywords:       strings.Join(npmKeywords, " "),
		PrefixMatches:     strings.Join(search.Prefixes(prefixWords), " "),
		Element:           strings.Join(elements, " "),
		Behavior:          strings.Join(behaviors, " "),
		WeightedFields:    strings.Join(weighted, " "),
		Rank:              int64(library.Updated.Sub(rankEpoch).Seconds()),
	}
}

// analysisTerms extracts element and behavior names from a ready analysis
// document, tolerating both schema generations.
func analysisTerms(content *datastore.Content) ([]string, []string) {
	if content == nil || content.Status != datastore.StatusReady || !content.HasJSON() {
		return nil, nil
	}
	var payload analyzerPayload
	if err := content.DecodeJSON(&payload); err != nil {
		return nil, nil
	}

	if payload.AnalyzerData != nil {
		var elements []string
		for _, element := range payload.AnalyzerData.Elements {
			if element.Tagname != "" {
				elements = append(elements, element.Tagname)
			} else if element.Classname != "" {
				elements = append(elements, element.Classname)
			}
		}
		var behaviors []string
		for _, behavior := range payload.AnalyzerData.Metadata.Polymer.Behaviors {
			if behavior.Name != "" {
				behaviors = append(behaviors, behavior.Name)
			}
		}
		return elements, behaviors
	}

	elements := lo.Keys(payload.ElementsByTagName)
	behaviors := lo.Keys(payload.BehaviorsByName)
	sort.Strings(elements)
	sort.Strings(behaviors)
	return elements, behaviors
}
