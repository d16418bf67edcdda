package ingest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/webcomponents/catalog/pkg/datastore"
	"github.com/webcomponents/catalog/pkg/registry"
	"github.com/webcomponents/catalog/pkg/task"
)

// versionTask carries the state of one version ingestion.
type versionTask struct {
	svc *Service

	owner string
	repo  string
	tag   string
	id    string

	library  *datastore.Library
	version  *datastore.Version
	contents []*datastore.Content
}

func (t *versionTask) fail(code task.ErrorCode, format string, args ...interface{}) error {
	err := task.Permanent(code, format, args...)
	t.version.Status = datastore.StatusError
	t.version.Error = err.JSON()
	return err
}

// commit writes the contents and the version, then refreshes the version
// cache; a default-version change schedules an index rebuild in the same
// transaction.
func (t *versionTask) commit(ctx context.Context) error {
	return t.svc.Store.RunInTransaction(ctx, func(tx *datastore.Tx) error {
		for _, content := range t.contents {
			if err := tx.PutContent(content); err != nil {
				return err
			}
		}
		if err := tx.PutVersion(t.version); err != nil {
			return err
		}
		changed, err := tx.RefreshVersionCache(t.id)
		if err != nil {
			return err
		}
		if changed {
			return tx.EnqueueTask(task.QueueDefault, updateIndexesURL(t.id))
		}
		return nil
	})
}

// IngestVersion fetches a version's readme, manifest and documentation pages
// and marks the version ready. The version becomes observable to readers
// only through the version cache refresh at commit.
func (s *Service) IngestVersion(ctx context.Context, owner, repo, tag string) error {
	t := &versionTask{
		svc:   s,
		owner: strings.ToLower(owner),
		repo:  strings.ToLower(repo),
		tag:   tag,
		id:    datastore.LibraryID(owner, repo),
	}

	err := s.Store.RunInTransaction(ctx, func(tx *datastore.Tx) error {
		var err error
		if t.library, err = tx.GetLibrary(t.id); err != nil {
			return err
		}
		t.version, err = tx.GetVersion(t.id, tag)
		return err
	})
	if err != nil {
		return err
	}
	if t.version == nil {
		return &task.PermanentError{Message: "version entity does not exist: " + t.id + "/" + tag}
	}

	err = t.run(ctx)
	if !shouldCommit(err) {
		return err
	}
	return commitErr(t.commit(ctx), err)
}

func (t *versionTask) run(ctx context.Context) error {
	isNpm := strings.HasPrefix(t.owner, "@")

	if err := t.updateReadme(ctx, isNpm); err != nil {
		return err
	}
	if !isNpm {
		manifest, err := t.updateBower(ctx)
		if err != nil {
			return err
		}
		if err := t.updatePages(ctx, manifest); err != nil {
			return err
		}
	}
	t.version.Status = datastore.StatusReady
	t.version.Error = ""
	return nil
}

// updateReadme stores the raw readme and its rendered HTML. Registry
// packages read from unpkg at the exact version; GitHub repos read the
// readme at the ingested sha.
func (t *versionTask) updateReadme(ctx context.Context, isNpm bool) error {
	var readme string
	var haveReadme bool
	var etag string

	if isNpm {
		readmePath := "README.md"
		if t.library != nil && t.library.RegistryMetadata != "" {
			if metadata, err := registry.ParsePackage([]byte(t.library.RegistryMetadata)); err == nil && metadata.ReadmeFilename != "" {
				readmePath = metadata.ReadmeFilename
			}
		}
		response, err := t.svc.Registry.Readme(ctx, t.owner, t.repo, t.tag, readmePath)
		if err != nil {
			return err
		}
		switch {
		case response.OK():
			readme = string(response.Body)
			haveReadme = true
			etag = response.Etag
		case response.NotFound():
		default:
			return task.Retry("error fetching readme (%d)", response.StatusCode)
		}
	} else {
		response, err := t.svc.GitHub.Readme(ctx, t.owner, t.repo, t.version.Sha)
		if err != nil {
			return err
		}
		switch {
		case response.OK():
			var file githubFile
			if err := json.Unmarshal(response.Body, &file); err != nil {
				return task.Retry("error decoding readme response")
			}
			decoded, err := decodeBase64(file.Content)
			if err != nil {
				return task.Retry("error decoding readme content")
			}
			readme = string(decoded)
			haveReadme = true
			etag = response.Etag
		case response.NotFound():
		default:
			return task.Retry("error fetching readme (%d)", response.StatusCode)
		}
	}

	if !haveReadme {
		return nil
	}
	if !utf8.ValidString(readme) {
		return t.fail(task.CodeVersionUTF, "could not store README.md as a utf-8 string")
	}

	raw := datastore.NewContent(t.id, t.tag, datastore.RoleReadme)
	raw.SetText(readme)
	raw.Status = datastore.StatusReady
	raw.Etag = etag
	t.contents = append(t.contents, raw)

	rendered, err := t.svc.GitHub.Markdown(ctx, readme)
	if err != nil {
		return err
	}
	if !rendered.OK() {
		return task.Retry("error converting readme to markdown (%d)", rendered.StatusCode)
	}
	html := datastore.NewContent(t.id, t.tag, datastore.RoleReadmeHTML)
	html.SetText(string(rendered.Body))
	html.Status = datastore.StatusReady
	html.Etag = rendered.Etag
	t.contents = append(t.contents, html)
	return nil
}

// updateBower stores the version's manifest. A version without one is a
// permanent error, the catalog has nothing to show for it.
func (t *versionTask) updateBower(ctx context.Context) (*bowerManifest, error) {
	response, err := t.svc.GitHub.RawContent(ctx, t.owner, t.repo, t.version.Sha, "bower.json")
	if err != nil {
		return nil, err
	}
	switch {
	case response.OK():
		var manifest bowerManifest
		if err := json.Unmarshal(response.Body, &manifest); err != nil {
			return nil, t.fail(task.CodeVersionParseBower, "could not parse bower.json")
		}
		content := datastore.NewContent(t.id, t.tag, datastore.RoleBower)
		if err := content.SetJSON(response.Body); err != nil {
			return nil, t.fail(task.CodeVersionParseBower, "could not parse bower.json")
		}
		content.Status = datastore.StatusReady
		content.Etag = response.Etag
		t.contents = append(t.contents, content)
		return &manifest, nil
	case response.NotFound():
		return nil, t.fail(task.CodeVersionMissingBower, "missing bower.json")
	default:
		return nil, task.Retry("could not access bower.json (%d)", response.StatusCode)
	}
}

// updatePages renders the documentation pages the manifest names.
func (t *versionTask) updatePages(ctx context.Context, manifest *bowerManifest) error {
	if manifest == nil {
		return nil
	}
	for _, path := range manifest.Pages {
		response, err := t.svc.GitHub.Contents(ctx, t.owner, t.repo, path, t.version.Sha)
		if err != nil {
			return err
		}

		var markdown []byte
		switch {
		case response.OK():
			var file githubFile
			if err := json.Unmarshal(response.Body, &file); err == nil && file.Type == "file" {
				markdown, _ = decodeBase64(file.Content)
			}
		case response.NotFound():
		default:
			return task.Retry("error fetching page %s (%d)", path, response.StatusCode)
		}
		if markdown == nil {
			continue
		}

		rendered, err := t.svc.GitHub.Markdown(ctx, string(markdown))
		if err != nil {
			return err
		}
		if !rendered.OK() {
			return task.Retry("error converting page to markdown %s (%d)", path, rendered.StatusCode)
		}
		content := datastore.NewContent(t.id, t.tag, datastore.PageRole(path))
		content.SetText(string(rendered.Body))
		content.Status = datastore.StatusReady
		content.Etag = rendered.Etag
		t.contents = append(t.contents, content)
	}
	return nil
}

// decodeBase64 decodes contents-API payloads, which wrap base64 at 60
// columns.
func decodeBase64(value string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(strings.ReplaceAll(value, "\n", ""))
}

// DeleteVersion removes a version and its contents. If the default version
// changes as a result, an index rebuild is scheduled in the same
// transaction.
func (s *Service) DeleteVersion(ctx context.Context, scope, pkg, tag string) error {
	id := datastore.LibraryID(scope, pkg)
	return s.Store.RunInTransaction(ctx, func(tx *datastore.Tx) error {
		if err := tx.DeleteVersionTree(id, tag); err != nil {
			return err
		}
		changed, err := tx.RefreshVersionCache(id)
		if err != nil {
			return err
		}
		if changed {
			return tx.EnqueueTask(task.QueueDefault, updateIndexesURL(id))
		}
		return nil
	})
}

// RequestAnalysis publishes an analysis request for one version.
func (s *Service) RequestAnalysis(ctx context.Context, scope, pkg, tag, sha string) error {
	return s.Analysis.Publish(ctx, strings.ToLower(scope), strings.ToLower(pkg), tag, sha)
}
