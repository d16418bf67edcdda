// Package ingest implements the catalog pipeline: library and author
// ingestion, version ingestion, analysis plumbing, index building, and the
// bulk sweeps. Handlers are idempotent and safe to redeliver; each one
// commits whatever state it established before aborting, so a retried task
// resumes instead of starting over.
package ingest

import (
	"context"
	"fmt"

	"github.com/webcomponents/catalog/pkg/analysis"
	"github.com/webcomponents/catalog/pkg/datastore"
	"github.com/webcomponents/catalog/pkg/github"
	"github.com/webcomponents/catalog/pkg/registry"
	"github.com/webcomponents/catalog/pkg/search"
	"github.com/webcomponents/catalog/pkg/task"
)

// Service wires the pipeline's collaborators together. All handlers hang off
// it.
type Service struct {
	Store    *datastore.Store
	GitHub   *github.Client
	Registry *registry.Client
	Index    *search.Index
	Analysis analysis.Publisher
}

// NewService creates a Service.
func NewService(store *datastore.Store, gh *github.Client, reg *registry.Client, index *search.Index, publisher analysis.Publisher) *Service {
	if publisher == nil {
		publisher = analysis.NopPublisher{}
	}
	return &Service{
		Store:    store,
		GitHub:   gh,
		Registry: reg,
		Index:    index,
		Analysis: publisher,
	}
}

// queuedTask is a child task pending transactional enqueue.
type queuedTask struct {
	queue string
	url   string
}

// Task URL builders. Scope and package are lowercased by LibraryID so task
// URLs are canonical.

func ingestLibraryURL(scope, pkg string) string {
	return "/task/ingest/" + datastore.LibraryID(scope, pkg)
}

func updateLibraryURL(id string) string {
	return "/task/update/" + id
}

func ensureLibraryURL(scope, pkg string) string {
	return "/task/ensure/" + datastore.LibraryID(scope, pkg)
}

func ingestVersionURL(scope, pkg, tag string) string {
	return "/task/ingest/" + datastore.LibraryID(scope, pkg) + "/" + tag
}

func deleteVersionURL(scope, pkg, tag string) string {
	return "/task/delete/" + datastore.LibraryID(scope, pkg) + "/" + tag
}

func analysisURL(scope, pkg, tag, sha string) string {
	url := "/task/analysis/" + datastore.LibraryID(scope, pkg) + "/" + tag
	if sha != "" {
		url += "?sha=" + sha
	}
	return url
}

func updateIndexesURL(id string) string {
	return "/task/update-indexes/" + id
}

func migrateLibraryURL(owner, repo, scope, pkg string) string {
	return "/task/migrate/" + datastore.LibraryID(owner, repo) + "/" + datastore.LibraryID(scope, pkg)
}

func ensureAuthorURL(name string) string {
	return "/task/ensure-author/" + name
}

func ingestAuthorURL(name string) string {
	return "/task/ingest-author/" + name
}

func updateAuthorURL(name string) string {
	return "/task/update-author/" + name
}

func analyzeLibraryURL(id string, latest bool) string {
	url := "/task/analyze/" + id
	if latest {
		url += "/latest"
	}
	return url
}

// enqueue adds a task in its own transaction, for handlers with no entity
// state of their own.
func (s *Service) enqueue(ctx context.Context, queue, url string) error {
	if err := s.Store.EnqueueTask(ctx, queue, url); err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", url, err)
	}
	return nil
}

// commitErr keeps the handler's abort when the commit itself succeeded.
func commitErr(commit, abort error) error {
	if commit != nil {
		return commit
	}
	return abort
}

// shouldCommit reports whether the handler outcome still wants its state
// persisted. Controlled aborts commit, unexpected errors do not.
func shouldCommit(err error) bool {
	return err == nil || task.IsAbort(err)
}
