package ingest

import (
	"context"
	"strings"

	"github.com/flanksource/commons/logger"

	"github.com/webcomponents/catalog/pkg/datastore"
	"github.com/webcomponents/catalog/pkg/task"
)

// authorTask carries the state of one author handler run.
type authorTask struct {
	svc     *Service
	name    string
	author  *datastore.Author
	dirty   bool
	deleted bool
}

func (s *Service) newAuthorTask(name string) *authorTask {
	return &authorTask{svc: s, name: strings.ToLower(name)}
}

func (t *authorTask) init(ctx context.Context, create bool) error {
	err := t.svc.Store.RunInTransaction(ctx, func(tx *datastore.Tx) error {
		var err error
		if create {
			t.author, err = tx.GetOrInsertAuthor(t.name)
		} else {
			t.author, err = tx.GetAuthor(t.name)
		}
		return err
	})
	if err != nil {
		return err
	}
	if t.author != nil && t.author.Status == datastore.StatusSuppressed {
		return &task.PermanentError{Message: "author is suppressed"}
	}
	return nil
}

func (t *authorTask) commit(ctx context.Context) error {
	if !t.dirty || t.deleted {
		return nil
	}
	return t.svc.Store.RunInTransaction(ctx, func(tx *datastore.Tx) error {
		return tx.PutAuthor(t.author)
	})
}

// updateMetadata refreshes the author's profile. A deleted account tears the
// author down.
func (t *authorTask) updateMetadata(ctx context.Context) error {
	response, err := t.svc.GitHub.User(ctx, t.name, t.author.MetadataEtag)
	if err != nil {
		return err
	}
	switch {
	case response.OK():
		t.author.Metadata = string(response.Body)
		t.author.MetadataEtag = response.Etag
		t.author.MetadataUpdated = t.svc.Store.Now()
		t.dirty = true
		return nil
	case response.NotFound():
		logger.Infof("deleting non-existing author %s", t.name)
		err := t.svc.Store.RunInTransaction(ctx, func(tx *datastore.Tx) error {
			return tx.DeleteAuthor(t.name)
		})
		if err != nil {
			return err
		}
		t.deleted = true
		return &task.PermanentError{Message: "author no longer exists"}
	case response.NotModified():
		return nil
	default:
		return task.Retry("could not update author metadata (%d)", response.StatusCode)
	}
}

func (s *Service) runAuthor(ctx context.Context, name string, create bool, fn func(*authorTask) error) error {
	t := s.newAuthorTask(name)
	if err := t.init(ctx, create); err != nil {
		return err
	}
	if t.author == nil {
		return &task.PermanentError{Message: "author does not exist"}
	}

	err := fn(t)
	if !shouldCommit(err) {
		return err
	}
	return commitErr(t.commit(ctx), err)
}

// IngestAuthor performs a first ingestion of an author.
func (s *Service) IngestAuthor(ctx context.Context, name string) error {
	return s.runAuthor(ctx, name, true, func(t *authorTask) error {
		if t.author.Metadata != "" {
			return &task.PermanentError{Message: "author has already been ingested"}
		}
		if err := t.updateMetadata(ctx); err != nil {
			return err
		}
		t.author.Status = datastore.StatusReady
		t.dirty = true
		return nil
	})
}

// UpdateAuthor refreshes an existing author.
func (s *Service) UpdateAuthor(ctx context.Context, name string) error {
	return s.runAuthor(ctx, name, false, func(t *authorTask) error {
		return t.updateMetadata(ctx)
	})
}

// EnsureAuthor enqueues ingestion when the author is unknown.
func (s *Service) EnsureAuthor(ctx context.Context, name string) error {
	var author *datastore.Author
	err := s.Store.RunInTransaction(ctx, func(tx *datastore.Tx) error {
		var err error
		author, err = tx.GetAuthor(name)
		return err
	})
	if err != nil {
		return err
	}
	if author == nil {
		return s.enqueue(ctx, task.QueueDefault, ingestAuthorURL(strings.ToLower(name)))
	}
	return nil
}
