package ingest

import (
	"context"
	"fmt"
	"io"

	"github.com/flanksource/commons/logger"

	"github.com/webcomponents/catalog/pkg/datastore"
	"github.com/webcomponents/catalog/pkg/task"
)

// sweepPageSize matches the keys-per-page granularity of the bulk sweeps.
const sweepPageSize = 50

// UpdateAll schedules an update of every library and author on the update
// queue. It refuses to start while a previous sweep is still draining.
func (s *Service) UpdateAll(ctx context.Context) (bool, error) {
	pending, err := s.Store.PendingTasks(ctx, task.QueueUpdate)
	if err != nil {
		return false, err
	}
	if pending > 0 {
		return false, nil
	}

	libraries := 0
	if err := s.eachLibraryID(ctx, func(tx *datastore.Tx, id string) error {
		libraries++
		return tx.EnqueueTask(task.QueueUpdate, updateLibraryURL(id))
	}); err != nil {
		return false, err
	}
	logger.Infof("triggered %d library updates", libraries)

	authors := 0
	if err := s.eachAuthorName(ctx, func(tx *datastore.Tx, name string) error {
		authors++
		return tx.EnqueueTask(task.QueueUpdate, updateAuthorURL(name))
	}); err != nil {
		return false, err
	}
	logger.Infof("triggered %d author updates", authors)
	return true, nil
}

// AnalyzeAll schedules re-analysis of every library.
func (s *Service) AnalyzeAll(ctx context.Context, latest bool) (int, error) {
	count := 0
	err := s.eachLibraryID(ctx, func(tx *datastore.Tx, id string) error {
		count++
		return tx.EnqueueTask(task.QueueDefault, analyzeLibraryURL(id, latest))
	})
	if err != nil {
		return 0, err
	}
	logger.Infof("triggered %d analyses", count)
	return count, nil
}

// IndexAll schedules an index rebuild of every library.
func (s *Service) IndexAll(ctx context.Context) (int, error) {
	count := 0
	err := s.eachLibraryID(ctx, func(tx *datastore.Tx, id string) error {
		count++
		return tx.EnqueueTask(task.QueueDefault, updateIndexesURL(id))
	})
	if err != nil {
		return 0, err
	}
	logger.Infof("triggered %d index updates", count)
	return count, nil
}

// eachLibraryID pages through all library ids, invoking fn inside a
// transaction per page.
func (s *Service) eachLibraryID(ctx context.Context, fn func(*datastore.Tx, string) error) error {
	cursor := ""
	for {
		var page []string
		err := s.Store.RunInTransaction(ctx, func(tx *datastore.Tx) error {
			var err error
			if page, err = tx.LibraryIDs(cursor, sweepPageSize); err != nil {
				return err
			}
			for _, id := range page {
				if err := fn(tx, id); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		if len(page) < sweepPageSize {
			return nil
		}
		cursor = page[len(page)-1]
	}
}

func (s *Service) eachAuthorName(ctx context.Context, fn func(*datastore.Tx, string) error) error {
	cursor := ""
	for {
		var page []string
		err := s.Store.RunInTransaction(ctx, func(tx *datastore.Tx) error {
			var err error
			if page, err = tx.AuthorNames(cursor, sweepPageSize); err != nil {
				return err
			}
			for _, name := range page {
				if err := fn(tx, name); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		if len(page) < sweepPageSize {
			return nil
		}
		cursor = page[len(page)-1]
	}
}

// BuildSitemaps snapshots the ready element and collection ids and all
// author names into the three sitemap entities.
func (s *Service) BuildSitemaps(ctx context.Context) error {
	return s.Store.RunInTransaction(ctx, func(tx *datastore.Tx) error {
		elements, err := tx.ReadyLibraryIDs(datastore.KindElement)
		if err != nil {
			return err
		}
		if err := tx.PutSitemap(datastore.SitemapElements, elements); err != nil {
			return err
		}
		logger.Infof("%d elements", len(elements))

		collections, err := tx.ReadyLibraryIDs(datastore.KindCollection)
		if err != nil {
			return err
		}
		if err := tx.PutSitemap(datastore.SitemapCollections, collections); err != nil {
			return err
		}
		logger.Infof("%d collections", len(collections))

		var authors []string
		cursor := ""
		for {
			page, err := tx.AuthorNames(cursor, sweepPageSize)
			if err != nil {
				return err
			}
			authors = append(authors, page...)
			if len(page) < sweepPageSize {
				break
			}
			cursor = page[len(page)-1]
		}
		if err := tx.PutSitemap(datastore.SitemapAuthors, authors); err != nil {
			return err
		}
		logger.Infof("%d authors", len(authors))
		return nil
	})
}

// DeleteLibrary removes one library tree, logging what it deleted.
func (s *Service) DeleteLibrary(ctx context.Context, w io.Writer, scope, pkg string) error {
	id := datastore.LibraryID(scope, pkg)
	if err := s.deleteLibraryTree(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(w, "deleted %s\n", id)
	return nil
}

// DeleteEverything empties the catalog: every library, every author, and the
// whole search index.
func (s *Service) DeleteEverything(ctx context.Context, w io.Writer) error {
	for {
		var page []string
		err := s.Store.RunInTransaction(ctx, func(tx *datastore.Tx) error {
			var err error
			page, err = tx.LibraryIDs("", sweepPageSize)
			return err
		})
		if err != nil {
			return err
		}
		if len(page) == 0 {
			break
		}
		for _, id := range page {
			if err := s.deleteLibraryTree(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(w, "deleted %s\n", id)
		}
	}

	for {
		var page []string
		err := s.Store.RunInTransaction(ctx, func(tx *datastore.Tx) error {
			var err error
			page, err = tx.AuthorNames("", sweepPageSize)
			return err
		})
		if err != nil {
			return err
		}
		if len(page) == 0 {
			break
		}
		err = s.Store.RunInTransaction(ctx, func(tx *datastore.Tx) error {
			for _, name := range page {
				if err := tx.DeleteAuthor(name); err != nil {
					return err
				}
				fmt.Fprintf(w, "deleted author %s\n", name)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	if err := s.Index.DeleteAll(ctx); err != nil {
		return err
	}
	fmt.Fprintln(w, "Finished")
	return nil
}
