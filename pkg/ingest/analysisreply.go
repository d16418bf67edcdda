package ingest

import (
	"context"

	"github.com/flanksource/commons/logger"

	"github.com/webcomponents/catalog/pkg/analysis"
	"github.com/webcomponents/catalog/pkg/datastore"
	"github.com/webcomponents/catalog/pkg/task"
)

// IngestAnalysis stores an analysis reply delivered by push. Oversized and
// malformed deliveries are dropped rather than redelivered forever; replies
// for versions the catalog no longer tracks are dropped silently.
func (s *Service) IngestAnalysis(ctx context.Context, body []byte) error {
	if len(body) > analysis.MaxPayload {
		logger.Warnf("dropping oversized analysis reply (%d bytes)", len(body))
		return nil
	}

	reply, err := analysis.ParseReply(body)
	if err != nil {
		logger.Errorf("dropping malformed analysis reply: %v", err)
		return nil
	}
	id := datastore.LibraryID(reply.Owner, reply.Repo)

	return s.Store.RunInTransaction(ctx, func(tx *datastore.Tx) error {
		content, err := tx.GetContent(id, reply.Version, datastore.RoleAnalysis)
		if err != nil {
			return err
		}
		if content == nil {
			return nil
		}

		if len(reply.Data) == 0 {
			if err := content.SetJSON(nil); err != nil {
				return err
			}
		} else if err := content.SetJSON(reply.Data); err != nil {
			return err
		}

		if reply.Error == "" {
			content.Status = datastore.StatusReady
			content.Error = ""
		} else {
			content.Status = datastore.StatusError
			content.Error = reply.Error
		}
		if err := tx.PutContent(content); err != nil {
			return err
		}

		defaultVersion, err := tx.DefaultVersionForLibrary(id)
		if err != nil {
			return err
		}
		if defaultVersion == reply.Version {
			return tx.EnqueueTask(task.QueueDefault, updateIndexesURL(id))
		}
		return nil
	})
}
