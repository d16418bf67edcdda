// Package analysis bridges the catalog to the element analysis service over
// Pub/Sub. Requests are attribute-only messages on a request topic; the
// service replies via HTTP push from a response topic.
package analysis

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/flanksource/commons/logger"
)

// MaxPayload is the largest reply body the catalog accepts. Anything bigger
// is dropped, matching the datastore's practical entity limit.
const MaxPayload = 1048487 * 5

// Publisher requests analysis of one library version.
type Publisher interface {
	Publish(ctx context.Context, owner, repo, version, sha string) error
}

// PubsubPublisher publishes analysis requests to a Pub/Sub topic.
type PubsubPublisher struct {
	client        *pubsub.Client
	topic         *pubsub.Topic
	responseTopic string
}

// NewPubsubPublisher connects to Pub/Sub and targets the request topic.
// Replies are routed back through responseTopic, which the analysis service
// echoes into its reply attributes.
func NewPubsubPublisher(ctx context.Context, projectID, topicID, responseTopic string) (*PubsubPublisher, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}
	return &PubsubPublisher{
		client:        client,
		topic:         client.Topic(topicID),
		responseTopic: responseTopic,
	}, nil
}

// Publish sends one analysis request. The payload is empty, everything rides
// in the attributes; sha is omitted when unknown (npm versions have none).
func (p *PubsubPublisher) Publish(ctx context.Context, owner, repo, version, sha string) error {
	attributes := map[string]string{
		"owner":         owner,
		"repo":          repo,
		"version":       version,
		"responseTopic": p.responseTopic,
	}
	if sha != "" {
		attributes["sha"] = sha
	}

	result := p.topic.Publish(ctx, &pubsub.Message{Attributes: attributes})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("failed to publish analysis request for %s/%s@%s: %w", owner, repo, version, err)
	}
	logger.V(3).Infof("requested analysis of %s/%s@%s", owner, repo, version)
	return nil
}

// Close flushes and releases the Pub/Sub client.
func (p *PubsubPublisher) Close() error {
	p.topic.Stop()
	return p.client.Close()
}

// NopPublisher discards analysis requests. Used when no analysis service is
// configured and in tests.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, owner, repo, version, sha string) error {
	logger.V(3).Infof("analysis disabled, skipping %s/%s@%s", owner, repo, version)
	return nil
}

// Reply is one analysis result delivered by HTTP push.
type Reply struct {
	Owner   string
	Repo    string
	Version string
	Error   string
	Data    []byte
}

// pushEnvelope is the wire shape of a Pub/Sub push delivery.
type pushEnvelope struct {
	Message struct {
		Data       string            `json:"data"`
		Attributes map[string]string `json:"attributes"`
	} `json:"message"`
}

// ParseReply decodes a push delivery. Replies without attributes are
// malformed and rejected.
func ParseReply(body []byte) (*Reply, error) {
	var envelope pushEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse push envelope: %w", err)
	}
	if len(envelope.Message.Attributes) == 0 {
		return nil, fmt.Errorf("push message has no attributes")
	}

	data, err := base64.StdEncoding.DecodeString(envelope.Message.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode push payload: %w", err)
	}

	attributes := envelope.Message.Attributes
	return &Reply{
		Owner:   attributes["owner"],
		Repo:    attributes["repo"],
		Version: attributes["version"],
		Error:   attributes["error"],
		Data:    data,
	}, nil
}
