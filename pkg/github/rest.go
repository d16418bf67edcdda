package github

import (
	"context"
	"fmt"

	gogithub "github.com/google/go-github/v57/github"
)

// RateLimits reports the remaining quota on the service token.
func (c *Client) RateLimits(ctx context.Context) (*gogithub.RateLimits, error) {
	limits, _, err := c.rest.RateLimit.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get rate limits: %w", err)
	}
	return limits, nil
}

// EnsureWebhook registers a push webhook on the repository using the user's
// token, unless one pointing at callbackURL already exists.
func (c *Client) EnsureWebhook(ctx context.Context, owner, repo, userToken, callbackURL string) error {
	client := c.userClient(ctx, userToken)

	hooks, _, err := client.Repositories.ListHooks(ctx, owner, repo, &gogithub.ListOptions{PerPage: 100})
	if err != nil {
		return fmt.Errorf("failed to list hooks for %s/%s: %w", owner, repo, err)
	}
	for _, hook := range hooks {
		if existing, ok := hook.Config["url"].(string); ok && existing == callbackURL {
			return nil
		}
	}

	_, _, err = client.Repositories.CreateHook(ctx, owner, repo, &gogithub.Hook{
		Active: gogithub.Bool(true),
		Events: []string{"push"},
		Config: map[string]interface{}{
			"url":          callbackURL,
			"content_type": "json",
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create hook for %s/%s: %w", owner, repo, err)
	}
	return nil
}

// PostCommitStatus publishes a commit status on the user's behalf. Preview
// ingestion uses it to link the rendered preview from the pull request.
func (c *Client) PostCommitStatus(ctx context.Context, owner, repo, sha, userToken string, state, description, targetURL string) error {
	client := c.userClient(ctx, userToken)

	_, _, err := client.Repositories.CreateStatus(ctx, owner, repo, sha, &gogithub.RepoStatus{
		State:       gogithub.String(state),
		Description: gogithub.String(description),
		Context:     gogithub.String("webcomponents/preview"),
		TargetURL:   gogithub.String(targetURL),
	})
	if err != nil {
		return fmt.Errorf("failed to post status for %s/%s@%s: %w", owner, repo, sha, err)
	}
	return nil
}
