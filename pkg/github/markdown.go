package github

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"regexp"

	"github.com/webcomponents/catalog/pkg/fetch"
)

// Readmes hide runnable demo snippets inside HTML comments so they render as
// nothing on github.com. The catalog wants them live, so the comment wrapper
// is stripped before the markdown is rendered.
var inlineDemoExpr = regexp.MustCompile("(?s)<!---?\n*(```(?:html)?\n<custom-element-demo.*?```)\n-->")

// InlineDemoTransform unwraps commented-out <custom-element-demo> code fences.
func InlineDemoTransform(markdown string) string {
	return inlineDemoExpr.ReplaceAllString(markdown, "$1")
}

// Markdown renders markdown to HTML via the GitHub markdown API, applying the
// inline demo transform first.
func (c *Client) Markdown(ctx context.Context, markdown string) (*fetch.Response, error) {
	payload, err := json.Marshal(map[string]string{"text": InlineDemoTransform(markdown)})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, c.apiBase+"/markdown", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return fetch.Do(ctx, c.http, req)
}
