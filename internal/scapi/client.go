// Package scapi is the client for the publication content API: the external
// source of tree skeletons, segment streams, edition configuration, and
// front/back matter files. The assembly core performs no I/O of its own;
// everything it consumes arrives through this client.
package scapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/palikit/canonpress/internal/doctree"
)

// Client communicates with the publication API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// RetryableError marks upstream failures worth retrying (throttling, server
// errors). The pipeline backs off on these and gives up on anything else.
type RetryableError struct {
	Status int
	Path   string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("upstream %s: status %d", e.Path, e.Status)
}

// EditionConfig describes one publication edition: which collection it draws
// from, how deep its tables of contents go, and its per-volume mainmatter.
type EditionConfig struct {
	EditionID         string         `json:"edition_id"`
	Collection        string         `json:"text_uid"`
	Title             string         `json:"translation_title"`
	MainTocDepth      int            `json:"main_toc_depth"`
	SecondaryTocDepth int            `json:"secondary_toc_depth"`
	Volumes           []VolumeConfig `json:"volumes"`
}

// VolumeConfig is one volume's slice of an edition.
type VolumeConfig struct {
	Number      int      `json:"volume_number"`
	RootTitle   string   `json:"volume_root_title"`
	Mainmatter  []string `json:"mainmatter"`
	Frontmatter []string `json:"frontmatter,omitempty"`
	Backmatter  []string `json:"backmatter,omitempty"`
}

// SuperTree fetches the canon-wide structural skeleton as raw JSON.
func (c *Client) SuperTree(ctx context.Context) ([]byte, error) {
	return c.getRaw(ctx, "/publication/supertree")
}

// CollectionTree fetches one collection's skeleton as raw JSON.
func (c *Client) CollectionTree(ctx context.Context, collection string) ([]byte, error) {
	return c.getRaw(ctx, "/publication/tree/"+collection)
}

// EditionConfig fetches the configuration of one edition.
func (c *Client) EditionConfig(ctx context.Context, editionID string) (*EditionConfig, error) {
	var cfg EditionConfig
	if err := c.getJSON(ctx, "/publication/edition/"+editionID+"/config", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Mainmatter fetches the ordered segment stream of one mainmatter uid.
func (c *Client) Mainmatter(ctx context.Context, editionID, uid string) ([]doctree.Segment, error) {
	var segments []doctree.Segment
	path := fmt.Sprintf("/publication/edition/%s/%s", editionID, uid)
	if err := c.getJSON(ctx, path, &segments); err != nil {
		return nil, err
	}
	return segments, nil
}

// Extras fetches the edition's front/back matter files keyed by filename.
// HTML files arrive as markup, Markdown as source text.
func (c *Client) Extras(ctx context.Context, editionID string) (map[string]string, error) {
	var files map[string]string
	if err := c.getJSON(ctx, "/publication/edition/"+editionID+"/files", &files); err != nil {
		return nil, err
	}
	return files, nil
}

func (c *Client) getRaw(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, &RetryableError{Status: resp.StatusCode, Path: path}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("get %s: status %d: %s", path, resp.StatusCode, string(body))
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	body, err := c.getRaw(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
