// Package media resolves generated content locators to durable URLs
// and tracks asynchronous generation jobs.
package media

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/containerd/errdefs"
)

// Resolver converts a storage locator into a durable, publicly
// fetchable URL. Transient retries are the collaborator's concern, not
// the orchestrator's.
type Resolver interface {
	ResolveDurableURL(ctx context.Context, locator string) (string, error)
}

// StorageError reports that the storage collaborator could not resolve
// a locator. Non-fatal for the pipeline: the asset keeps its locator
// with an attached error marker.
type StorageError struct {
	Locator string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("resolve %s: %v", e.Locator, e.Err)
}

func (e *StorageError) Unwrap() error {
	return errdefs.ErrUnavailable
}

// HTTPResolver resolves locators through the media service's resolve
// endpoint.
type HTTPResolver struct {
	baseURL string
	client  *http.Client
}

// NewHTTPResolver creates a resolver against the media service.
func NewHTTPResolver(baseURL string) *HTTPResolver {
	return &HTTPResolver{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// ResolveDurableURL asks the media service for a durable URL. Locators
// that are already public URLs pass through unchanged.
func (r *HTTPResolver) ResolveDurableURL(ctx context.Context, locator string) (string, error) {
	if strings.HasPrefix(locator, "https://") || strings.HasPrefix(locator, "http://") {
		return locator, nil
	}

	endpoint := fmt.Sprintf("%s/resolve?locator=%s", r.baseURL, url.QueryEscape(locator))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", &StorageError{Locator: locator, Err: err}
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", &StorageError{Locator: locator, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &StorageError{Locator: locator, Err: fmt.Errorf("media service returned %d", resp.StatusCode)}
	}

	var body struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", &StorageError{Locator: locator, Err: fmt.Errorf("decode resolve response: %w", err)}
	}
	if body.URL == "" {
		return "", &StorageError{Locator: locator, Err: fmt.Errorf("media service returned no URL")}
	}
	return body.URL, nil
}
