package router

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	imageFetchTimeout = 30 * time.Second
	maxImageBytes     = 20 << 20 // 20 MiB ceiling on attachment downloads
)

// ImageFetcher downloads attachment images. One GET per reference, no
// retries; anything other than a 200 is an error for the current turn.
type ImageFetcher struct {
	client *http.Client
}

func NewImageFetcher() *ImageFetcher {
	return &ImageFetcher{
		client: &http.Client{Timeout: imageFetchTimeout},
	}
}

// Fetch returns the image bytes at url.
func (f *ImageFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("new image request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image download returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image body: %w", err)
	}
	if len(body) > maxImageBytes {
		return nil, fmt.Errorf("image exceeds %d byte limit", maxImageBytes)
	}
	return body, nil
}
