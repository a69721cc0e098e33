// Package imaging uploads base64 photo payloads to the external image
// store. Failures here are non-fatal to attendance writes; callers fall
// back to storing the payload inline.
package imaging

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/Conqueror102/time-wise-v2-sub001/pkg/config"
)

// Client posts unsigned uploads to the configured image store.
type Client struct {
	client *resty.Client
	preset string
}

// NewClient creates an image store client with a bounded timeout.
func NewClient(cfg *config.ImageStoreConfig) *Client {
	return &Client{
		client: resty.New().
			SetBaseURL(cfg.UploadURL).
			SetTimeout(cfg.UploadTimeout),
		preset: cfg.UploadPreset,
	}
}

type uploadResponse struct {
	SecureURL string `json:"secure_url"`
	URL       string `json:"url"`
	Error     struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Upload pushes a base64 payload into the tenant/staff-scoped folder and
// returns the stored image URL.
func (c *Client) Upload(ctx context.Context, folder, base64Payload string) (string, error) {
	var out uploadResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"file":          "data:image/jpeg;base64," + base64Payload,
			"upload_preset": c.preset,
			"folder":        folder,
		}).
		SetResult(&out).
		Post("")
	if err != nil {
		return "", fmt.Errorf("image upload: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("image upload: status %d: %s", resp.StatusCode(), out.Error.Message)
	}
	if out.SecureURL != "" {
		return out.SecureURL, nil
	}
	if out.URL != "" {
		return out.URL, nil
	}
	return "", fmt.Errorf("image upload: empty URL in response")
}
