package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"picoedge.com/ijpkg/internal/application/ports"
	"picoedge.com/ijpkg/internal/core/domain"
)

// UploadPath is the marketplace upload endpoint, relative to the base URL
const UploadPath = "/plugin/uploadPlugin"

// MarketplaceClient uploads plugin archives to a JetBrains-compatible
// plugin repository
type MarketplaceClient struct {
	baseURL string
	client  *http.Client
	debug   bool
}

// NewMarketplaceClient creates a client for the repository at baseURL
func NewMarketplaceClient(baseURL string, debug bool) *MarketplaceClient {
	return &MarketplaceClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client: &http.Client{
			Timeout: 10 * time.Minute, // archives can be large
		},
		debug: debug,
	}
}

// NewMarketplaceClientWithHTTP uses a caller-provided HTTP client
func NewMarketplaceClientWithHTTP(baseURL string, client *http.Client) *MarketplaceClient {
	return &MarketplaceClient{baseURL: strings.TrimSuffix(baseURL, "/"), client: client}
}

// Publish uploads the archive as multipart form data. 401 and 403 are
// AuthenticationErrors; transport failures and any other non-2xx answer are
// NetworkErrors. Nothing is retried.
func (c *MarketplaceClient) Publish(ctx context.Context, req ports.PublishRequest) (ports.PublishResult, error) {
	if req.Token == "" {
		return ports.PublishResult{}, domain.NewAuthenticationError("no publish token", nil)
	}

	body, contentType, err := buildUploadBody(req)
	if err != nil {
		return ports.PublishResult{}, err
	}

	url := c.baseURL + UploadPath
	var reader io.Reader = bytes.NewReader(body)
	if req.Progress != nil {
		reader = &progressReader{reader: reader, total: int64(len(body)), progressFunc: ProgressFunc(req.Progress)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reader)
	if err != nil {
		return ports.PublishResult{}, domain.NewConfigurationError("invalid publish endpoint", err)
	}
	httpReq.ContentLength = int64(len(body))
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")

	if c.debug {
		fmt.Fprintf(os.Stderr, "[MarketplaceClient] Uploading %s (%d bytes) to %s\n", filepath.Base(req.ArchivePath), len(body), url)
	}

	client := CreateAuthenticatedClient(c.client, req.Token)
	resp, err := client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return ports.PublishResult{}, err
		}
		return ports.PublishResult{}, domain.NewNetworkError(fmt.Sprintf("upload to %s failed", c.baseURL), err)
	}
	defer resp.Body.Close()

	message, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	text := strings.TrimSpace(string(message))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ports.PublishResult{}, domain.NewAuthenticationError(
			fmt.Sprintf("unauthorized: token rejected by %s (HTTP %d)", c.baseURL, resp.StatusCode), nil)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return ports.PublishResult{}, domain.NewNetworkError(
			fmt.Sprintf("marketplace error %d: %s", resp.StatusCode, text), nil)
	}

	return ports.PublishResult{
		Endpoint:   url,
		StatusCode: resp.StatusCode,
		Channel:    req.Channel,
		Message:    text,
	}, nil
}

// buildUploadBody renders the multipart form: xmlId, channel and file
func buildUploadBody(req ports.PublishRequest) ([]byte, string, error) {
	archive, err := os.Open(req.ArchivePath)
	if err != nil {
		return nil, "", domain.NewPackagingError("cannot open archive for upload", err)
	}
	defer archive.Close()

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	if err := form.WriteField("xmlId", req.PluginID); err != nil {
		return nil, "", fmt.Errorf("failed to write form: %w", err)
	}
	if req.Channel != "" {
		if err := form.WriteField("channel", req.Channel); err != nil {
			return nil, "", fmt.Errorf("failed to write form: %w", err)
		}
	}
	part, err := form.CreateFormFile("file", filepath.Base(req.ArchivePath))
	if err != nil {
		return nil, "", fmt.Errorf("failed to write form: %w", err)
	}
	if _, err := io.Copy(part, archive); err != nil {
		return nil, "", domain.NewPackagingError("cannot read archive for upload", err)
	}
	if err := form.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to write form: %w", err)
	}
	return buf.Bytes(), form.FormDataContentType(), nil
}
