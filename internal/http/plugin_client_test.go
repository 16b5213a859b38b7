package http

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"picoedge.com/ijpkg/internal/application/ports"
	"picoedge.com/ijpkg/internal/core/domain"
)

func writeArchive(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ai-tools-1.0.0.zip")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// =============================================================================
// MarketplaceClient Tests
// =============================================================================

func TestMarketplaceClient_UploadContract(t *testing.T) {
	archive := writeArchive(t, "PK-archive-bytes")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/plugin/uploadPlugin", r.URL.Path)
		assert.Equal(t, "Bearer perm:secret", r.Header.Get("Authorization"))

		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		assert.Equal(t, "com.picoedge.ai-tools", r.FormValue("xmlId"))
		assert.Equal(t, "beta", r.FormValue("channel"))

		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "ai-tools-1.0.0.zip", header.Filename)
		assert.Equal(t, "PK-archive-bytes", string(data))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":1,"version":"1.0.0"}`))
	}))
	defer server.Close()

	var lastSent, lastTotal int64
	client := NewMarketplaceClientWithHTTP(server.URL+"/", server.Client())
	res, err := client.Publish(context.Background(), ports.PublishRequest{
		ArchivePath: archive,
		PluginID:    "com.picoedge.ai-tools",
		Channel:     "beta",
		Token:       "perm:secret",
		Progress: func(sent, total int64) {
			lastSent, lastTotal = sent, total
		},
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, server.URL+"/plugin/uploadPlugin", res.Endpoint)
	assert.Contains(t, res.Message, `"version":"1.0.0"`)
	assert.Greater(t, lastTotal, int64(0))
	assert.Equal(t, lastTotal, lastSent)
}

func TestMarketplaceClient_StableChannelOmitted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		_, present := r.MultipartForm.Value["channel"]
		assert.False(t, present)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := NewMarketplaceClientWithHTTP(server.URL, server.Client())
	res, err := client.Publish(context.Background(), ports.PublishRequest{
		ArchivePath: writeArchive(t, "zip"),
		PluginID:    "com.picoedge.ai-tools",
		Token:       "perm:secret",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, res.StatusCode)
}

func TestMarketplaceClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		sentinel error
	}{
		{"unauthorized", http.StatusUnauthorized, domain.ErrAuthentication},
		{"forbidden", http.StatusForbidden, domain.ErrAuthentication},
		{"conflict", http.StatusConflict, domain.ErrNetwork},
		{"server error", http.StatusBadGateway, domain.ErrNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&hits, 1)
				http.Error(w, "nope", tt.status)
			}))
			defer server.Close()

			client := NewMarketplaceClientWithHTTP(server.URL, server.Client())
			_, err := client.Publish(context.Background(), ports.PublishRequest{
				ArchivePath: writeArchive(t, "zip"),
				PluginID:    "com.picoedge.ai-tools",
				Token:       "perm:secret",
			})
			assert.ErrorIs(t, err, tt.sentinel)
			assert.Equal(t, int32(1), atomic.LoadInt32(&hits), "uploads are never retried")
		})
	}

	t.Run("transport failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := server.URL
		server.Close()

		client := NewMarketplaceClientWithHTTP(url, &http.Client{})
		_, err := client.Publish(context.Background(), ports.PublishRequest{
			ArchivePath: writeArchive(t, "zip"),
			PluginID:    "com.picoedge.ai-tools",
			Token:       "perm:secret",
		})
		assert.ErrorIs(t, err, domain.ErrNetwork)
	})

	t.Run("missing archive", func(t *testing.T) {
		client := NewMarketplaceClient("http://127.0.0.1:1", false)
		_, err := client.Publish(context.Background(), ports.PublishRequest{
			ArchivePath: filepath.Join(t.TempDir(), "missing.zip"),
			Token:       "perm:secret",
		})
		assert.ErrorIs(t, err, domain.ErrPackaging)
	})

	t.Run("empty token", func(t *testing.T) {
		client := NewMarketplaceClient("http://127.0.0.1:1", false)
		_, err := client.Publish(context.Background(), ports.PublishRequest{ArchivePath: "x.zip"})
		assert.ErrorIs(t, err, domain.ErrAuthentication)
	})
}

// =============================================================================
// Downloader Tests
// =============================================================================

func TestDownloader_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.jar":
			assert.Equal(t, "ijpkg-test", r.Header.Get("User-Agent"))
			_, _ = w.Write([]byte("jar-bytes"))
		case "/gone.jar":
			w.WriteHeader(http.StatusGone)
		default:
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	d := NewDownloaderWithClient(server.Client(), "ijpkg-test")
	ctx := context.Background()

	var buf bytes.Buffer
	var progressCalls int
	n, err := d.Fetch(ctx, server.URL+"/ok.jar", &buf, func(transferred, total int64) { progressCalls++ })
	require.NoError(t, err)
	assert.Equal(t, int64(9), n)
	assert.Equal(t, "jar-bytes", buf.String())
	assert.Positive(t, progressCalls)

	_, err = d.Fetch(ctx, server.URL+"/gone.jar", io.Discard, nil)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = d.Fetch(ctx, server.URL+"/broken.jar", io.Discard, nil)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.NotErrorIs(t, err, ErrNotFound)

	_, err = d.FetchBytes(ctx, server.URL+"/ok.jar", 4)
	assert.Error(t, err, "responses over the limit are refused")
}

func TestBearerRoundTripper(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.Header.Get("Authorization")))
	}))
	defer server.Close()

	client := CreateAuthenticatedClient(server.Client(), "abc")
	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, "Bearer abc", string(body))
	assert.Empty(t, req.Header.Get("Authorization"), "original request is not modified")
}
