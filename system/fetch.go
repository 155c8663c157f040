package system

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	herrors "github.com/horizon-installer/hscript/errors"
	"github.com/horizon-installer/hscript/executor"
	"github.com/horizon-installer/hscript/fs"
)

// maxDownload bounds the size of a downloaded key or icon.
const maxDownload = 16 << 20

// HTTPFetcher downloads over HTTP with retries and writes the result
// through a Filesystem.
type HTTPFetcher struct {
	client *retryablehttp.Client
	files  fs.Filesystem
}

var _ Fetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher creates an HTTPFetcher.
func NewHTTPFetcher(files fs.Filesystem, logger *slog.Logger) *HTTPFetcher {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMax = 10 * time.Second
	client.Logger = nil
	if logger != nil {
		client.Logger = logger
	}
	return &HTTPFetcher{client: client, files: files}
}

// Download implements Fetcher.
func (f *HTTPFetcher) Download(ctx context.Context, url, dest string) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return herrors.Wrapf(err, herrors.CodeInvalidInput, "download %s", url)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return herrors.Wrapf(err, herrors.CodeNetwork, "download %s", url)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return herrors.Newf(herrors.CodeNetwork, "download %s: unexpected status %s", url, resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownload+1))
	if err != nil {
		return herrors.Wrapf(err, herrors.CodeNetwork, "download %s", url)
	}
	if len(data) > maxDownload {
		return herrors.Newf(herrors.CodeNetwork, "download %s: larger than %d bytes", url, maxDownload)
	}
	if err := f.files.WriteFile(dest, data, 0o644); err != nil {
		return fmt.Errorf("save %s: %w", url, err)
	}
	return nil
}

// CommandFetcher describes downloads as curl invocations.
type CommandFetcher struct {
	run executor.Runner
}

var _ Fetcher = (*CommandFetcher)(nil)

// NewCommandFetcher creates a CommandFetcher.
func NewCommandFetcher(run executor.Runner) *CommandFetcher {
	return &CommandFetcher{run: run}
}

// Download implements Fetcher.
func (f *CommandFetcher) Download(ctx context.Context, url, dest string) error {
	if _, err := f.run.Run(ctx, []string{"curl", "-fsSL", "--retry", "3", "-o", dest, url}); err != nil {
		return herrors.Wrapf(err, herrors.CodeNetwork, "download %s", url)
	}
	return nil
}
