package fetch

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/html/charset"
)

var (
	ErrTimeout = errors.New("fetch timed out")
	ErrIO      = errors.New("fetch failed")
	ErrStatus  = errors.New("unexpected status")
)

const (
	DefaultUserAgent = "Mozilla/5.0 (compatible; BookPriceBot/1.0)"
	DefaultTimeout   = 30 * time.Second

	maxBodyBytes = 8 << 20
)

// HTTPFetcher downloads pages and decodes them to UTF-8 using the declared
// or sniffed charset.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	logger    *slog.Logger
}

type Options struct {
	UserAgent string
	Timeout   time.Duration
	Client    *http.Client
}

func NewHTTPFetcher(opts Options, logger *slog.Logger) *HTTPFetcher {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	return &HTTPFetcher{
		client:    client,
		userAgent: opts.UserAgent,
		logger:    logger.With("component", "http_fetcher"),
	}
}

// Get returns the page body as UTF-8 text.
func (f *HTTPFetcher) Get(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: failed to create request: %v", ErrIO, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("%w: %d for %s", ErrStatus, resp.StatusCode, url)
	}

	body, err := decode(io.LimitReader(resp.Body, maxBodyBytes), resp.Header.Get("Content-Type"))
	if err != nil {
		return "", classify(err)
	}

	f.logger.Debug("page fetched", "url", url, "bytes", len(body))
	return body, nil
}

func decode(r io.Reader, contentType string) (string, error) {
	br := bufio.NewReader(r)
	peek, _ := br.Peek(1024)
	enc, name, _ := charset.DetermineEncoding(peek, contentType)

	decoded := enc.NewDecoder().Reader(br)
	data, err := io.ReadAll(decoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode %s body: %w", name, err)
	}
	return string(data), nil
}

func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrIO, err)
}
