package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	infralogger "github.com/jonesrussell/north-cloud/importer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/importer/infrastructure/retry"
	"github.com/jonesrussell/north-cloud/importer/internal/domain"
	"github.com/jonesrussell/north-cloud/importer/internal/plugin"
)

const (
	defaultHTTPTimeout  = 30 * time.Second
	defaultUserAgent    = "north-cloud-importer/1.0"
	defaultMaxBodyBytes = 64 << 20
)

var (
	errMissingURL = errors.New("no url configured")
	// ErrBodyTooLarge means the response exceeded the configured size limit.
	ErrBodyTooLarge = errors.New("response body too large")
)

// HTTPConfig configures the HTTP fetcher. URL is normally set per source.
type HTTPConfig struct {
	URL                string            `mapstructure:"url"`
	Timeout            time.Duration     `mapstructure:"timeout"`
	UserAgent          string            `mapstructure:"user_agent"`
	Headers            map[string]string `mapstructure:"headers"`
	DisableConditional bool              `mapstructure:"disable_conditional"`
	// MaxBodyBytes caps the response size; larger bodies fail the fetch.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`
}

// HTTPFetcher downloads a source URL with conditional GET, retries and rate limiting.
type HTTPFetcher struct {
	client      *http.Client
	state       HTTPStateStore
	limiter     *rate.Limiter
	retry       retry.Config
	downloadDir string
	defaults    map[string]any
	userAgent   string
	cache       *DownloadCache
	log         infralogger.Logger
}

// NewHTTPFromConfig is the registry factory for "http".
func NewHTTPFromConfig(cfg map[string]any, deps Deps) (Fetcher, error) {
	var probe HTTPConfig
	if err := plugin.Decode(cfg, &probe); err != nil {
		return nil, err
	}
	return NewHTTPFetcher(cfg, deps), nil
}

// NewHTTPFetcher creates an HTTP fetcher with type-level defaults.
func NewHTTPFetcher(defaults map[string]any, deps Deps) *HTTPFetcher {
	client := deps.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	var limiter *rate.Limiter
	if deps.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(deps.RequestsPerSecond), 1)
	}
	ua := deps.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	log := deps.Logger
	if log == nil {
		log = infralogger.NewNop()
	}
	cfg := deps.Retry
	if cfg.IsRetryable == nil {
		cfg.IsRetryable = isRetryable
	}

	return &HTTPFetcher{
		client:      client,
		state:       deps.HTTPState,
		limiter:     limiter,
		retry:       cfg,
		downloadDir: deps.DownloadDir,
		defaults:    defaults,
		userAgent:   ua,
		cache:       NewDownloadCache(),
		log:         log,
	}
}

// statusError is a non-2xx, non-304 response.
type statusError struct {
	code int
}

func (e *statusError) Error() string { return fmt.Sprintf("HTTP %d", e.code) }

func isRetryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= http.StatusInternalServerError
	}
	return retry.DefaultIsRetryable(err)
}

type httpResponse struct {
	status       int
	body         []byte
	contentType  string
	etag         *string
	lastModified *string
}

// Fetch downloads the source URL.
func (f *HTTPFetcher) Fetch(ctx context.Context, src *domain.Source) (Outcome, error) {
	var cfg HTTPConfig
	if err := plugin.Decode(plugin.Merge(f.defaults, src.PluginConfig(domain.RoleFetcher)), &cfg); err != nil {
		return Outcome{}, &domain.FetchError{SourceID: src.ID, Cause: err}
	}
	if cfg.URL == "" {
		return Outcome{}, &domain.FetchError{SourceID: src.ID, Cause: errMissingURL}
	}

	if body, ct, ok := f.cache.Get(cfg.URL); ok {
		f.log.Debug("Download cache hit", infralogger.SourceID(src.ID), infralogger.String("url", cfg.URL))
		return f.result(src, cfg.URL, body, ct)
	}

	var etag, lastModified *string
	if f.state != nil && !cfg.DisableConditional {
		st, err := f.state.GetOrCreate(ctx, src.ID, cfg.URL)
		if err != nil {
			return Outcome{}, &domain.FetchError{SourceID: src.ID, URL: cfg.URL, Cause: err}
		}
		if st.URL == cfg.URL {
			etag, lastModified = st.ETag, st.LastModified
		}
	}

	var resp *httpResponse
	err := retry.Retry(ctx, f.retry, func() error {
		if f.limiter != nil {
			if waitErr := f.limiter.Wait(ctx); waitErr != nil {
				return retry.Permanent(waitErr)
			}
		}
		r, doErr := f.do(ctx, cfg, etag, lastModified)
		if doErr != nil {
			return doErr
		}
		if r.status != http.StatusNotModified && (r.status < 200 || r.status > 299) {
			return &statusError{code: r.status}
		}
		resp = r
		return nil
	})
	if err != nil {
		return Outcome{}, f.fail(ctx, src, cfg.URL, err)
	}

	if resp.status == http.StatusNotModified {
		if resp.etag == nil {
			resp.etag = etag
		}
		if resp.lastModified == nil {
			resp.lastModified = lastModified
		}
	}

	if f.state != nil {
		if upErr := f.state.UpdateSuccess(ctx, src.ID, HTTPFetchSuccess{
			URL:          cfg.URL,
			ETag:         resp.etag,
			LastModified: resp.lastModified,
			StatusCode:   resp.status,
		}); upErr != nil {
			f.log.Warn("Failed to store HTTP cache headers", infralogger.SourceID(src.ID), infralogger.Error(upErr))
		}
	}

	if resp.status == http.StatusNotModified {
		return NotModified(), nil
	}

	f.cache.Put(cfg.URL, resp.body, resp.contentType)
	return f.result(src, cfg.URL, resp.body, resp.contentType)
}

func (f *HTTPFetcher) do(ctx context.Context, cfg HTTPConfig, etag, lastModified *string) (*httpResponse, error) {
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.URL, http.NoBody)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("http fetcher new request: %w", err))
	}

	ua := f.userAgent
	if cfg.UserAgent != "" {
		ua = cfg.UserAgent
	}
	req.Header.Set("User-Agent", ua)
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}
	if etag != nil {
		req.Header.Set("If-None-Match", *etag)
	}
	if lastModified != nil {
		req.Header.Set("If-Modified-Since", *lastModified)
	}

	res, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http fetcher do request: %w", err)
	}
	defer res.Body.Close()

	out := &httpResponse{status: res.StatusCode, contentType: res.Header.Get("Content-Type")}
	if v := res.Header.Get("ETag"); v != "" {
		out.etag = &v
	}
	if v := res.Header.Get("Last-Modified"); v != "" {
		out.lastModified = &v
	}
	if res.StatusCode == http.StatusNotModified {
		return out, nil
	}

	limit := cfg.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}
	body, err := io.ReadAll(io.LimitReader(res.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("http fetcher read body: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, retry.Permanent(fmt.Errorf("%w: exceeds %d bytes", ErrBodyTooLarge, limit))
	}
	out.body = body
	return out, nil
}

func (f *HTTPFetcher) result(src *domain.Source, url string, body []byte, contentType string) (Outcome, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return Empty(), nil
	}

	r := &domain.FetchResult{URL: url, ContentType: contentType}
	if f.downloadDir == "" {
		r.Raw = body
		return Data(r), nil
	}

	if err := os.MkdirAll(f.downloadDir, 0o750); err != nil {
		return Outcome{}, &domain.FetchError{SourceID: src.ID, URL: url, Cause: err}
	}
	path := filepath.Join(f.downloadDir, src.ID+"-"+uuid.New().String())
	if err := os.WriteFile(path, body, 0o600); err != nil {
		return Outcome{}, &domain.FetchError{SourceID: src.ID, URL: url, Cause: err}
	}
	r.Path = path
	r.Temporary = true
	return Data(r), nil
}

func (f *HTTPFetcher) fail(ctx context.Context, src *domain.Source, url string, err error) error {
	fetchErr := &domain.FetchError{SourceID: src.ID, URL: url, Cause: err}
	var se *statusError
	if errors.As(err, &se) {
		fetchErr.StatusCode = se.code
	}

	if f.state != nil {
		if upErr := f.state.UpdateError(ctx, src.ID, err.Error()); upErr != nil {
			f.log.Warn("Failed to record fetch error", infralogger.SourceID(src.ID), infralogger.Error(upErr))
		}
	}
	return fetchErr
}

// Clear forgets the conditional-request state so the next import downloads in full.
func (f *HTTPFetcher) Clear(ctx context.Context, src *domain.Source) error {
	if f.state == nil {
		return nil
	}
	if err := f.state.Delete(ctx, src.ID); err != nil {
		return fmt.Errorf("clear http state for %s: %w", src.ID, err)
	}
	return nil
}
