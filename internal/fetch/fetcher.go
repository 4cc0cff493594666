package fetch

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/snapcache/internal/infrastructure/resilience"
)

// Resource is a successfully fetched response body.
type Resource struct {
	URL      string
	Body     []byte
	MIMEType string
	Charset  string

	sniff bool
}

// Text decodes the body using the declared charset.
func (r *Resource) Text() (string, error) {
	s, name, err := decode(r.Body, r.Charset, r.sniff)
	if err != nil {
		return "", &EncodingError{URL: r.URL, Charset: name, Err: err}
	}
	return s, nil
}

// Options configures a Fetcher.
type Options struct {
	UserAgent    string
	Timeout      time.Duration
	MaxRetries   int
	RateLimit    float64 // requests per second, 0 = unlimited
	SniffCharset bool
	Breaker      resilience.Settings
	Logger       *zap.Logger
}

// Fetcher performs single GET requests with per-origin circuit breaking.
type Fetcher struct {
	client    *resty.Client
	breakers  *resilience.Group
	userAgent string
	sniff     bool
	logger    *zap.Logger

	mu      sync.RWMutex
	limiter *rate.Limiter
}

// New creates a Fetcher.
func New(opts Options) *Fetcher {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.MaxRetries
	retryClient.RetryWaitMin = 250 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = retryLogger{logger.Sugar()}
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	restyClient := resty.NewWithClient(retryClient.StandardClient()).
		SetLogger(logger.Sugar())
	if opts.Timeout > 0 {
		restyClient.SetTimeout(opts.Timeout)
	}

	settings := opts.Breaker
	if settings.IsFailure == nil {
		settings.IsFailure = countsAgainstOrigin
	}
	if settings.OnStateChange == nil {
		settings.OnStateChange = func(name string, from, to resilience.State) {
			logger.Warn("origin breaker state changed",
				zap.String("origin", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		}
	}

	f := &Fetcher{
		client:    restyClient,
		breakers:  resilience.NewGroup(settings),
		userAgent: opts.UserAgent,
		sniff:     opts.SniffCharset,
		logger:    logger,
	}
	f.SetRateLimit(opts.RateLimit)
	return f
}

// SetRateLimit configures rate limiting (requests per second)
func (f *Fetcher) SetRateLimit(rps float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rps <= 0 {
		f.limiter = rate.NewLimiter(rate.Inf, 0)
	} else {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// Origins reports the breaker state of every origin contacted so far.
func (f *Fetcher) Origins() map[string]resilience.State {
	return f.breakers.States()
}

// Fetch GETs rawURL. Values in header override the configured User-Agent.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, header http.Header) (*Resource, error) {
	u, err := url.Parse(rawURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return nil, &FetchError{URL: rawURL, Reason: "invalid URL", Err: err}
	}

	f.mu.RLock()
	limiter := f.limiter
	f.mu.RUnlock()
	if err := limiter.Wait(ctx); err != nil {
		return nil, &FetchError{URL: rawURL, Reason: "rate limited", Err: err}
	}

	var resp *resty.Response
	err = f.breakers.Get(u.Scheme+"://"+u.Host).Guard(func() error {
		req := f.client.R().SetContext(ctx)
		if f.userAgent != "" {
			req.SetHeader("User-Agent", f.userAgent)
		}
		for key, values := range header {
			if len(values) > 0 {
				req.SetHeader(key, values[len(values)-1])
			}
		}

		r, err := req.Get(u.String())
		if err != nil {
			return &FetchError{URL: rawURL, Reason: "request failed", Err: err}
		}
		resp = r
		if r.StatusCode() != http.StatusOK {
			return &FetchError{URL: rawURL, StatusCode: r.StatusCode(), Reason: http.StatusText(r.StatusCode())}
		}
		return nil
	})
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			return nil, fe
		}
		return nil, &FetchError{URL: rawURL, Reason: "origin unavailable", Err: err}
	}

	body := resp.Body()
	if len(body) == 0 {
		return nil, &FetchError{URL: rawURL, StatusCode: resp.StatusCode(), Reason: "empty response body"}
	}

	mediaType, charsetLabel := parseContentType(resp.Header().Get("Content-Type"), body)

	f.logger.Debug("fetched",
		zap.String("url", rawURL),
		zap.String("mime", mediaType),
		zap.Int("bytes", len(body)),
	)

	return &Resource{
		URL:      rawURL,
		Body:     body,
		MIMEType: mediaType,
		Charset:  charsetLabel,
		sniff:    f.sniff,
	}, nil
}

// parseContentType returns the declared media type and charset. Without a
// usable declaration the media type is detected from the body and the
// charset is left empty.
func parseContentType(contentType string, body []byte) (string, string) {
	if contentType != "" {
		if mediaType, params, err := mime.ParseMediaType(contentType); err == nil {
			return mediaType, params["charset"]
		}
	}
	detected, _, err := mime.ParseMediaType(mimetype.Detect(body).String())
	if err != nil {
		return "application/octet-stream", ""
	}
	return detected, ""
}

// countsAgainstOrigin ignores client errors and caller cancellation.
func countsAgainstOrigin(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var fe *FetchError
	if errors.As(err, &fe) && fe.StatusCode != 0 && fe.StatusCode < http.StatusInternalServerError {
		return false
	}
	return true
}

// retryLogger adapts zap to retryablehttp's leveled logger.
type retryLogger struct {
	s *zap.SugaredLogger
}

func (l retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, keysAndValues...)
}

func (l retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.s.Warnw(msg, keysAndValues...)
}

func (l retryLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}
