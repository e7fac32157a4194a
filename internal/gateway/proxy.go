package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"task-gateway/internal/monitoring"
)

const defaultContentType = "application/json"

// Headers never copied upstream, in canonical form.
var deniedHeaders = map[string]bool{
	"Host":                true,
	"Accept-Encoding":     true,
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Proxy-Connection":    true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

// Prefixes of internal routing headers, in canonical form.
var deniedHeaderPrefixes = []string{"X-Middleware-", "X-Gateway-"}

type ForwarderConfig struct {
	// Name labels logs and metrics, e.g. "api" or "frontend".
	Name        string
	UpstreamURL string
	// Prefix is stripped from the incoming path before it is appended to UpstreamURL.
	Prefix  string
	Timeout time.Duration
}

// ProxyForwarder relays one request to the upstream and the upstream's status,
// body and content type back. It keeps no per-request state and never retries.
type ProxyForwarder struct {
	name      string
	upstream  string
	prefix    string
	timeout   time.Duration
	client    *http.Client
	extractor *CredentialExtractor
	logger    *zap.Logger
}

func NewProxyForwarder(cfg ForwarderConfig, extractor *CredentialExtractor, logger *zap.Logger) (*ProxyForwarder, error) {
	base, err := url.Parse(cfg.UpstreamURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("upstream url must be http or https, got %q", cfg.UpstreamURL)
	}
	if cfg.Timeout <= 0 {
		return nil, errors.New("upstream timeout must be positive")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DisableCompression = true

	return &ProxyForwarder{
		name:     cfg.Name,
		upstream: strings.TrimRight(cfg.UpstreamURL, "/"),
		prefix:   strings.TrimRight(cfg.Prefix, "/"),
		timeout:  cfg.Timeout,
		client: &http.Client{
			Transport: transport,
			// Upstream redirects belong to the caller.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		extractor: extractor,
		logger:    logger.With(zap.String("upstream", cfg.Name)),
	}, nil
}

// Route is the gin pattern that captures everything under the prefix.
func (f *ProxyForwarder) Route() string {
	return f.prefix + "/*path"
}

// Forward is the gin handler for proxied routes.
func (f *ProxyForwarder) Forward(c *gin.Context) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(c.Request.Context(), f.timeout)
	defer cancel()

	outReq, err := f.NewUpstreamRequest(ctx, c.Request)
	if err != nil {
		f.fail(c, err, start)
		return
	}

	resp, err := f.client.Do(outReq)
	if err != nil {
		f.fail(c, err, start)
		return
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = defaultContentType
	}

	c.DataFromReader(resp.StatusCode, resp.ContentLength, contentType, resp.Body, nil)

	outcome := "ok"
	if len(c.Errors) > 0 {
		// Headers are already sent; the stream was cut short.
		outcome = "stream_error"
		f.logger.Warn("upstream body relay interrupted",
			zap.String("path", c.Request.URL.Path),
			zap.Error(c.Errors.Last()),
		)
	}
	monitoring.ObserveProxy(f.name, outcome, time.Since(start))
}

// NewUpstreamRequest builds the outgoing request. The body is passed through
// without buffering.
func (f *ProxyForwarder) NewUpstreamRequest(ctx context.Context, in *http.Request) (*http.Request, error) {
	var body = in.Body
	if in.ContentLength == 0 {
		body = nil
	}

	out, err := http.NewRequestWithContext(ctx, in.Method, f.TargetURL(in.URL), body)
	if err != nil {
		return nil, fmt.Errorf("failed to build upstream request: %w", err)
	}
	out.ContentLength = in.ContentLength
	if body == nil {
		out.ContentLength = 0
	}

	copyHeaders(out.Header, in.Header)

	if f.extractor != nil {
		if cred, ok := f.extractor.FromCookie(in); ok {
			out.Header.Set("Authorization", "Bearer "+cred.Token)
		}
	}

	return out, nil
}

// TargetURL keeps the remaining path and the raw query exactly as received.
func (f *ProxyForwarder) TargetURL(in *url.URL) string {
	remaining := strings.TrimPrefix(in.EscapedPath(), f.prefix)
	if remaining != "" && !strings.HasPrefix(remaining, "/") {
		remaining = "/" + remaining
	}

	target := f.upstream + remaining
	if in.RawQuery != "" {
		target += "?" + in.RawQuery
	}
	return target
}

func (f *ProxyForwarder) fail(c *gin.Context, err error, start time.Time) {
	status, message, outcome := http.StatusInternalServerError, "Proxy error", "error"
	if isTimeout(err) {
		status, message, outcome = http.StatusGatewayTimeout, "Gateway timeout", "timeout"
	}

	f.logger.Error("proxy request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("outcome", outcome),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(err),
	)
	monitoring.ObserveProxy(f.name, outcome, time.Since(start))

	c.AbortWithStatusJSON(status, gin.H{"message": message})
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func copyHeaders(dst, src http.Header) {
	// Headers named by Connection are hop-by-hop as well.
	connectionScoped := map[string]bool{}
	for _, value := range src.Values("Connection") {
		for _, name := range strings.Split(value, ",") {
			if name = strings.TrimSpace(name); name != "" {
				connectionScoped[http.CanonicalHeaderKey(name)] = true
			}
		}
	}

	for name, values := range src {
		canonical := http.CanonicalHeaderKey(name)
		if isDeniedHeader(canonical) || connectionScoped[canonical] {
			continue
		}
		for _, value := range values {
			dst.Add(canonical, value)
		}
	}
}

func isDeniedHeader(canonical string) bool {
	if deniedHeaders[canonical] {
		return true
	}
	for _, prefix := range deniedHeaderPrefixes {
		if strings.HasPrefix(canonical, prefix) {
			return true
		}
	}
	return false
}
