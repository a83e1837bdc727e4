package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"time"

	"PromptHarvester/internal/ports"
)

// ErrSSRFBlocked is returned when the target hostname is, or resolves to,
// private address space. The request is refused before any network I/O.
var ErrSSRFBlocked = errors.New("fetch: target resolves to private address space")

// ErrUpstream is returned on DNS failure or a non-2xx upstream status.
var ErrUpstream = errors.New("fetch: upstream error")

const (
	defaultTimeout = 20 * time.Second
	maxBodyBytes   = 4 << 20

	userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

// SafeFetcher performs HTTP GETs with an SSRF guard: hostnames are resolved
// first and refused when any resolved address is loopback, RFC1918,
// link-local, unspecified, or unique-local IPv6. All source strategies route
// outbound requests through it. It does not retry; callers own retry policy.
type SafeFetcher struct {
	client  *http.Client
	resolve func(ctx context.Context, host string) ([]netip.Addr, error)
	logger  *slog.Logger
}

var _ ports.Fetcher = (*SafeFetcher)(nil)

// NewSafeFetcher wires an HTTP client; a nil client gets a 20s timeout.
func NewSafeFetcher(client *http.Client, log *slog.Logger) *SafeFetcher {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	f := &SafeFetcher{
		client: client,
		logger: log,
		resolve: func(ctx context.Context, host string) ([]netip.Addr, error) {
			addrs, err := net.DefaultResolver.LookupNetIP(ctx, "ip", host)
			return addrs, err
		},
	}
	// Re-check every redirect hop so a public host cannot bounce the
	// fetcher into internal address space.
	inner := client.CheckRedirect
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= 5 {
			return fmt.Errorf("stopped after 5 redirects")
		}
		if err := f.guard(req.Context(), req.URL.Hostname()); err != nil {
			return err
		}
		if inner != nil {
			return inner(req, via)
		}
		return nil
	}
	return f
}

// Fetch resolves, guards, and GETs the URL, returning the body text.
func (f *SafeFetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	if err := f.guard(ctx, req.URL.Hostname()); err != nil {
		return "", err
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, ErrSSRFBlocked) {
			return "", ErrSSRFBlocked
		}
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: status %s for %s", ErrUpstream, resp.Status, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("%w: read body: %v", ErrUpstream, err)
	}
	return string(body), nil
}

// guard refuses hostnames that are, or resolve to, private address space.
func (f *SafeFetcher) guard(ctx context.Context, host string) error {
	if host == "" {
		return fmt.Errorf("%w: empty host", ErrUpstream)
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		if isPrivate(addr) {
			return ErrSSRFBlocked
		}
		return nil
	}

	addrs, err := f.resolve(ctx, host)
	if err != nil {
		return fmt.Errorf("%w: resolve %s: %v", ErrUpstream, host, err)
	}
	if len(addrs) == 0 {
		return fmt.Errorf("%w: no addresses for %s", ErrUpstream, host)
	}
	for _, addr := range addrs {
		if isPrivate(addr) {
			if f.logger != nil {
				f.logger.Warn("blocked private target", "host", host, "addr", addr.String())
			}
			return ErrSSRFBlocked
		}
	}
	return nil
}

var uniqueLocalV6 = netip.MustParsePrefix("fc00::/7")

func isPrivate(addr netip.Addr) bool {
	addr = addr.Unmap()
	switch {
	case addr.IsLoopback(),
		addr.IsPrivate(),
		addr.IsLinkLocalUnicast(),
		addr.IsLinkLocalMulticast(),
		addr.IsUnspecified():
		return true
	case addr.Is6() && uniqueLocalV6.Contains(addr):
		return true
	}
	return false
}
