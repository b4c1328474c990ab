package apihttp

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"cineamore/catalogservice/internal/providers/tmdb"
)

const (
	maxProxiedImageBytes = int64(20 << 20)
	imageCacheControl    = "public, max-age=31536000, immutable"
	imageUserAgent       = "cineamore-catalogue/1.0"
	maxImageRedirects    = 5
)

var errBlockedImageHost = errors.New("blocked image host")

// TMDB artwork hosts, matched as the host itself or any subdomain.
var trustedImageHosts = []string{"tmdb.org", "themoviedb.org"}

// Names of the compose services next to the catalogue.
var internalImageHosts = map[string]struct{}{
	"localhost": {}, "mongo": {}, "mongodb": {}, "redis": {}, "catalogue": {}, "otel-collector": {},
}

// imageProxy serves GET /api/image. The source is either ?url=<absolute
// url> or ?path=<tmdb poster path>.
type imageProxy struct {
	client *http.Client
	logger *slog.Logger
}

func newImageProxy(logger *slog.Logger) *imageProxy {
	dialer := &net.Dialer{
		Timeout:   8 * time.Second,
		KeepAlive: 30 * time.Second,
		Control:   publicAddressOnly,
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext

	return &imageProxy{
		client: &http.Client{
			Timeout:   12 * time.Second,
			Transport: otelhttp.NewTransport(transport),
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxImageRedirects {
					return errors.New("too many redirects")
				}
				return checkImageURL(req.URL)
			},
		},
		logger: logger,
	}
}

func (p *imageProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	target, err := imageTarget(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target.String(), nil)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid url")
		return
	}
	req.Header.Set("User-Agent", imageUserAgent)
	req.Header.Set("Accept", "image/avif,image/webp,image/*;q=0.8")

	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, errBlockedImageHost) {
			writeError(w, http.StatusBadRequest, "invalid_request", errBlockedImageHost.Error())
			return
		}
		p.logger.Warn("image fetch failed",
			slog.String("host", target.Hostname()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "upstream_error", "failed to fetch image")
		return
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		writeError(w, http.StatusNotFound, "not_found", "image not found")
		return
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		writeError(w, http.StatusBadGateway, "upstream_error", "upstream returned "+resp.Status)
		return
	case resp.ContentLength > maxProxiedImageBytes:
		writeError(w, http.StatusBadGateway, "upstream_error", "image too large")
		return
	}

	body := io.LimitReader(resp.Body, maxProxiedImageBytes)
	sniff := make([]byte, 512)
	n, _ := io.ReadFull(body, sniff)
	sniff = sniff[:n]

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(sniff)
	}
	if !strings.HasPrefix(strings.ToLower(contentType), "image/") {
		writeError(w, http.StatusBadGateway, "upstream_error", "upstream did not return an image")
		return
	}

	header := w.Header()
	header.Set("Content-Type", contentType)
	header.Set("Cache-Control", imageCacheControl)
	if resp.ContentLength > 0 {
		header.Set("Content-Length", strconv.FormatInt(resp.ContentLength, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(sniff); err != nil {
		return
	}
	_, _ = io.Copy(w, body)
}

func imageTarget(query url.Values) (*url.URL, error) {
	if path := strings.TrimSpace(query.Get("path")); path != "" {
		if !strings.HasPrefix(path, "/") || strings.Contains(path, "..") {
			return nil, errors.New("invalid poster path")
		}
		return url.Parse(tmdb.PosterURL(path))
	}
	raw := strings.TrimSpace(query.Get("url"))
	if raw == "" {
		return nil, errors.New("missing url")
	}
	target, err := url.Parse(raw)
	if err != nil {
		return nil, errors.New("invalid url")
	}
	if err := checkImageURL(target); err != nil {
		return nil, err
	}
	return target, nil
}

// checkImageURL rejects non-web schemes and hosts that are obviously
// internal. Hostnames that only resolve to private addresses are caught when
// dialing.
func checkImageURL(u *url.URL) error {
	if u == nil {
		return errors.New("invalid url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("unsupported url scheme")
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return errors.New("invalid url host")
	}
	if isTrustedImageHost(host) {
		return nil
	}
	if _, internal := internalImageHosts[host]; internal {
		return errBlockedImageHost
	}
	if strings.HasSuffix(host, ".local") || strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".internal") {
		return errBlockedImageHost
	}
	if ip := net.ParseIP(host); ip != nil && !isPublicIP(ip) {
		return errBlockedImageHost
	}
	return nil
}

func isTrustedImageHost(host string) bool {
	for _, trusted := range trustedImageHosts {
		if host == trusted || strings.HasSuffix(host, "."+trusted) {
			return true
		}
	}
	return false
}

// publicAddressOnly runs after DNS resolution, so a public name that
// resolves to a private address is refused too.
func publicAddressOnly(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip := net.ParseIP(host)
	if ip == nil || !isPublicIP(ip) {
		return errBlockedImageHost
	}
	return nil
}

func isPublicIP(ip net.IP) bool {
	return !(ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsMulticast())
}
