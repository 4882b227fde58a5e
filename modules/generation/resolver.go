package generation

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tryon-server/modules/common/utils"
)

// maxRemoteImageBytes - 원격 이미지 최대 크기
const maxRemoteImageBytes = 25 << 20

// ResolvedImage - base64 payload 와 MIME 타입
type ResolvedImage struct {
	Base64   string
	MimeType string
}

// Resolver - 이미지 URL(data URI 또는 원격 URL)을 base64 로 변환
type Resolver struct {
	httpClient   *http.Client
	allowPrivate bool
}

// NewResolver - allowPrivate 가 false 면 사설망/루프백 호스트는 거부
func NewResolver(timeout time.Duration, allowPrivate bool) *Resolver {
	return &Resolver{
		httpClient:   &http.Client{Timeout: timeout},
		allowPrivate: allowPrivate,
	}
}

// ResolveBase64 - data URI 면 첫 콤마 뒤 payload, 원격 URL 이면 다운로드 후 base64
func (r *Resolver) ResolveBase64(ctx context.Context, rawURL string) (string, error) {
	img, err := r.Resolve(ctx, rawURL)
	if err != nil {
		return "", err
	}
	return img.Base64, nil
}

// Resolve - ResolveBase64 + MIME 타입
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (*ResolvedImage, error) {
	if mimeType, payload, ok := utils.SplitDataURI(rawURL); ok {
		if mimeType == "" {
			mimeType = utils.DefaultImageMimeType
		}
		return &ResolvedImage{Base64: payload, MimeType: mimeType}, nil
	}

	data, contentType, err := r.fetch(ctx, rawURL)
	if err != nil {
		log.Printf("❌ [Resolver] Error converting URL to base64: %s: %v", utils.TruncateString(rawURL, 80), err)
		return nil, &ResolutionError{URL: rawURL, Err: err}
	}

	mimeType := contentType
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = utils.DetectImageMimeType(data)
	}

	return &ResolvedImage{
		Base64:   base64.StdEncoding.EncodeToString(data),
		MimeType: mimeType,
	}, nil
}

// fetch - 1회 GET (재시도 없음)
func (r *Resolver) fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	if err := checkURL(rawURL, r.allowPrivate); err != nil {
		return nil, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("failed to download image: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteImageBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image data: %w", err)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("image body is empty")
	}
	if len(data) > maxRemoteImageBytes {
		return nil, "", fmt.Errorf("image exceeds %d bytes", maxRemoteImageBytes)
	}

	contentType := resp.Header.Get("Content-Type")
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	return data, contentType, nil
}

// checkURL - http/https 만 허용, allowPrivate 가 아니면 해석된 모든 IP 를 검사
func checkURL(rawURL string, allowPrivate bool) error {
	parsedURL, err := url.ParseRequestURI(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("unsupported scheme: %s", parsedURL.Scheme)
	}
	if allowPrivate {
		return nil
	}

	host := parsedURL.Hostname()
	var ips []net.IP
	if ip := net.ParseIP(host); ip != nil {
		ips = []net.IP{ip}
	} else {
		resolved, err := net.LookupIP(host)
		if err != nil {
			return fmt.Errorf("failed to resolve host %s: %w", host, err)
		}
		ips = resolved
	}

	if len(ips) == 0 {
		return fmt.Errorf("no IP found for host %s", host)
	}

	for _, ip := range ips {
		if ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
			return fmt.Errorf("restricted network address: %s", ip.String())
		}
	}
	return nil
}
