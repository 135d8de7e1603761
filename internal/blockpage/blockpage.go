// Package blockpage recognizes answers from bot-protection front ends that
// stand in for the real API response. The upstreams sit behind CDNs that
// sometimes return a challenge page instead of JSON; callers report those
// as blocked rather than as a generic bad status.
package blockpage

import (
	"bytes"
	"net/http"
	"strings"
)

// Response is the part of an HTTP answer the detectors look at.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Detector reports whether r is a block page and which vendor served it.
type Detector func(r *Response) (source string, ok bool)

// DefaultDetectors returns the vendors seen in front of the upstream APIs.
func DefaultDetectors() []Detector {
	return []Detector{
		cloudflare,
		akamai,
		dataDome,
		perimeterX,
	}
}

// Detect runs r through DefaultDetectors.
func Detect(statusCode int, header http.Header, body []byte) (string, bool) {
	return Analyze(&Response{StatusCode: statusCode, Header: header, Body: body}, DefaultDetectors())
}

// Analyze returns the first matching detector's source.
func Analyze(r *Response, detectors []Detector) (string, bool) {
	if r == nil {
		return "", false
	}
	for _, d := range detectors {
		if src, ok := d(r); ok {
			return src, true
		}
	}
	return "", false
}

func server(r *Response) string {
	return strings.ToLower(r.Header.Get("Server"))
}

func cloudflare(r *Response) (string, bool) {
	if r.StatusCode != http.StatusForbidden && r.StatusCode != http.StatusServiceUnavailable {
		return "", false
	}
	if strings.Contains(server(r), "cloudflare") {
		return "Cloudflare", true
	}
	for _, sig := range []string{"cf-browser-verification", "cloudflare-nginx", "cf-turnstile", "Attention Required! | Cloudflare"} {
		if bytes.Contains(r.Body, []byte(sig)) {
			return "Cloudflare", true
		}
	}
	return "", false
}

func akamai(r *Response) (string, bool) {
	if r.StatusCode != http.StatusForbidden {
		return "", false
	}
	if strings.Contains(server(r), "akamai") {
		return "Akamai", true
	}
	// Generic "Reference #" denial page.
	if bytes.Contains(r.Body, []byte("Reference #")) && bytes.Contains(r.Body, []byte("Access Denied")) {
		return "Akamai", true
	}
	return "", false
}

func dataDome(r *Response) (string, bool) {
	if r.StatusCode != http.StatusForbidden {
		return "", false
	}
	if strings.Contains(server(r), "datadome") ||
		r.Header.Get("X-DataDome") != "" ||
		r.Header.Get("X-DataDome-Response") != "" {
		return "DataDome", true
	}
	if bytes.Contains(r.Body, []byte("geo.captcha-delivery.com")) {
		return "DataDome", true
	}
	return "", false
}

func perimeterX(r *Response) (string, bool) {
	if r.StatusCode != http.StatusForbidden {
		return "", false
	}
	if r.Header.Get("X-Px-Captcha") != "" {
		return "PerimeterX", true
	}
	for _, sig := range []string{"client.perimeterx.net", "px-captcha", "_pxBlock"} {
		if bytes.Contains(r.Body, []byte(sig)) {
			return "PerimeterX", true
		}
	}
	return "", false
}
