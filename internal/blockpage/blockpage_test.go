package blockpage

import (
	"net/http"
	"testing"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name   string
		status int
		header http.Header
		body   string
		want   string
	}{
		{"plain json", 200, http.Header{"Server": {"cloudflare"}}, `{"ok":true}`, ""},
		{"api 403 without signature", 403, http.Header{"Server": {"nginx"}}, `{"error":"forbidden"}`, ""},
		{"cloudflare header", 403, http.Header{"Server": {"cloudflare"}}, "Access Denied", "Cloudflare"},
		{"cloudflare body", 503, http.Header{}, "<html>... cf-turnstile ...</html>", "Cloudflare"},
		{"akamai header", 403, http.Header{"Server": {"AkamaiGHost"}}, "", "Akamai"},
		{"akamai body", 403, http.Header{}, "Access Denied. Reference #18.1234", "Akamai"},
		{"datadome header", 403, http.Header{"X-Datadome": {"protected"}}, "", "DataDome"},
		{"datadome body", 403, http.Header{}, `<script src="https://geo.captcha-delivery.com/c.js">`, "DataDome"},
		{"perimeterx body", 403, http.Header{}, `<div id="px-captcha"></div>`, "PerimeterX"},
		{"perimeterx needs 403", 503, http.Header{}, `<div id="px-captcha"></div>`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, ok := Detect(tt.status, tt.header, []byte(tt.body))
			if ok != (tt.want != "") || src != tt.want {
				t.Errorf("Detect() = %q, %v; want %q", src, ok, tt.want)
			}
		})
	}
}

func TestAnalyzeNil(t *testing.T) {
	if _, ok := Analyze(nil, DefaultDetectors()); ok {
		t.Error("expected nil response to pass")
	}
}
