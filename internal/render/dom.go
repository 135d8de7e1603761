package render

import (
	"bytes"
	"fmt"

	"github.com/PuerkitoBio/goquery"
)

// NoiseSelectors are page elements removed before a capture.
var NoiseSelectors = []string{
	".mdc-top-app-bar",
	"div.buttons-row:nth-child(6)",
	".buttons-row",
	".wallets-table > h3:nth-child(1)",
}

// HasSelector reports whether html contains an element matching selector.
func HasSelector(html []byte, selector string) (bool, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return false, fmt.Errorf("render: parse html: %w", err)
	}
	return doc.Find(selector).Length() > 0, nil
}

// StripNoise removes every element matching selectors and returns the
// re-serialised document.
func StripNoise(html []byte, selectors []string) ([]byte, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("render: parse html: %w", err)
	}
	for _, sel := range selectors {
		doc.Find(sel).Remove()
	}
	out, err := doc.Html()
	if err != nil {
		return nil, fmt.Errorf("render: serialise html: %w", err)
	}
	return []byte(out), nil
}
