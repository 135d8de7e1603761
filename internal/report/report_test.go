package report

import (
	"bytes"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/FranksOps/bubblescope/internal/domain"
	"github.com/FranksOps/bubblescope/internal/storage"
)

func TestGenerateSummary(t *testing.T) {
	now := time.Now()

	objects := []*storage.ObjectInfo{
		{Key: "bubble-map-pages/eth-0x1.html", Folder: "bubble-map-pages", ContentType: "text/html; charset=utf-8", Size: 300, CreatedAt: now},
		{Key: "bubble-map-image/eth-0x1.jpg", Folder: "bubble-map-image", ContentType: "image/jpeg", Size: 1000, CreatedAt: now.Add(-time.Hour)},
		{Key: "bubble-map-image/bsc-0x2.jpg", Folder: "bubble-map-image", ContentType: "image/jpeg", Size: 24, CreatedAt: now.Add(time.Minute)},
	}

	summary := GenerateSummary(objects)

	if summary.TotalObjects != 3 {
		t.Errorf("expected 3 objects, got %d", summary.TotalObjects)
	}
	if summary.TotalBytes != 1324 {
		t.Errorf("expected 1324 bytes, got %d", summary.TotalBytes)
	}
	if summary.ObjectsByType["image/jpeg"] != 2 {
		t.Errorf("expected 2 jpegs, got %d", summary.ObjectsByType["image/jpeg"])
	}
	if summary.BytesByFolder["bubble-map-image"] != 1024 {
		t.Errorf("expected 1024 image bytes, got %d", summary.BytesByFolder["bubble-map-image"])
	}
	if !summary.Oldest.Equal(now.Add(-time.Hour)) || !summary.Newest.Equal(now.Add(time.Minute)) {
		t.Errorf("unexpected range %v - %v", summary.Oldest, summary.Newest)
	}
}

func TestWriteText(t *testing.T) {
	summary := GenerateSummary([]*storage.ObjectInfo{
		{Folder: "bubble-map-image", ContentType: "image/jpeg", Size: 2048, CreatedAt: time.Now()},
	})

	var buf bytes.Buffer
	if err := WriteText(&buf, summary); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "Objects:  1 (2.0 KiB)") {
		t.Errorf("expected object count line, got:\n%s", out)
	}
	if !strings.Contains(out, "bubble-map-image: 2.0 KiB") {
		t.Errorf("expected folder line, got:\n%s", out)
	}
}

func TestWriteTextEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteText(&buf, GenerateSummary(nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(buf.String(), "Oldest") {
		t.Errorf("empty summary should not print a time range")
	}
}

func TestWriteResult(t *testing.T) {
	res := &domain.PipelineResult{
		Status:  domain.StatusPartial,
		Chain:   domain.ChainETH,
		Address: "0xdac17f958d2ee523a2206206994597c13d831ec7",
		TokenData: &domain.TokenMarketData{
			Name: "Tether", Symbol: "USDT",
			Price: decimal.RequireFromString("1.0001"), MarketCap: 83000000000,
		},
		Failures: []domain.StageFailure{{Stage: domain.StageScreenshotGraph, Error: "render timeout"}},
	}

	var buf bytes.Buffer
	if err := WriteResult(&buf, res); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"Status:      partial",
		"Chain:       Ethereum",
		"Token:       Tether (USDT)",
		"Price:       $1.0001",
		"Market Cap:  $83,000,000,000",
		"screenshot_graph: render timeout",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Score:") {
		t.Errorf("metrics line should be omitted without metrics")
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, &domain.PipelineResult{Status: domain.StatusFailed}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), `"status": "failed"`) {
		t.Errorf("expected status field, got %s", buf.String())
	}
}

func TestCaption(t *testing.T) {
	followers := int64(1234567)
	md := &domain.TokenMarketData{
		Description: "Tether is a *stable* coin_token.",
		Community: domain.CommunityLinks{
			HomePage:         "https://tether.to/",
			TwitterHandle:    "@Tether_to",
			TwitterFollowers: &followers,
			TelegramChannel:  "tether",
			Repo:             "https://github.com/tether",
			WhitePaper:       "https://tether.to/wp.pdf",
		},
	}

	got := Caption(md)
	want := "📝 *Description:*\nTether is a \\*stable\\* coin\\_token.\n\n" +
		"🔗 *Community Links:*\n" +
		"🌐 [Website](https://tether.to/) | " +
		"🐦 [Twitter](https://twitter.com/Tether_to) (1,234,567 followers) | " +
		"📢 [Telegram](https://t.me/tether) | " +
		"💻 [GitHub](https://github.com/tether) | " +
		"📄 [Whitepaper](https://tether.to/wp.pdf)"
	if got != want {
		t.Errorf("unexpected caption:\n got: %q\nwant: %q", got, want)
	}
}

func TestCaptionPartialData(t *testing.T) {
	zero := int64(0)
	tests := []struct {
		name string
		md   *domain.TokenMarketData
		want string
	}{
		{"nil", nil, ""},
		{"empty", &domain.TokenMarketData{}, ""},
		{"description only", &domain.TokenMarketData{Description: "  Hi  "}, "📝 *Description:*\nHi"},
		{
			"zero followers",
			&domain.TokenMarketData{Community: domain.CommunityLinks{TwitterHandle: "x", TwitterFollowers: &zero}},
			"🔗 *Community Links:*\n🐦 [Twitter](https://twitter.com/x)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Caption(tt.md); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCaptionTruncatesDescription(t *testing.T) {
	md := &domain.TokenMarketData{
		Description: strings.Repeat("a_", 2000),
		Community:   domain.CommunityLinks{HomePage: "https://example.com"},
	}

	got := Caption(md)
	if n := utf8.RuneCountInString(got); n > MaxCaption {
		t.Fatalf("caption has %d characters, limit %d", n, MaxCaption)
	}
	if !strings.HasSuffix(got, "🌐 [Website](https://example.com)") {
		t.Errorf("links must survive truncation")
	}
	if !strings.Contains(got, "…\n\n🔗") {
		t.Errorf("expected an ellipsis before the links")
	}
	if strings.Contains(got, "\\…") {
		t.Errorf("escape sequence split by truncation")
	}
}
