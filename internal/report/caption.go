package report

import (
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"github.com/FranksOps/bubblescope/internal/domain"
)

// MaxCaption is the longest photo caption Telegram accepts, in characters.
const MaxCaption = 1024

var markdownEscaper = strings.NewReplacer("_", `\_`, "*", `\*`, "`", "\\`", "[", `\[`)

// Caption renders the chat caption for a token card: the project
// description followed by its community links, in Telegram Markdown. The
// description is shortened so the result fits MaxCaption and the links
// always survive.
func Caption(md *domain.TokenMarketData) string {
	if md == nil {
		return ""
	}

	var tail string
	if links := communityLinks(md.Community); len(links) > 0 {
		tail = "🔗 *Community Links:*\n" + strings.Join(links, " | ")
	}

	var head string
	if desc := strings.TrimSpace(md.Description); desc != "" {
		const label = "📝 *Description:*\n"
		budget := MaxCaption - utf8.RuneCountInString(label)
		if tail != "" {
			budget -= utf8.RuneCountInString(tail) + 2
		}
		if budget > 1 {
			head = label + fitEscaped(desc, budget)
		}
	}

	var out string
	switch {
	case head != "" && tail != "":
		out = head + "\n\n" + tail
	case head != "":
		out = head
	default:
		out = tail
	}
	return truncateRunes(out, MaxCaption)
}

func communityLinks(c domain.CommunityLinks) []string {
	var links []string
	if c.HomePage != "" {
		links = append(links, "🌐 [Website]("+c.HomePage+")")
	}
	if handle := strings.TrimLeft(c.TwitterHandle, "@"); handle != "" {
		link := "🐦 [Twitter](https://twitter.com/" + handle + ")"
		if c.TwitterFollowers != nil && *c.TwitterFollowers > 0 {
			link += " (" + humanize.Comma(*c.TwitterFollowers) + " followers)"
		}
		links = append(links, link)
	}
	if c.TelegramChannel != "" {
		links = append(links, "📢 [Telegram](https://t.me/"+c.TelegramChannel+")")
	}
	if c.Repo != "" {
		links = append(links, "💻 [GitHub]("+c.Repo+")")
	}
	if c.WhitePaper != "" {
		links = append(links, "📄 [Whitepaper]("+c.WhitePaper+")")
	}
	return links
}

// fitEscaped escapes s for Markdown and cuts it to at most budget runes,
// ending with an ellipsis when cut. An escape sequence is never split.
func fitEscaped(s string, budget int) string {
	escaped := markdownEscaper.Replace(s)
	if utf8.RuneCountInString(escaped) <= budget {
		return escaped
	}

	var b strings.Builder
	n := 0
	for _, r := range s {
		w := 1
		if strings.ContainsRune("_*`[", r) {
			w = 2
		}
		if n+w > budget-1 {
			break
		}
		if w == 2 {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
		n += w
	}
	return strings.TrimRight(b.String(), " \n") + "…"
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
