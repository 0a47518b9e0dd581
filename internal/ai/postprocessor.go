package ai

import (
	"hash/fnv"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/bilgisen/feedcaster/internal/utils"
)

const (
	// MaxPostLength is the visible length bound of every finished post.
	MaxPostLength = 1000

	maxHashtags      = 5
	maxHashtagRunes  = 30
	minContentLength = 80
)

var (
	thinkBlock    = regexp.MustCompile(`(?is)<think>.*?</think>`)
	controlChars  = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)
	mdBold        = regexp.MustCompile(`\*\*(.+?)\*\*|__(.+?)__`)
	mdItalic      = regexp.MustCompile(`(^|[^*\w])\*([^*\n]+?)\*([^*\w]|$)`)
	mdCode        = regexp.MustCompile("`([^`\n]+)`")
	mdHeading     = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)
	hashtagStrip  = regexp.MustCompile(`[^\p{L}\p{N}_]`)
	leakedMarkers = []string{
		"title:", "content:", "требования:", "правила:", "requirements:",
		"system prompt", "as an ai", "как ии", "<think",
	}
)

// PostProcessor turns raw model output into a finished channel post. The
// result always starts with an emoji, ends with a hashtag line and fits in
// maxLength visible characters.
type PostProcessor struct {
	maxLength int
}

func NewPostProcessor() *PostProcessor {
	return &PostProcessor{maxLength: MaxPostLength}
}

// Problem returns why raw model output is unusable, or "" if it is fine.
func (p *PostProcessor) Problem(raw string) string {
	txt := strings.TrimSpace(thinkBlock.ReplaceAllString(raw, ""))
	if utf8.RuneCountInString(utils.PlainText(txt)) < minContentLength {
		return "too short"
	}
	lower := strings.ToLower(txt)
	for _, m := range leakedMarkers {
		if strings.Contains(lower, m) {
			return "leaked instruction marker " + m
		}
	}
	return ""
}

// Finish applies the presentation contract to raw text.
func (p *PostProcessor) Finish(raw, topic string) string {
	txt := p.cleanText(raw)
	if strings.Contains(txt, "**") || strings.Contains(txt, "__") || strings.Contains(txt, "`") || mdHeading.MatchString(txt) {
		txt = markdownToHTML(txt)
	}

	lines := strings.Split(txt, "\n")
	body, tags := splitHashtags(lines)
	if len(tags) == 0 {
		tags = HashtagsFor(topic)
	}

	body = boldFirstLine(body)
	html := utils.Sanitize(strings.TrimSpace(strings.Join(body, "\n")))

	if !startsWithEmoji(html) {
		html = EmojiFor(topic, raw) + " " + html
	}

	tagLine := strings.Join(tags, " ")
	budget := p.maxLength - utf8.RuneCountInString(tagLine) - 2
	if budget < 0 {
		budget = 0
	}
	html = strings.TrimSpace(utils.TruncateHTML(html, budget))

	return html + "\n\n" + tagLine
}

// cleanText removes reasoning blocks and control characters and normalizes line endings
func (p *PostProcessor) cleanText(s string) string {
	s = thinkBlock.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = controlChars.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func markdownToHTML(s string) string {
	s = mdHeading.ReplaceAllString(s, "<b>$1</b>")
	s = mdBold.ReplaceAllStringFunc(s, func(m string) string {
		parts := mdBold.FindStringSubmatch(m)
		return "<b>" + parts[1] + parts[2] + "</b>"
	})
	s = mdItalic.ReplaceAllString(s, "$1<i>$2</i>$3")
	s = mdCode.ReplaceAllString(s, "<code>$1</code>")
	return s
}

// splitHashtags detaches a trailing hashtag line and normalizes its tags.
func splitHashtags(lines []string) ([]string, []string) {
	last := len(lines) - 1
	for last >= 0 && strings.TrimSpace(lines[last]) == "" {
		last--
	}
	if last < 0 || !strings.Contains(lines[last], "#") {
		return lines[:last+1], nil
	}

	fields := strings.Fields(lines[last])
	var tags []string
	for _, f := range fields {
		if !strings.HasPrefix(f, "#") {
			// A sentence that merely contains a '#', not a tag line.
			return lines[:last+1], nil
		}
		if tag := normalizeHashtag(f); tag != "" && len(tags) < maxHashtags {
			tags = append(tags, tag)
		}
	}
	return lines[:last], tags
}

func normalizeHashtag(s string) string {
	s = hashtagStrip.ReplaceAllString(strings.TrimLeft(s, "#"), "")
	if s == "" {
		return ""
	}
	return "#" + utils.TruncateRunes(s, maxHashtagRunes)
}

func boldFirstLine(lines []string) []string {
	for i, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		if !strings.Contains(l, "<b>") {
			lines[i] = "<b>" + strings.Trim(l, ` "'«»`) + "</b>"
		}
		break
	}
	return lines
}

// startsWithEmoji reports whether the first visible character is a pictograph.
func startsWithEmoji(html string) bool {
	text := utils.PlainText(html)
	r, _ := utf8.DecodeRuneInString(text)
	return r != utf8.RuneError && unicode.Is(unicode.So, r)
}

// pick chooses a stable index for key so the same input always renders the same way.
func pick(key string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}
