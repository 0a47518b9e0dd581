package ai

import (
	"strings"

	"github.com/bilgisen/feedcaster/internal/utils"
)

var emojiSets = map[string][]string{
	"tech":     {"💻", "🚀", "🔧", "⚡", "🌐", "📱", "🤖"},
	"news":     {"📰", "📢", "🔥", "⚠️", "💡", "✨", "🎯"},
	"business": {"💼", "📈", "💰", "🏢", "📊", "🤝", "💸"},
}

var (
	techWords     = []string{"tech", "технолог", "программ", "код", "software"}
	businessWords = []string{"бизнес", "финанс", "экономик", "маркет", "business", "financ", "econom", "market"}
)

type hashtagRule struct {
	keywords []string
	tags     []string
}

var hashtagTable = []hashtagRule{
	{[]string{"криптовалют", "crypto"}, []string{"#crypto", "#blockchain", "#криптовалюта"}},
	{[]string{"маркетинг", "marketing"}, []string{"#marketing", "#digital", "#реклама"}},
	{[]string{"бизнес", "business"}, []string{"#business", "#стартап", "#предпринимательство"}},
	{[]string{"новости", "news"}, []string{"#news", "#новости", "#сегодня"}},
}

var itTags = []string{"#tech", "#IT", "#технологии"}

const derivedTagRunes = 15

func topicCategory(topic string) string {
	t := " " + strings.ToLower(topic) + " "
	if hasWord(t, "it") || hasWord(t, "ai") || containsAny(t, techWords) {
		return "tech"
	}
	if containsAny(t, businessWords) {
		return "business"
	}
	return "news"
}

// EmojiFor returns a decorative emoji matching the topic. seed selects among
// the candidates deterministically.
func EmojiFor(topic, seed string) string {
	set := emojiSets[topicCategory(topic)]
	return set[pick(seed, len(set))]
}

// HashtagsFor returns 2-3 hashtags for the topic, derived from the topic
// string when no table entry matches.
func HashtagsFor(topic string) []string {
	t := " " + strings.ToLower(topic) + " "
	if hasWord(t, "it") {
		return append([]string(nil), itTags...)
	}
	for _, rule := range hashtagTable {
		if containsAny(t, rule.keywords) {
			return append([]string(nil), rule.tags...)
		}
	}

	derived := normalizeHashtag(utils.TruncateRunes(strings.ReplaceAll(strings.TrimSpace(topic), " ", "_"), derivedTagRunes))
	if derived == "" || derived == "#news" {
		return []string{"#news", "#today"}
	}
	return []string{"#news", derived}
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func hasWord(s, word string) bool {
	for _, f := range strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ',' || r == '/' || r == '-' }) {
		if f == word {
			return true
		}
	}
	return false
}
