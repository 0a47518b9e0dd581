package ai

import (
	"cmp"
	"fmt"
	"strings"

	"github.com/bilgisen/feedcaster/internal/models"
	"github.com/bilgisen/feedcaster/internal/utils"
)

const (
	promptContentRunes = 500
	defaultTopic       = "новости"
)

// PromptTemplates contains the prompt templates used for content generation
var PromptTemplates = struct {
	SystemRU  string
	SystemAny string
	Post      string
	Translate string
}{
	SystemRU: `Ты редактор русскоязычного Telegram-канала на тему "%s". Перепиши новость как пост для канала.

Требования:
1. Пиши по-русски, смысл не искажай.
2. Названия компаний и продуктов оставляй как есть.
3. Первая строка: короткий заголовок без кавычек, выделенный <b></b>. Далее 2-3 абзаца, всего не больше 900 символов.
4. Самый важный абзац выдели тегами <i></i>.
5. Без вступлений и пояснений от себя.
6. Последняя строка: 2-3 хештега из одного слова, каждый начинается с #.`,

	SystemAny: `You edit a Telegram channel about "%s". Rewrite the news item as a channel post written in %s.

Requirements:
1. Keep the meaning, keep company and product names untranslated.
2. First line: a short headline without quotes wrapped in <b></b>. Then 2-3 paragraphs, 900 characters at most in total.
3. Wrap the most important paragraph in <i></i>.
4. No preamble and no commentary.
5. Last line: 2-3 one-word hashtags, each starting with #.`,

	Post: "Rewrite this news item as a Telegram post (up to 900 characters).\nTitle: %s\nContent: %s",

	Translate: "Translate the following text to %s. Reply with the translation only.\n\n%s",
}

var languageNames = map[string]string{
	"ru": "Russian",
	"en": "English",
	"tr": "Turkish",
	"de": "German",
	"es": "Spanish",
	"uk": "Ukrainian",
}

func languageName(code string) string {
	if name, ok := languageNames[strings.ToLower(code)]; ok {
		return name
	}
	return code
}

// BuildSystemPrompt returns the channel's custom prompt or the topic template.
func BuildSystemPrompt(settings models.ChannelSettings, language string) string {
	if p := strings.TrimSpace(settings.Prompt); p != "" {
		return p
	}
	topic := cmp.Or(strings.TrimSpace(settings.Topic), defaultTopic)
	if language == "" || strings.EqualFold(language, "ru") {
		return fmt.Sprintf(PromptTemplates.SystemRU, topic)
	}
	return fmt.Sprintf(PromptTemplates.SystemAny, topic, languageName(language))
}

// BuildPostPrompt embeds the entry title and a content excerpt.
func BuildPostPrompt(entry models.FeedEntry) string {
	return fmt.Sprintf(PromptTemplates.Post,
		escapeForPrompt(entry.Title),
		escapeForPrompt(utils.TruncateRunes(entry.Content, promptContentRunes)))
}

func BuildTranslatePrompt(text, language string) string {
	return fmt.Sprintf(PromptTemplates.Translate, languageName(language), text)
}

// escapeForPrompt flattens whitespace so the excerpt stays on one line
func escapeForPrompt(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\t", " ")
	return strings.TrimSpace(s)
}
