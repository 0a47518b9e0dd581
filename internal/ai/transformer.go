package ai

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/bilgisen/feedcaster/internal/models"
	"github.com/bilgisen/feedcaster/internal/utils"
)

const (
	fallbackContentRunes = 600
	fallbackSentences    = 4
)

// Options configures a Transformer.
type Options struct {
	DefaultModel   string
	Models         []string
	Timeout        time.Duration
	MaxTokens      int
	Temperature    float64
	TargetLanguage string
}

// Transformer turns a feed entry into a finished channel post. Transform never
// fails: provider errors and unusable output degrade to a local formatter.
type Transformer struct {
	provider     Provider
	post         *PostProcessor
	defaultModel string
	allowed      map[string]bool
	models       []string
	timeout      time.Duration
	maxTokens    int
	temperature  float64
	language     string
	logger       zerolog.Logger
}

func NewTransformer(provider Provider, opts Options, logger zerolog.Logger) *Transformer {
	t := &Transformer{
		provider:     provider,
		post:         NewPostProcessor(),
		defaultModel: opts.DefaultModel,
		allowed:      make(map[string]bool),
		timeout:      cmp.Or(opts.Timeout, 20*time.Second),
		maxTokens:    cmp.Or(opts.MaxTokens, 800),
		temperature:  cmp.Or(opts.Temperature, 0.7),
		language:     opts.TargetLanguage,
		logger:       logger,
	}
	for _, m := range append([]string{opts.DefaultModel}, opts.Models...) {
		if m = strings.TrimSpace(m); m != "" && !t.allowed[m] {
			t.allowed[m] = true
			t.models = append(t.models, m)
		}
	}
	return t
}

// ResolveModel returns requested if it is on the allow-list, else the default model.
func (t *Transformer) ResolveModel(requested string) string {
	if t.allowed[requested] {
		return requested
	}
	return t.defaultModel
}

// alternate is the model tried once when the primary one is unavailable.
func (t *Transformer) alternate(primary string) string {
	if primary != t.defaultModel {
		return t.defaultModel
	}
	for _, m := range t.models {
		if m != primary {
			return m
		}
	}
	return ""
}

// Transform renders entry for a channel with the given settings.
func (t *Transformer) Transform(ctx context.Context, entry models.FeedEntry, settings models.ChannelSettings) (out string) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error().Interface("panic", r).Str("guid", entry.GUID).Msg("Transformer panic, using plain formatter")
			out = t.post.Finish(plainPost(entry.Title, entry.Content, settings.Topic), settings.Topic)
		}
	}()

	model := t.ResolveModel(settings.Model)
	if model != settings.Model && settings.Model != "" {
		t.logger.Debug().Str("requested", settings.Model).Str("model", model).Msg("Unsupported model, using default")
	}

	req := Request{
		Model:       model,
		System:      BuildSystemPrompt(settings, t.language),
		User:        BuildPostPrompt(entry),
		Temperature: t.temperature,
		MaxTokens:   t.maxTokens,
	}

	raw, err := t.complete(ctx, req)
	if errors.Is(err, ErrModelUnavailable) {
		if alt := t.alternate(model); alt != "" {
			t.logger.Warn().Str("model", model).Str("failover", alt).Msg("Model unavailable, failing over")
			req.Model = alt
			raw, err = t.complete(ctx, req)
		}
	}
	if err == nil {
		if problem := t.post.Problem(raw); problem != "" {
			err = fmt.Errorf("unusable completion: %s", problem)
		}
	}
	if err != nil {
		t.logger.Warn().Err(err).Str("guid", entry.GUID).Str("model", req.Model).Msg("Generation failed, using fallback formatter")
		return t.fallback(ctx, entry, settings.Topic)
	}

	return t.post.Finish(raw, settings.Topic)
}

func (t *Transformer) complete(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.provider.Complete(ctx, req)
}

// Translate renders text in the target language. It returns text unchanged
// when no language is configured or the provider fails.
func (t *Transformer) Translate(ctx context.Context, text string) string {
	if t.language == "" || strings.TrimSpace(text) == "" {
		return text
	}
	out, err := t.complete(ctx, Request{
		Model:       t.defaultModel,
		User:        BuildTranslatePrompt(text, t.language),
		Temperature: 0.2,
		MaxTokens:   t.maxTokens,
	})
	out = strings.TrimSpace(thinkBlock.ReplaceAllString(out, ""))
	if err != nil || out == "" {
		return text
	}
	return out
}

// fallback is the local formatter: translated title in bold, a few
// sentences of body and topic hashtags.
func (t *Transformer) fallback(ctx context.Context, entry models.FeedEntry, topic string) string {
	title := t.Translate(ctx, entry.Title)
	content := t.Translate(ctx, entry.Content)
	return t.post.Finish(plainPost(title, content, topic), topic)
}

func plainPost(title, content, topic string) string {
	title = strings.Trim(strings.TrimSpace(utils.CollapseSpaces(title)), `"'«»`)
	body := firstSentences(utils.TruncateRunes(utils.CollapseSpaces(content), fallbackContentRunes), fallbackSentences)

	var b strings.Builder
	b.WriteString("<b>")
	b.WriteString(EmojiFor(topic, title))
	if title != "" {
		b.WriteString(" ")
		b.WriteString(html.EscapeString(title))
	}
	b.WriteString("</b>")
	if body != "" {
		b.WriteString("\n\n")
		b.WriteString(html.EscapeString(body))
	}
	b.WriteString("\n\n")
	b.WriteString(strings.Join(HashtagsFor(topic), " "))
	return b.String()
}

func firstSentences(text string, n int) string {
	parts := strings.SplitAfter(text, ". ")
	if len(parts) > n {
		parts = parts[:n]
	}
	out := strings.TrimSpace(strings.Join(parts, ""))
	if out != "" && !strings.HasSuffix(out, ".") && !strings.HasSuffix(out, "!") && !strings.HasSuffix(out, "?") {
		out += "."
	}
	return out
}
