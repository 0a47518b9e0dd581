package ai

import (
	"strings"
	"testing"

	"github.com/bilgisen/feedcaster/internal/utils"
)

func TestFinish(t *testing.T) {
	p := NewPostProcessor()

	tests := []struct {
		name     string
		raw      string
		topic    string
		contains []string
		suffix   string
	}{
		{
			name:     "bolds first line and keeps tags",
			raw:      "Headline here\nBody text.\n#one ##two",
			topic:    "IT",
			contains: []string{"<b>Headline here</b>", "Body text."},
			suffix:   "\n\n#one #two",
		},
		{
			name:     "adds topic hashtags when missing",
			raw:      "<b>💡 Title</b>\nBody",
			topic:    "маркетинг",
			contains: []string{"<b>💡 Title</b>"},
			suffix:   "#marketing #digital #реклама",
		},
		{
			name:     "markdown to html",
			raw:      "## Big news\nThis is *really* `new` and **bold**.",
			topic:    "news",
			contains: []string{"<b>Big news</b>", "<i>really</i>", "<code>new</code>", "<b>bold</b>"},
		},
		{
			name:     "strips reasoning and disallowed tags",
			raw:      "<think>plan the post</think><div>Title</div>\n<span>text</span>",
			topic:    "",
			contains: []string{"<b>Title</b>", "text"},
		},
		{
			name:     "sentence with hash is not a tag line",
			raw:      "Title\nWe are number #1 in sales",
			topic:    "бизнес",
			contains: []string{"We are number #1 in sales"},
			suffix:   "#business #стартап #предпринимательство",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := p.Finish(tt.raw, tt.topic)
			for _, c := range tt.contains {
				if !strings.Contains(out, c) {
					t.Errorf("Expected %q in %q", c, out)
				}
			}
			if tt.suffix != "" && !strings.HasSuffix(out, tt.suffix) {
				t.Errorf("Expected suffix %q in %q", tt.suffix, out)
			}
			if !startsWithEmoji(out) {
				t.Errorf("Expected leading emoji in %q", out)
			}
			if strings.Contains(out, "think") || strings.Contains(out, "<div>") {
				t.Errorf("Unexpected leftovers in %q", out)
			}
		})
	}
}

func TestFinishTruncatesBodyNotHashtags(t *testing.T) {
	p := NewPostProcessor()
	raw := "<b>Title</b>\n" + strings.Repeat("<i>word </i>", 400) + "\n#keep #these"

	out := p.Finish(raw, "IT")

	if n := utils.VisibleLength(out); n > MaxPostLength {
		t.Errorf("Expected at most %d visible characters, got %d", MaxPostLength, n)
	}
	if !strings.HasSuffix(out, "\n\n#keep #these") {
		t.Errorf("Hashtags lost in truncation: %q", out[len(out)-40:])
	}
	if strings.Count(out, "<i>") != strings.Count(out, "</i>") {
		t.Error("Truncation left unbalanced tags")
	}
}

func TestFinishIsStable(t *testing.T) {
	p := NewPostProcessor()
	once := p.Finish("Title\nSome body text for the post.", "IT")
	if twice := p.Finish(once, "IT"); twice != once {
		t.Errorf("Finish not stable:\n%q\n%q", once, twice)
	}
}

func TestProblem(t *testing.T) {
	p := NewPostProcessor()
	good := strings.Repeat("Нормальный текст поста. ", 10)

	if got := p.Problem(good); got != "" {
		t.Errorf("Expected usable text, got %q", got)
	}
	if got := p.Problem("short"); got != "too short" {
		t.Errorf("Expected too short, got %q", got)
	}
	if got := p.Problem("Правила: " + good); !strings.Contains(got, "leaked") {
		t.Errorf("Expected leaked marker, got %q", got)
	}
	if got := p.Problem("<think>" + good); !strings.Contains(got, "leaked") {
		t.Errorf("Expected unclosed reasoning to be rejected, got %q", got)
	}
}

func TestHashtagsFor(t *testing.T) {
	tests := []struct {
		topic string
		want  []string
	}{
		{"IT", []string{"#tech", "#IT", "#технологии"}},
		{"Криптовалюты и блокчейн", []string{"#crypto", "#blockchain", "#криптовалюта"}},
		{"Новости города", []string{"#news", "#новости", "#сегодня"}},
		{"Space Science", []string{"#news", "#Space_Science"}},
		{"A very long topic name here", []string{"#news", "#A_very_long_top"}},
		{"", []string{"#news", "#today"}},
		{"politics", []string{"#news", "#politics"}},
	}

	for _, tt := range tests {
		got := HashtagsFor(tt.topic)
		if strings.Join(got, " ") != strings.Join(tt.want, " ") {
			t.Errorf("HashtagsFor(%q) = %v, want %v", tt.topic, got, tt.want)
		}
	}
}

func TestEmojiFor(t *testing.T) {
	tests := []struct {
		topic string
		set   string
	}{
		{"IT", "tech"},
		{"технологии", "tech"},
		{"финансы", "business"},
		{"politics", "news"},
		{"", "news"},
	}

	for _, tt := range tests {
		e := EmojiFor(tt.topic, "seed")
		found := false
		for _, c := range emojiSets[tt.set] {
			if c == e {
				found = true
			}
		}
		if !found {
			t.Errorf("EmojiFor(%q) = %q, not from %s set", tt.topic, e, tt.set)
		}
		if EmojiFor(tt.topic, "seed") != e {
			t.Errorf("EmojiFor(%q) not deterministic", tt.topic)
		}
	}
}
