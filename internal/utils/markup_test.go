package utils

import "testing"

func TestSanitizeAllowList(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"keeps allowed", "<b>bold</b> <i>it</i> <u>u</u> <s>s</s> <code>c</code>", "<b>bold</b> <i>it</i> <u>u</u> <s>s</s> <code>c</code>"},
		{"strips div and span", "<div><span>text</span></div>", "text"},
		{"drops script", "before<script>alert(1)</script>after", "beforeafter"},
		{"keeps link href", `<a href="https://example.com">link</a>`, `<a href="https://example.com">link</a>`},
		{"drops javascript link", `<a href="javascript:alert(1)">x</a>`, "x"},
		{"drops attributes on bold", `<b class="x" onclick="y">t</b>`, "<b>t</b>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitizeIdempotent(t *testing.T) {
	inputs := []string{
		"<b>Title</b>\n\nBody & more <img src=x> text",
		`<p>Para with "quotes" and 'apostrophes'</p><br/><a href="https://x.y">l</a>`,
		"plain 5 < 6 > 4",
		"<b>unclosed <i>nested",
		"🚀 <b>Launch</b>\n\n#tech #news",
	}

	for _, in := range inputs {
		once := Sanitize(in)
		twice := Sanitize(once)
		if once != twice {
			t.Errorf("Sanitize not idempotent for %q: %q vs %q", in, once, twice)
		}
	}
}

func TestPlainText(t *testing.T) {
	in := `<p>Hello <b>world</b></p><p>Second&nbsp;para</p><script>var x;</script>`
	want := "Hello world Second para"
	if got := PlainText(in); got != want {
		t.Errorf("PlainText = %q, want %q", got, want)
	}

	if got := PlainText("  already   plain \n text "); got != "already plain text" {
		t.Errorf("PlainText on plain input = %q", got)
	}
}

func TestTruncateHTML(t *testing.T) {
	in := "<b>Hello world</b> and more"

	if got := TruncateHTML(in, 100); got != in {
		t.Errorf("Expected untouched input, got %q", got)
	}

	got := TruncateHTML(in, 5)
	if got != "<b>Hello</b>" {
		t.Errorf("TruncateHTML(5) = %q, want %q", got, "<b>Hello</b>")
	}
	if VisibleLength(got) != 5 {
		t.Errorf("Expected visible length 5, got %d", VisibleLength(got))
	}

	got = TruncateHTML("<b>ab</b><i>cdef</i>", 4)
	if got != "<b>ab</b><i>cd</i>" {
		t.Errorf("TruncateHTML across tags = %q", got)
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := TruncateRunes("привет", 3); got != "при" {
		t.Errorf("TruncateRunes = %q", got)
	}
	if got := TruncateRunes("abc", 10); got != "abc" {
		t.Errorf("TruncateRunes = %q", got)
	}
}
