package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bilgisen/feedcaster/internal/utils"
)

const testFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:media="http://search.yahoo.com/mrss/" xmlns:content="http://purl.org/rss/1.0/modules/content/">
<channel>
  <title>Example</title>
  <link>https://example.com</link>
  <item>
    <guid>item-5</guid>
    <title>Fifth &amp; newest</title>
    <link>https://example.com/5</link>
    <description>&lt;p&gt;Hello   &lt;b&gt;world&lt;/b&gt;&lt;/p&gt;</description>
    <enclosure url="https://img.example.com/5.jpg" type="image/jpeg" length="100"/>
    <media:thumbnail url="https://img.example.com/5-thumb.jpg"/>
    <category>Tech</category>
    <pubDate>Mon, 03 Mar 2025 10:00:00 GMT</pubDate>
  </item>
  <item>
    <guid>item-4</guid>
    <title>No image here</title>
    <link>https://example.com/4</link>
    <description>Plain text only</description>
  </item>
  <item>
    <guid>item-3</guid>
    <title>Media content</title>
    <link>https://example.com/3</link>
    <description>Three</description>
    <media:content url="https://img.example.com/3.png" type="image/png"/>
    <media:thumbnail url="https://img.example.com/3-thumb.jpg"/>
  </item>
  <item>
    <title>Linked only</title>
    <link>https://example.com/2</link>
    <description>Two</description>
    <media:thumbnail url="https://img.example.com/2-thumb.jpg"/>
  </item>
  <item>
    <guid>item-1</guid>
    <title>Inline</title>
    <link>https://example.com/1</link>
    <content:encoded><![CDATA[<p>Body</p><img src="/relative.jpg"><img src="https://img.example.com/1.jpg">]]></content:encoded>
  </item>
</channel>
</rss>`

func newTestReader(t *testing.T, handler http.HandlerFunc) (*Reader, string) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := utils.NewRestyClient(nil, 5*time.Second, "test")
	return NewReader(client, WithRetry(2, time.Millisecond)), server.URL
}

func serveFeed(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, body)
	}
}

func TestFetchNormalizesEntries(t *testing.T) {
	reader, url := newTestReader(t, serveFeed(testFeed))

	result := reader.Fetch(context.Background(), url, "")
	if result.Err != nil {
		t.Fatalf("Unexpected error: %v", result.Err)
	}
	if result.Newest != "item-5" {
		t.Errorf("Expected newest guid item-5, got %q", result.Newest)
	}

	if len(result.Entries) != 4 {
		t.Fatalf("Expected 4 entries with media, got %d", len(result.Entries))
	}

	first := result.Entries[0]
	if first.Title != "Fifth & newest" {
		t.Errorf("Unexpected title %q", first.Title)
	}
	if first.Content != "Hello world" {
		t.Errorf("Expected stripped content, got %q", first.Content)
	}
	if len(first.MediaURLs) != 1 || first.MediaURLs[0] != "https://img.example.com/5.jpg" {
		t.Errorf("Expected enclosure to win, got %v", first.MediaURLs)
	}
	if first.PublishedAt == nil || len(first.Tags) != 1 || first.Tags[0] != "Tech" {
		t.Errorf("Unexpected metadata: %+v", first)
	}

	wantMedia := map[string]string{
		"item-3":                "https://img.example.com/3.png",
		"https://example.com/2": "https://img.example.com/2-thumb.jpg",
		"item-1":                "https://img.example.com/1.jpg",
	}
	for _, e := range result.Entries[1:] {
		if want, ok := wantMedia[e.GUID]; !ok || e.MediaURLs[0] != want {
			t.Errorf("Entry %q: expected media %q, got %v", e.GUID, want, e.MediaURLs)
		}
	}
}

func TestFetchEveryEntryHasGUIDAndMedia(t *testing.T) {
	reader, url := newTestReader(t, serveFeed(testFeed))

	for _, e := range reader.Fetch(context.Background(), url, "").Entries {
		if e.GUID == "" {
			t.Errorf("Entry without guid: %+v", e)
		}
		if !e.HasMedia() {
			t.Errorf("Entry without media: %+v", e)
		}
	}
}

func TestFetchStopsAtCursor(t *testing.T) {
	reader, url := newTestReader(t, serveFeed(testFeed))

	result := reader.Fetch(context.Background(), url, "item-3")
	if len(result.Entries) != 1 || result.Entries[0].GUID != "item-5" {
		t.Errorf("Expected only item-5 before cursor, got %+v", result.Entries)
	}
}

func TestFetchCursorAtNewestReturnsNothing(t *testing.T) {
	reader, url := newTestReader(t, serveFeed(testFeed))

	result := reader.Fetch(context.Background(), url, "item-5")
	if result.Err != nil {
		t.Fatalf("Unexpected error: %v", result.Err)
	}
	if len(result.Entries) != 0 {
		t.Errorf("Expected no new entries, got %d", len(result.Entries))
	}
}

func TestFetchBoundsItems(t *testing.T) {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?><rss version="2.0"><channel><title>Big</title>`)
	for i := 0; i < 15; i++ {
		fmt.Fprintf(&b, `<item><guid>g%d</guid><title>T%d</title><enclosure url="https://img.example.com/%d.jpg" type="image/jpeg"/></item>`, i, i, i)
	}
	b.WriteString(`</channel></rss>`)
	reader, url := newTestReader(t, serveFeed(b.String()))

	result := reader.Fetch(context.Background(), url, "")
	if len(result.Entries) != MaxItemsPerFetch {
		t.Errorf("Expected %d entries, got %d", MaxItemsPerFetch, len(result.Entries))
	}
}

func TestFetchCapsContent(t *testing.T) {
	long := strings.Repeat("word ", 1000)
	body := fmt.Sprintf(`<?xml version="1.0"?><rss version="2.0"><channel><title>x</title>
<item><guid>a</guid><title>A</title><description>%s</description><enclosure url="https://img.example.com/a.jpg" type="image/jpeg"/></item>
</channel></rss>`, long)
	reader, url := newTestReader(t, serveFeed(body))

	result := reader.Fetch(context.Background(), url, "")
	if len(result.Entries) != 1 {
		t.Fatalf("Expected one entry, got %d", len(result.Entries))
	}
	if n := len([]rune(result.Entries[0].Content)); n > maxContentRunes {
		t.Errorf("Content not capped: %d runes", n)
	}
}

func TestFetchFailuresAreReportedNotRaised(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) }},
		{"not a feed", serveFeed("<html><body>nope</body></html>")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader, url := newTestReader(t, tt.handler)
			result := reader.Fetch(context.Background(), url, "")
			if result.Err == nil {
				t.Error("Expected health error")
			}
			if len(result.Entries) != 0 {
				t.Errorf("Expected no entries, got %d", len(result.Entries))
			}
		})
	}
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	reader, url := newTestReader(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		serveFeed(testFeed)(w, r)
	})

	result := reader.Fetch(context.Background(), url, "")
	if result.Err != nil {
		t.Fatalf("Expected the third attempt to succeed, got %v", result.Err)
	}
	if len(result.Entries) == 0 {
		t.Error("Expected entries after retrying")
	}

	mu.Lock()
	defer mu.Unlock()
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestFetchRejectsOversizedFeed(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		mu.Unlock()
		serveFeed(testFeed)(w, r)
	}))
	t.Cleanup(server.Close)

	reader := NewReader(utils.NewRestyClient(nil, 5*time.Second, "test"),
		WithRetry(2, time.Millisecond), WithMaxFeedBytes(256))
	result := reader.Fetch(context.Background(), server.URL, "")
	if result.Err == nil || len(result.Entries) != 0 {
		t.Fatalf("Expected an oversized feed to fail, got %+v", result)
	}

	mu.Lock()
	defer mu.Unlock()
	if attempts != 1 {
		t.Errorf("Expected no retry for an oversized body, got %d attempts", attempts)
	}
}

func TestFetchEmptyFeedIsHealthy(t *testing.T) {
	reader, url := newTestReader(t, serveFeed(`<?xml version="1.0"?><rss version="2.0"><channel><title>empty</title></channel></rss>`))

	result := reader.Fetch(context.Background(), url, "")
	if result.Err != nil || len(result.Entries) != 0 {
		t.Errorf("Expected empty healthy result, got %+v", result)
	}
}

func TestFetchExtractsShortArticles(t *testing.T) {
	article := `<html><head><title>Story</title></head><body><article><h1>Story</h1>` +
		strings.Repeat("<p>This paragraph carries the full article text for readers of the site.</p>", 10) +
		`</article></body></html>`

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	mux.HandleFunc("/feed", serveFeed(fmt.Sprintf(`<?xml version="1.0"?><rss version="2.0"><channel><title>x</title>
<item><guid>a</guid><title>A</title><link>%s/article</link><description>Short teaser</description>
<enclosure url="https://img.example.com/a.jpg" type="image/jpeg"/></item></channel></rss>`, server.URL)))
	mux.HandleFunc("/article", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, article)
	})

	reader := NewReader(utils.NewRestyClient(nil, 5*time.Second, "test"), WithArticleExtraction(true))
	result := reader.Fetch(context.Background(), server.URL+"/feed", "")
	if len(result.Entries) != 1 {
		t.Fatalf("Expected one entry, got %d", len(result.Entries))
	}
	if !strings.Contains(result.Entries[0].Content, "full article text") {
		t.Errorf("Expected extracted article text, got %q", result.Entries[0].Content)
	}
}
