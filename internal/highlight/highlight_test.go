package highlight

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/woxQAQ/markdown-wasm-go/internal/bridge"
	"github.com/woxQAQ/markdown-wasm-go/internal/refengine"
)

func newBridge(t *testing.T) *bridge.Bridge {
	t.Helper()
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	engine, err := refengine.New(nil, logger)
	if err != nil {
		t.Fatal(err)
	}
	b, err := bridge.New(ctx, engine, logger)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = b.Close(ctx)
		_ = engine.Close(ctx)
	})
	return b
}

func TestLanguageName(t *testing.T) {
	tests := map[string]string{
		"":                  "",
		"go":                "go",
		"  go  ":            "go",
		"go {linenos=true}": "go",
		"language-rust":     "rust",
		"{.python}":         "python",
	}
	for in, want := range tests {
		if got := languageName(in); got != want {
			t.Errorf("languageName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFilterHighlightsKnownLanguage(t *testing.T) {
	b := newBridge(t)
	f := New("monokai", zaptest.NewLogger(t))

	out, err := b.ParseString(context.Background(), "```go\nfunc main() {}\n```\n", bridge.Options{OnCodeBlock: f})
	if err != nil {
		t.Fatalf("ParseString() error: %v", err)
	}

	if !strings.HasPrefix(out, `<pre><code class="language-go">`) {
		t.Errorf("engine should keep the code element, got %q", out)
	}
	if !strings.Contains(out, `<span class="kd">func</span>`) {
		t.Errorf("expected highlighted keyword, got %q", out)
	}
	if strings.Count(out, "<pre") != 1 {
		t.Errorf("filter must not add its own <pre>, got %q", out)
	}
}

func TestFilterFallsBack(t *testing.T) {
	b := newBridge(t)
	f := New("", zaptest.NewLogger(t))
	ctx := context.Background()

	for _, src := range []string{
		"```\n<x>\n```\n",
		"```qqzzxx\n<x>\n```\n",
		"    <x>\n",
	} {
		plain, err := b.ParseString(ctx, src, bridge.Options{})
		if err != nil {
			t.Fatal(err)
		}
		highlighted, err := b.ParseString(ctx, src, bridge.Options{OnCodeBlock: f})
		if err != nil {
			t.Fatal(err)
		}
		if highlighted != plain {
			t.Errorf("%q: got %q, want %q", src, highlighted, plain)
		}
		if !strings.Contains(highlighted, "&lt;x&gt;") {
			t.Errorf("%q: body not escaped: %q", src, highlighted)
		}
	}
}

func TestFilterEscapesSource(t *testing.T) {
	b := newBridge(t)
	f := New(DefaultStyle, zaptest.NewLogger(t))

	out, err := b.ParseString(context.Background(), "```html\n<script>alert(1)</script>\n```\n", bridge.Options{OnCodeBlock: f})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "<script>") {
		t.Errorf("highlighted output must escape source, got %q", out)
	}
}

func TestFilterCSS(t *testing.T) {
	f := New(DefaultStyle, zaptest.NewLogger(t))

	css, err := f.CSS()
	if err != nil {
		t.Fatalf("CSS() error: %v", err)
	}
	if !strings.Contains(css, "color") {
		t.Errorf("stylesheet has no colours: %q", css)
	}
}
