package refengine

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/woxQAQ/markdown-wasm-go/internal/bridge"
	"github.com/woxQAQ/markdown-wasm-go/pkg/markdown"
)

func newTestEngine(t *testing.T, cfg *Config) *Engine {
	t.Helper()
	e, err := New(cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { _ = e.Close(context.Background()) })
	return e
}

// stage copies src into engine memory and returns the request template.
func stage(t *testing.T, e *Engine, src string) *bridge.ParseRequest {
	t.Helper()
	in := e.heap.malloc(uint32(len(src)))
	out := e.heap.malloc(4)
	if in == 0 || out == 0 {
		t.Fatal("allocation failed")
	}
	e.mem.Write(in, []byte(src))
	return &bridge.ParseRequest{
		Input:       bridge.Address(in),
		InputLen:    uint32(len(src)),
		ParseFlags:  uint32(markdown.FlagsDefault),
		OutputFlags: uint32(markdown.OutputHTML),
		Out:         bridge.Address(out),
	}
}

func result(t *testing.T, e *Engine, req *bridge.ParseRequest, n uint32) string {
	t.Helper()
	addr, _ := e.mem.ReadUint32Le(uint32(req.Out))
	if n == 0 {
		return ""
	}
	data, ok := e.mem.Read(addr, n)
	if !ok {
		t.Fatalf("output %d+%d outside memory", addr, n)
	}
	return string(data)
}

func TestParseUTF8HTML(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, nil)

	req := stage(t, e, "# Hi\n\n*a* ~~b~~\n")
	n, err := e.ParseUTF8(ctx, req)
	if err != nil {
		t.Fatalf("ParseUTF8() error: %v", err)
	}
	got := result(t, e, req, n)
	want := "<h1>Hi</h1>\n<p><em>a</em> <del>b</del></p>\n"
	if got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
	if code, _ := e.ErrorCode(ctx); code != bridge.ErrCodeNone {
		t.Errorf("ErrorCode = %d after success", code)
	}
}

func TestParseUTF8ReusesOutputBuffer(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, nil)

	req := stage(t, e, "one")
	if _, err := e.ParseUTF8(ctx, req); err != nil {
		t.Fatal(err)
	}
	first, _ := e.mem.ReadUint32Le(uint32(req.Out))

	req2 := stage(t, e, "two")
	if _, err := e.ParseUTF8(ctx, req2); err != nil {
		t.Fatal(err)
	}
	second, _ := e.mem.ReadUint32Le(uint32(req2.Out))
	if first != second {
		t.Errorf("output buffer moved: %d -> %d", first, second)
	}
}

func TestParseUTF8NoOutputFormat(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, nil)

	req := stage(t, e, "text")
	req.OutputFlags = 0
	n, err := e.ParseUTF8(ctx, req)
	if err != nil {
		t.Fatalf("ParseUTF8() error: %v", err)
	}
	if n != 0 {
		t.Errorf("length = %d, want 0", n)
	}
	if code, _ := e.ErrorCode(ctx); code != bridge.ErrCodeOutputFlags {
		t.Errorf("ErrorCode = %d, want %d", code, bridge.ErrCodeOutputFlags)
	}
	addr, _ := e.ErrorMessage(ctx)
	msg := readCString(e, addr)
	if msg != "no output format set in output flags" {
		t.Errorf("message = %q", msg)
	}

	if err := e.ClearError(ctx); err != nil {
		t.Fatal(err)
	}
	if code, _ := e.ErrorCode(ctx); code != bridge.ErrCodeNone {
		t.Errorf("ErrorCode after clear = %d", code)
	}
	if addr, _ := e.ErrorMessage(ctx); addr != 0 {
		t.Errorf("ErrorMessage after clear = %d", addr)
	}
}

func TestParseUTF8InputTooLarge(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.MaxInputBytes = 4
	e := newTestEngine(t, cfg)

	req := stage(t, e, "too long")
	if _, err := e.ParseUTF8(ctx, req); err != nil {
		t.Fatal(err)
	}
	if code, _ := e.ErrorCode(ctx); code != bridge.ErrCodeInputTooLarge {
		t.Errorf("ErrorCode = %d, want %d", code, bridge.ErrCodeInputTooLarge)
	}
	if addr, _ := e.mem.ReadUint32Le(uint32(req.Out)); addr != 0 {
		t.Errorf("out slot = %d, want 0", addr)
	}
}

func TestJavaScriptURIs(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, nil)

	tests := []struct {
		name string
		src  string
		want string
	}{
		{name: "link", src: "[x](javascript:alert(1))", want: "<p><a href=\"\">x</a></p>\n"},
		{name: "link mixed case", src: "[x](JaVaScRiPt:alert(1))", want: "<p><a href=\"\">x</a></p>\n"},
		{name: "autolink", src: "<javascript:alert(1)>", want: "<p><a href=\"\">javascript:alert(1)</a></p>\n"},
		{name: "autolink mixed case", src: "<JavaScript:alert(1)>", want: "<p><a href=\"\">JavaScript:alert(1)</a></p>\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := stage(t, e, tt.src)
			n, _ := e.ParseUTF8(ctx, req)
			if got := result(t, e, req, n); got != tt.want {
				t.Errorf("output = %q, want %q", got, tt.want)
			}

			req = stage(t, e, tt.src)
			req.OutputFlags |= uint32(markdown.OutputAllowJSURI)
			n, _ = e.ParseUTF8(ctx, req)
			if got := result(t, e, req, n); !strings.Contains(strings.ToLower(got), `href="javascript:`) {
				t.Errorf("javascript URI dropped despite allow flag: %q", got)
			}
		})
	}
}

func TestSafeAutoLinksUntouched(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, nil)

	req := stage(t, e, "<https://example.com/a>")
	n, _ := e.ParseUTF8(ctx, req)
	want := "<p><a href=\"https://example.com/a\">https://example.com/a</a></p>\n"
	if got := result(t, e, req, n); got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestRawHTMLFlags(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, nil)
	src := "<div>x</div>\n"

	req := stage(t, e, src)
	n, _ := e.ParseUTF8(ctx, req)
	if got := result(t, e, req, n); got != src {
		t.Errorf("raw HTML = %q, want passthrough", got)
	}

	req = stage(t, e, src)
	req.ParseFlags |= uint32(markdown.FlagsNoHTML)
	n, _ = e.ParseUTF8(ctx, req)
	if got := result(t, e, req, n); strings.Contains(got, "<div>") {
		t.Errorf("raw HTML kept with no_html: %q", got)
	}
}

func TestNoIndentedCodeBlocks(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, nil)
	src := "    x\n"

	req := stage(t, e, src)
	n, _ := e.ParseUTF8(ctx, req)
	if got, want := result(t, e, req, n), "<pre><code>x\n</code></pre>\n"; got != want {
		t.Errorf("indented code = %q, want %q", got, want)
	}

	req = stage(t, e, src)
	req.ParseFlags |= uint32(markdown.FlagNoIndentedCodeBlocks)
	n, _ = e.ParseUTF8(ctx, req)
	if got, want := result(t, e, req, n), "<p>x</p>\n"; got != want {
		t.Errorf("indented code with no_indented_code_blocks = %q, want %q", got, want)
	}

	req = stage(t, e, "```\nx\n```\n")
	req.ParseFlags |= uint32(markdown.FlagNoIndentedCodeBlocks)
	n, _ = e.ParseUTF8(ctx, req)
	if got, want := result(t, e, req, n), "<pre><code>x\n</code></pre>\n"; got != want {
		t.Errorf("fenced code with no_indented_code_blocks = %q, want %q", got, want)
	}
}

func TestXHTMLOutput(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, nil)

	req := stage(t, e, "---\n")
	req.OutputFlags |= uint32(markdown.OutputXHTML)
	n, _ := e.ParseUTF8(ctx, req)
	if got := result(t, e, req, n); got != "<hr />\n" {
		t.Errorf("output = %q, want %q", got, "<hr />\n")
	}
}

func TestCodeBlockHook(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, nil)
	src := "```go\nx < y\n```\n"

	var gotLang, gotBody string
	idx, err := e.AddFunction(func(_ context.Context, langAddr bridge.Address, langLen uint32, bodyAddr bridge.Address, bodyLen uint32, outAddr bridge.Address) int32 {
		lang, _ := e.mem.Read(uint32(langAddr), langLen)
		body, _ := e.mem.Read(uint32(bodyAddr), bodyLen)
		gotLang, gotBody = string(lang), string(body)

		repl := []byte("Y")
		addr := e.heap.malloc(uint32(len(repl)))
		e.mem.Write(addr, repl)
		e.mem.WriteUint32Le(uint32(outAddr), addr)
		return int32(len(repl))
	})
	if err != nil {
		t.Fatal(err)
	}
	defer e.RemoveFunction(idx)

	req := stage(t, e, src)
	req.Callback = idx
	before := e.LiveAllocations()
	n, err := e.ParseUTF8(ctx, req)
	if err != nil {
		t.Fatal(err)
	}

	if gotLang != "go" || gotBody != "x < y\n" {
		t.Errorf("hook saw lang=%q body=%q", gotLang, gotBody)
	}
	want := "<pre><code class=\"language-go\">Y</code></pre>\n"
	if got := result(t, e, req, n); got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
	// The replacement is freed by the engine; only the output and staged
	// body buffers may have been added.
	if after := e.LiveAllocations(); after > before+2 {
		t.Errorf("live allocations grew from %d to %d", before, after)
	}
}

func TestCodeBlockHookNotHandled(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, nil)
	src := "    a & b\n"

	idx, _ := e.AddFunction(func(context.Context, bridge.Address, uint32, bridge.Address, uint32, bridge.Address) int32 {
		return bridge.HookNotHandled
	})
	defer e.RemoveFunction(idx)

	req := stage(t, e, src)
	req.Callback = idx
	n, _ := e.ParseUTF8(ctx, req)
	want := "<pre><code>a &amp; b\n</code></pre>\n"
	if got := result(t, e, req, n); got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestParseUTF8UnknownCallback(t *testing.T) {
	e := newTestEngine(t, nil)
	req := stage(t, e, "x")
	req.Callback = 42
	if _, err := e.ParseUTF8(context.Background(), req); err == nil {
		t.Error("expected error for unknown function index")
	}
}

func TestJSONFormatter(t *testing.T) {
	ctx := context.Background()

	e := newTestEngine(t, nil)
	if e.SupportsFormatter(bridge.FormatterJSON) {
		t.Fatal("JSON formatter should be off by default")
	}

	cfg := DefaultConfig()
	cfg.JSONFormatter = true
	e = newTestEngine(t, cfg)

	req := stage(t, e, "## T\n")
	req.Formatter = bridge.FormatterJSON
	n, err := e.ParseUTF8(ctx, req)
	if err != nil {
		t.Fatal(err)
	}

	var doc struct {
		Type     string `json:"_"`
		Children []struct {
			Type     string `json:"_"`
			Level    int    `json:"level"`
			Children []string
		} `json:"children"`
	}
	if err := json.Unmarshal([]byte(result(t, e, req, n)), &doc); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if doc.Type != "doc" || len(doc.Children) != 1 {
		t.Fatalf("unexpected tree: %+v", doc)
	}
	h := doc.Children[0]
	if h.Type != "h" || h.Level != 2 || len(h.Children) != 1 || h.Children[0] != "T" {
		t.Errorf("unexpected heading: %+v", h)
	}
}

func TestVersion(t *testing.T) {
	e := newTestEngine(t, nil)
	slot := e.heap.malloc(4)

	n, err := e.Version(context.Background(), bridge.Address(slot))
	if err != nil {
		t.Fatal(err)
	}
	addr, _ := e.mem.ReadUint32Le(slot)
	data, _ := e.mem.Read(addr, n)
	if string(data) != Version {
		t.Errorf("version = %q, want %q", data, Version)
	}
}

func TestFreeUnknownAddress(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()

	if err := e.Free(ctx, 0); err != nil {
		t.Errorf("Free(0) error: %v", err)
	}
	if err := e.Free(ctx, 7); err == nil {
		t.Error("expected error freeing an unallocated address")
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(&Config{InitialPages: 4, MaxPages: 2}, zaptest.NewLogger(t))
	if err == nil {
		t.Error("expected error when max pages < initial pages")
	}
}

func readCString(e *Engine, addr bridge.Address) string {
	var sb strings.Builder
	for a := uint32(addr); ; a++ {
		b, ok := e.mem.Read(a, 1)
		if !ok || b[0] == 0 {
			break
		}
		sb.WriteByte(b[0])
	}
	return sb.String()
}
