// Package highlight renders fenced code blocks with chroma. Its Filter plugs
// into bridge.Options.OnCodeBlock, so the engine keeps the surrounding
// <pre><code> element and the filter only replaces the body.
package highlight

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"go.uber.org/zap"

	"github.com/woxQAQ/markdown-wasm-go/internal/bridge"
)

// DefaultStyle is used when no style is configured.
const DefaultStyle = "github"

// Filter is a bridge.CodeBlockFilter that emits chroma HTML using CSS
// classes. Blocks without a language, or with an unknown one, fall back to
// the engine's escaping.
type Filter struct {
	style     *chroma.Style
	formatter *html.Formatter
	logger    *zap.Logger
}

var _ bridge.CodeBlockFilter = (*Filter)(nil)

// New creates a filter. Unknown style names fall back to chroma's default style.
func New(styleName string, logger *zap.Logger) *Filter {
	if styleName == "" {
		styleName = DefaultStyle
	}
	return &Filter{
		style: styles.Get(styleName),
		formatter: html.New(
			html.WithClasses(true),
			html.PreventSurroundingPre(true),
		),
		logger: logger.With(zap.String("component", "highlight")),
	}
}

// FilterCodeBlock implements bridge.CodeBlockFilter.
func (f *Filter) FilterCodeBlock(lang string, body *bridge.CodeBody) (bridge.Replacement, error) {
	name := languageName(lang)
	if name == "" {
		return bridge.Fallback, nil
	}

	lexer := lexers.Get(name)
	if lexer == nil {
		f.logger.Debug("No lexer for language", zap.String("lang", name))
		return bridge.Fallback, nil
	}
	lexer = chroma.Coalesce(lexer)

	iterator, err := lexer.Tokenise(nil, body.String())
	if err != nil {
		return bridge.Fallback, fmt.Errorf("tokenise %s: %w", name, err)
	}

	var buf bytes.Buffer
	buf.Grow(body.Len() * 2)
	if err := f.formatter.Format(&buf, f.style, iterator); err != nil {
		return bridge.Fallback, fmt.Errorf("format %s: %w", name, err)
	}
	return bridge.Replace(buf.Bytes()), nil
}

// CSS returns the stylesheet for the classes emitted by the filter.
func (f *Filter) CSS() (string, error) {
	var buf bytes.Buffer
	if err := f.formatter.WriteCSS(&buf, f.style); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// languageName extracts the language from a fence info string such as
// "go {linenos=true}".
func languageName(info string) string {
	fields := strings.Fields(info)
	if len(fields) == 0 {
		return ""
	}
	name := strings.TrimPrefix(fields[0], "language-")
	return strings.Trim(name, "{}.")
}
