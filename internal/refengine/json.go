package refengine

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"github.com/woxQAQ/markdown-wasm-go/pkg/markdown"
)

// jsonNode is one element of the JSON document tree. Text runs are encoded
// as plain strings among the children.
type jsonNode struct {
	Type     string `json:"_"`
	Level    int    `json:"level,omitempty"`
	Start    int    `json:"start,omitempty"`
	Tight    bool   `json:"tight,omitempty"`
	Checked  *bool  `json:"checked,omitempty"`
	Lang     string `json:"lang,omitempty"`
	Href     string `json:"href,omitempty"`
	Src      string `json:"src,omitempty"`
	Title    string `json:"title,omitempty"`
	Align    string `json:"align,omitempty"`
	Children []any  `json:"children,omitempty"`
}

func (e *Engine) jsonParser(parseFlags uint32) goldmark.Markdown {
	if md, ok := e.json[parseFlags]; ok {
		return md
	}
	flags := markdown.ParseFlags(parseFlags)
	md := goldmark.New(
		parserFor(flags),
		goldmark.WithExtensions(extensionsFor(flags)...),
	)
	e.json[parseFlags] = md
	return md
}

// renderJSON writes the document tree as a single JSON object.
func (e *Engine) renderJSON(source []byte, parseFlags uint32, w io.Writer) error {
	doc := e.jsonParser(parseFlags).Parser().Parse(text.NewReader(source))
	root := appendJSON(nil, doc, source)[0]

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(root)
}

func appendJSON(dst []any, n ast.Node, source []byte) []any {
	switch v := n.(type) {
	case *ast.Text:
		s := string(v.Segment.Value(source))
		if v.SoftLineBreak() {
			s += "\n"
		}
		dst = append(dst, s)
		if v.HardLineBreak() {
			dst = append(dst, &jsonNode{Type: "br"})
		}
		return dst
	case *ast.String:
		return append(dst, string(v.Value))
	case *ast.TextBlock:
		return appendChildren(dst, n, source)
	}

	node := &jsonNode{Type: jsonType(n)}
	switch v := n.(type) {
	case *ast.Heading:
		node.Level = v.Level
	case *ast.List:
		node.Tight = v.IsTight
		if v.IsOrdered() {
			node.Start = v.Start
		}
	case *ast.FencedCodeBlock:
		node.Lang = string(v.Language(source))
		node.Children = appendLines(nil, v.Lines(), source)
		return append(dst, node)
	case *ast.CodeBlock, *ast.HTMLBlock:
		node.Children = appendLines(nil, n.Lines(), source)
		return append(dst, node)
	case *ast.RawHTML:
		node.Children = appendLines(nil, v.Segments, source)
		return append(dst, node)
	case *ast.Link:
		node.Href = string(v.Destination)
		node.Title = string(v.Title)
	case *ast.Image:
		node.Src = string(v.Destination)
		node.Title = string(v.Title)
	case *ast.AutoLink:
		node.Href = string(v.URL(source))
		node.Children = []any{string(v.Label(source))}
		return append(dst, node)
	case *east.TaskCheckBox:
		checked := v.IsChecked
		node.Checked = &checked
	case *east.TableCell:
		if v.Alignment != east.AlignNone {
			node.Align = v.Alignment.String()
		}
	}
	node.Children = appendChildren(node.Children, n, source)
	return append(dst, node)
}

func appendChildren(dst []any, n ast.Node, source []byte) []any {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		dst = appendJSON(dst, c, source)
	}
	return dst
}

func appendLines(dst []any, lines *text.Segments, source []byte) []any {
	var sb strings.Builder
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		sb.Write(seg.Value(source))
	}
	if sb.Len() == 0 {
		return dst
	}
	return append(dst, sb.String())
}

func jsonType(n ast.Node) string {
	switch v := n.(type) {
	case *ast.Document:
		return "doc"
	case *ast.Paragraph:
		return "p"
	case *ast.Heading:
		return "h"
	case *ast.Blockquote:
		return "blockquote"
	case *ast.List:
		if v.IsOrdered() {
			return "ol"
		}
		return "ul"
	case *ast.ListItem:
		return "li"
	case *ast.ThematicBreak:
		return "hr"
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		return "code"
	case *ast.HTMLBlock, *ast.RawHTML:
		return "html"
	case *ast.Emphasis:
		if v.Level == 2 {
			return "strong"
		}
		return "em"
	case *ast.CodeSpan:
		return "codespan"
	case *ast.Link, *ast.AutoLink:
		return "a"
	case *ast.Image:
		return "img"
	case *east.Strikethrough:
		return "del"
	case *east.Table:
		return "table"
	case *east.TableHeader:
		return "thead"
	case *east.TableRow:
		return "tr"
	case *east.TableCell:
		return "td"
	case *east.TaskCheckBox:
		return "checkbox"
	}
	return strings.ToLower(n.Kind().String())
}
