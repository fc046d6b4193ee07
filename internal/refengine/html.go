package refengine

import (
	"bytes"
	"math"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
	"go.uber.org/zap"

	"github.com/woxQAQ/markdown-wasm-go/internal/bridge"
	"github.com/woxQAQ/markdown-wasm-go/pkg/markdown"
)

// converter returns the cached goldmark instance for a flag combination.
func (e *Engine) converter(parseFlags, outputFlags uint32) goldmark.Markdown {
	key := convKey{parseFlags: parseFlags, outputFlags: outputFlags}
	if md, ok := e.html[key]; ok {
		return md
	}

	flags := markdown.ParseFlags(parseFlags)
	out := markdown.OutputFlags(outputFlags)

	rendererOpts := []renderer.Option{
		renderer.WithNodeRenderers(util.Prioritized(&codeBlockRenderer{engine: e}, 100)),
	}
	if out&markdown.OutputXHTML != 0 {
		rendererOpts = append(rendererOpts, html.WithXHTML())
	}
	if flags&markdown.FlagsNoHTML == 0 {
		rendererOpts = append(rendererOpts, html.WithUnsafe())
	}

	var parserOpts []parser.Option
	if out&markdown.OutputAllowJSURI == 0 {
		parserOpts = append(parserOpts, parser.WithASTTransformers(util.Prioritized(jsURIFilter{}, 100)))
	}

	md := goldmark.New(
		parserFor(flags),
		goldmark.WithExtensions(extensionsFor(flags)...),
		goldmark.WithParserOptions(parserOpts...),
		goldmark.WithRendererOptions(rendererOpts...),
	)
	e.html[key] = md
	e.logger.Debug("Created converter",
		zap.String("flags", flags.String()),
		zap.Uint32("output_flags", outputFlags),
	)
	return md
}

// parserFor returns a parser with goldmark's default block, inline and
// paragraph stages. With FlagNoIndentedCodeBlocks the indented code block
// parser is dropped and paragraphs open on indented lines instead. It must
// precede other parser options.
func parserFor(flags markdown.ParseFlags) goldmark.Option {
	noIndented := flags.Has(markdown.FlagNoIndentedCodeBlocks)
	var blocks []util.PrioritizedValue
	for _, v := range parser.DefaultBlockParsers() {
		switch {
		case !noIndented:
		case v.Value == parser.NewCodeBlockParser():
			continue
		case v.Value == parser.NewParagraphParser():
			v.Value = indentedParagraphParser{parser.NewParagraphParser()}
		}
		blocks = append(blocks, v)
	}
	return goldmark.WithParser(parser.NewParser(
		parser.WithBlockParsers(blocks...),
		parser.WithInlineParsers(parser.DefaultInlineParsers()...),
		parser.WithParagraphTransformers(parser.DefaultParagraphTransformers()...),
	))
}

// indentedParagraphParser is goldmark's paragraph parser, allowed to open on
// lines indented four or more columns.
type indentedParagraphParser struct {
	parser.BlockParser
}

func (indentedParagraphParser) CanAcceptIndentedLine() bool { return true }

// extensionsFor maps parser flags onto goldmark extensions. Flags without a
// goldmark counterpart are ignored.
func extensionsFor(flags markdown.ParseFlags) []goldmark.Extender {
	var exts []goldmark.Extender
	if flags.Has(markdown.FlagTables) {
		exts = append(exts, extension.Table)
	}
	if flags.Has(markdown.FlagStrikethrough) {
		exts = append(exts, extension.Strikethrough)
	}
	if flags.Has(markdown.FlagTaskLists) {
		exts = append(exts, extension.TaskList)
	}
	if flags&(markdown.FlagPermissiveURLAutoLinks|markdown.FlagPermissiveWWWAutoLinks|markdown.FlagPermissiveEmailAutoLinks) != 0 {
		exts = append(exts, extension.Linkify)
	}
	return exts
}

// jsURIFilter blanks "javascript:" link destinations. Autolinks carry no
// destination of their own, so matching ones become plain links with an
// empty destination and the original label.
type jsURIFilter struct{}

func (jsURIFilter) Transform(doc *ast.Document, reader text.Reader, _ parser.Context) {
	source := reader.Source()
	var autolinks []*ast.AutoLink
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n := n.(type) {
		case *ast.Link:
			if isJavaScriptURI(n.Destination) {
				n.Destination = []byte{}
			}
		case *ast.AutoLink:
			if isJavaScriptURI(n.URL(source)) {
				autolinks = append(autolinks, n)
			}
		}
		return ast.WalkContinue, nil
	})

	for _, al := range autolinks {
		label := ast.NewString(util.EscapeHTML(al.Label(source)))
		label.SetCode(true)
		link := ast.NewLink()
		link.Destination = []byte{}
		link.AppendChild(link, label)
		parent := al.Parent()
		parent.ReplaceChild(parent, al, link)
	}
}

func isJavaScriptURI(dest []byte) bool {
	const scheme = "javascript:"
	return len(dest) >= len(scheme) && bytes.EqualFold(dest[:len(scheme)], []byte(scheme))
}

// codeBlockRenderer renders fenced and indented code blocks, offering each
// body to the hook of the current call.
type codeBlockRenderer struct {
	engine *Engine
}

func (r *codeBlockRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindFencedCodeBlock, r.renderFencedCodeBlock)
	reg.Register(ast.KindCodeBlock, r.renderCodeBlock)
}

func (r *codeBlockRenderer) renderFencedCodeBlock(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*ast.FencedCodeBlock)

	var lang []byte
	langStart := 0
	if n.Info != nil {
		lang = n.Language(source)
		langStart = n.Info.Segment.Start
	}

	_, _ = w.WriteString("<pre><code")
	if len(lang) > 0 {
		_, _ = w.WriteString(` class="language-`)
		_, _ = w.Write(util.EscapeHTML(lang))
		_ = w.WriteByte('"')
	}
	_ = w.WriteByte('>')
	if err := r.writeBody(w, source, n.Lines(), lang, langStart); err != nil {
		return ast.WalkStop, err
	}
	_, _ = w.WriteString("</code></pre>\n")
	return ast.WalkContinue, nil
}

func (r *codeBlockRenderer) renderCodeBlock(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	_, _ = w.WriteString("<pre><code>")
	if err := r.writeBody(w, source, node.Lines(), nil, 0); err != nil {
		return ast.WalkStop, err
	}
	_, _ = w.WriteString("</code></pre>\n")
	return ast.WalkContinue, nil
}

// writeBody emits the block body, through the hook when one is installed.
// The language tag is passed in place inside the caller's input buffer; the
// body is staged in a scratch region since its lines are not contiguous.
func (r *codeBlockRenderer) writeBody(w util.BufWriter, source []byte, lines *text.Segments, lang []byte, langStart int) error {
	var body []byte
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		body = append(body, line.Value(source)...)
	}

	e := r.engine
	call := e.call
	if call == nil || call.hook == nil || len(body) > math.MaxInt32 {
		_, _ = w.Write(util.EscapeHTML(body))
		return nil
	}

	e.tmp.reset()
	if _, err := e.tmp.Write(body); err != nil {
		return err
	}

	var langAddr bridge.Address
	if len(lang) > 0 {
		langAddr = call.input + bridge.Address(langStart)
	}
	e.mem.WriteUint32Le(e.hookOut, 0)

	n := call.hook(call.ctx, langAddr, uint32(len(lang)), bridge.Address(e.tmp.addr), uint32(len(body)), bridge.Address(e.hookOut))

	outPtr, _ := e.mem.ReadUint32Le(e.hookOut)
	if n > 0 && outPtr != 0 {
		if data, ok := e.mem.Read(outPtr, uint32(n)); ok {
			_, _ = w.Write(data)
		}
	}
	if outPtr != 0 {
		e.heap.release(outPtr)
	}
	if n < 0 {
		_, _ = w.Write(util.EscapeHTML(body))
	}
	return nil
}
