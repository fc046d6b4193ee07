package markdown

// Shared markdown option types used by the bridge, the engines and the CLI.
// Bit values match the md4c parser flags compiled into markdown engines.

import (
	"fmt"
	"sort"
	"strings"
)

// ParseFlags selects CommonMark extension behaviour in the engine.
type ParseFlags uint32

const (
	FlagCollapseWhitespace       ParseFlags = 0x0001 // In TEXT, collapse non-trivial whitespace into single ' '
	FlagPermissiveATXHeaders     ParseFlags = 0x0002 // Do not require space in ATX headers ( ###header )
	FlagPermissiveURLAutoLinks   ParseFlags = 0x0004 // Recognize URLs as links even without <...>
	FlagPermissiveEmailAutoLinks ParseFlags = 0x0008 // Recognize e-mails as links even without <...>
	FlagNoIndentedCodeBlocks     ParseFlags = 0x0010 // Disable indented code blocks (only fenced code works)
	FlagNoHTMLBlocks             ParseFlags = 0x0020 // Disable raw HTML blocks
	FlagNoHTMLSpans              ParseFlags = 0x0040 // Disable raw HTML (inline)
	FlagTables                   ParseFlags = 0x0100 // Enable tables extension
	FlagStrikethrough            ParseFlags = 0x0200 // Enable strikethrough extension
	FlagPermissiveWWWAutoLinks   ParseFlags = 0x0400 // Enable WWW autolinks (without proto; just 'www.')
	FlagTaskLists                ParseFlags = 0x0800 // Enable task list extension
	FlagLatexMathSpans           ParseFlags = 0x1000 // Enable $ and $$ containing LaTeX equations
	FlagWikiLinks                ParseFlags = 0x2000 // Enable wiki links extension
	FlagUnderline                ParseFlags = 0x4000 // Enable underline extension (disables '_' for emphasis)

	// FlagsDefault is GitHub style parsing.
	FlagsDefault = FlagCollapseWhitespace |
		FlagPermissiveATXHeaders |
		FlagPermissiveURLAutoLinks |
		FlagStrikethrough |
		FlagTables |
		FlagTaskLists

	// FlagsNoHTML is shorthand for FlagNoHTMLBlocks | FlagNoHTMLSpans.
	FlagsNoHTML = FlagNoHTMLBlocks | FlagNoHTMLSpans

	// FlagsNone requests strict CommonMark. The zero value of ParseFlags
	// selects FlagsDefault, so an explicit marker is needed for "no extensions".
	// It is never passed to the engine.
	FlagsNone ParseFlags = 1 << 31
)

var flagNames = map[string]ParseFlags{
	"collapse_whitespace":         FlagCollapseWhitespace,
	"permissive_atx_headers":      FlagPermissiveATXHeaders,
	"permissive_url_auto_links":   FlagPermissiveURLAutoLinks,
	"permissive_email_auto_links": FlagPermissiveEmailAutoLinks,
	"no_indented_code_blocks":     FlagNoIndentedCodeBlocks,
	"no_html_blocks":              FlagNoHTMLBlocks,
	"no_html_spans":               FlagNoHTMLSpans,
	"tables":                      FlagTables,
	"strikethrough":               FlagStrikethrough,
	"permissive_www_autolinks":    FlagPermissiveWWWAutoLinks,
	"task_lists":                  FlagTaskLists,
	"latex_math_spans":            FlagLatexMathSpans,
	"wiki_links":                  FlagWikiLinks,
	"underline":                   FlagUnderline,
	"default":                     FlagsDefault,
	"no_html":                     FlagsNoHTML,
	"none":                        FlagsNone,
}

// Resolve returns the bits to hand to the engine.
func (f ParseFlags) Resolve() uint32 {
	if f == 0 {
		return uint32(FlagsDefault)
	}
	return uint32(f &^ FlagsNone)
}

// Has reports whether all bits of other are set in f.
func (f ParseFlags) Has(other ParseFlags) bool {
	return f&other == other
}

// String lists the set flag names, e.g. "tables|strikethrough".
func (f ParseFlags) String() string {
	if f == 0 {
		return "default"
	}
	var names []string
	for name, bit := range flagNames {
		switch name {
		case "default", "no_html":
			continue
		}
		if f.Has(bit) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return strings.Join(names, "|")
}

// ParseFlagNames converts flag names (as used in config files) to ParseFlags.
// Names are case-insensitive; "-" and "_" are interchangeable.
func ParseFlagNames(names []string) (ParseFlags, error) {
	var f ParseFlags
	for _, name := range names {
		key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
		if key == "" {
			continue
		}
		bit, ok := flagNames[key]
		if !ok {
			return 0, fmt.Errorf("unknown parse flag %q", name)
		}
		f |= bit
	}
	return f, nil
}

// OutputFlags is the formatter bitset understood by parseUTF8.
type OutputFlags uint32

const (
	OutputHTML       OutputFlags = 1 << 0 // Output HTML
	OutputXHTML      OutputFlags = 1 << 1 // Output XHTML (only has effect with OutputHTML set)
	OutputAllowJSURI OutputFlags = 1 << 2 // Allow "javascript:" URIs
)

// Format names the output representation requested by a caller.
type Format string

const (
	FormatHTML  Format = "html"
	FormatXHTML Format = "xhtml"
	// FormatJSON is experimental and only available on engines that
	// export a JSON formatter.
	FormatJSON Format = "json"
)

// ParseFormat maps a user supplied name to a Format. The empty string means HTML.
func ParseFormat(s string) (Format, bool) {
	switch Format(strings.ToLower(s)) {
	case "", FormatHTML:
		return FormatHTML, true
	case FormatXHTML:
		return FormatXHTML, true
	case FormatJSON:
		return FormatJSON, true
	}
	return "", false
}
