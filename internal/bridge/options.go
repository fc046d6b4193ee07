package bridge

import (
	"github.com/woxQAQ/markdown-wasm-go/pkg/markdown"
)

// Options control a single parse call.
type Options struct {
	// Flags selects parser extensions. The zero value means
	// markdown.FlagsDefault; use markdown.FlagsNone for strict CommonMark.
	Flags markdown.ParseFlags

	// Format is "html" (default), "xhtml" or the experimental "json".
	Format markdown.Format

	// AllowJSURIs keeps "javascript:" link targets.
	AllowJSURIs bool

	// OnCodeBlock, when set, is offered every code block.
	OnCodeBlock CodeBlockFilter

	// OnCallbackError receives failures of OnCodeBlock. They never abort the
	// parse; the affected block falls back to default escaping.
	OnCallbackError func(error)
}

// resolve validates opts against the engine and builds the request
// template. It must not touch engine memory.
func (o Options) resolve(native Native) (ParseRequest, error) {
	format, ok := markdown.ParseFormat(string(o.Format))
	if !ok {
		return ParseRequest{}, &InvalidOptionError{
			Option: "format",
			Value:  string(o.Format),
			Reason: "must be one of: html, xhtml, json",
		}
	}

	req := ParseRequest{
		ParseFlags: o.Flags.Resolve(),
		Formatter:  FormatterHTML,
	}
	var out markdown.OutputFlags
	if o.AllowJSURIs {
		out |= markdown.OutputAllowJSURI
	}

	switch format {
	case markdown.FormatHTML:
		out |= markdown.OutputHTML
	case markdown.FormatXHTML:
		out |= markdown.OutputHTML | markdown.OutputXHTML
	case markdown.FormatJSON:
		if !native.SupportsFormatter(FormatterJSON) {
			return ParseRequest{}, &InvalidOptionError{
				Option: "format",
				Value:  string(o.Format),
				Reason: "engine " + native.Name() + " has no JSON formatter",
			}
		}
		req.Formatter = FormatterJSON
	}
	req.OutputFlags = uint32(out)
	return req, nil
}
