package markdown

import "testing"

func TestParseFlagsResolve(t *testing.T) {
	tests := []struct {
		name  string
		flags ParseFlags
		want  uint32
	}{
		{"zero selects default", 0, uint32(FlagsDefault)},
		{"none is strict", FlagsNone, 0},
		{"none is stripped", FlagsNone | FlagTables, uint32(FlagTables)},
		{"explicit", FlagTables | FlagStrikethrough, 0x0300},
	}

	for _, tt := range tests {
		if got := tt.flags.Resolve(); got != tt.want {
			t.Errorf("%s: Resolve() = %#x, want %#x", tt.name, got, tt.want)
		}
	}
}

func TestDefaultFlagValue(t *testing.T) {
	if FlagsDefault != 0x0001|0x0002|0x0004|0x0200|0x0100|0x0800 {
		t.Errorf("FlagsDefault = %#x", uint32(FlagsDefault))
	}
	if FlagsNoHTML != 0x0060 {
		t.Errorf("FlagsNoHTML = %#x, want 0x60", uint32(FlagsNoHTML))
	}
}

func TestParseFlagNames(t *testing.T) {
	f, err := ParseFlagNames([]string{"Tables", "task-lists", " no_html "})
	if err != nil {
		t.Fatalf("ParseFlagNames() failed: %v", err)
	}

	want := FlagTables | FlagTaskLists | FlagNoHTMLBlocks | FlagNoHTMLSpans
	if f != want {
		t.Errorf("ParseFlagNames() = %s, want %s", f, want)
	}

	if _, err := ParseFlagNames([]string{"tables", "bogus"}); err == nil {
		t.Error("ParseFlagNames() should fail for unknown names")
	}
}

func TestParseFlagsString(t *testing.T) {
	if got := ParseFlags(0).String(); got != "default" {
		t.Errorf("String() = %q, want default", got)
	}
	if got := (FlagTables | FlagStrikethrough).String(); got != "strikethrough|tables" {
		t.Errorf("String() = %q", got)
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
		ok   bool
	}{
		{"", FormatHTML, true},
		{"html", FormatHTML, true},
		{"XHTML", FormatXHTML, true},
		{"json", FormatJSON, true},
		{"pdf", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseFormat(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseFormat(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
