// Package rules holds the enumerated SMB naming rules and the name sanitizer
// built on them.
package rules

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Violation names one broken rule.
type Violation string

const (
	ViolationEmpty        Violation = "empty"
	ViolationNotNFC       Violation = "not_nfc"
	ViolationReservedChar Violation = "reserved_char"
	ViolationLegacyChar   Violation = "legacy_char"
	ViolationProblemRune  Violation = "problem_rune"
	ViolationNoBreakSpace Violation = "no_break_space"
	ViolationWhitespace   Violation = "whitespace"
	ViolationTrailingDot  Violation = "trailing_dot"
	ViolationReservedName Violation = "reserved_name"
	ViolationTooLong      Violation = "too_long"
	ViolationInvalidUTF8  Violation = "invalid_utf8"
)

// ReservedCharacters can never appear in an SMB name.
var ReservedCharacters = []rune{'\\', '/', ':', '*', '?', '"', '<', '>', '|'}

// LegacyCharacters break 8.3 name mangling and some older clients.
var LegacyCharacters = []rune{'+', ',', ';', '=', '[', ']'}

// ProblemRunes are C0 controls, DEL, combining diacritics and the Private Use
// Area (where macOS maps characters it cannot store on SMB).
var ProblemRunes = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x0000, Hi: 0x001f, Stride: 1},
		{Lo: 0x007f, Hi: 0x007f, Stride: 1},
		{Lo: 0x0300, Hi: 0x036f, Stride: 1},
		{Lo: 0xe000, Hi: 0xf8ff, Stride: 1},
	},
	LatinOffset: 2,
}

// ReservedNames are Windows device names, matched case-insensitively against
// the part of a name before its first dot.
var ReservedNames = []string{
	"CON", "PRN", "AUX", "NUL",
	"COM1", "COM2", "COM3", "COM4", "COM5", "COM6", "COM7", "COM8", "COM9",
	"LPT1", "LPT2", "LPT3", "LPT4", "LPT5", "LPT6", "LPT7", "LPT8", "LPT9",
}

const (
	// MaxNameUnits is the SMB limit for one path component, in UTF-16 code units
	MaxNameUnits = 255

	noBreakSpace = '\u00a0'

	// UnnamedFile replaces names that are empty after cleaning
	UnnamedFile = "unnamed_file"
	// UnnamedStem replaces an empty stem when an extension survives
	UnnamedStem = "file"

	maxPasses = 8
)

// Options configures a Table
type Options struct {
	Replacement   rune
	StrictCharset bool
}

// DefaultOptions mirrors the classic Windows/SMB rule set.
func DefaultOptions() Options {
	return Options{Replacement: '_', StrictCharset: true}
}

// Table is an immutable rule set. It is safe for concurrent use.
type Table struct {
	replacement rune
	strict      bool
	reserved    map[rune]struct{}
	legacy      map[rune]struct{}
	names       map[string]struct{}
}

// NewTable builds a Table, rejecting a replacement that would itself break a rule.
func NewTable(opts Options) (*Table, error) {
	t := &Table{
		replacement: opts.Replacement,
		strict:      opts.StrictCharset,
		reserved:    runeSet(ReservedCharacters),
		legacy:      runeSet(LegacyCharacters),
		names:       make(map[string]struct{}, len(ReservedNames)),
	}
	for _, n := range ReservedNames {
		t.names[n] = struct{}{}
	}

	r := opts.Replacement
	if r == utf8.RuneError || r == ' ' || r == '.' || r == noBreakSpace || unicode.IsSpace(r) || t.illegalRune(r) {
		return nil, fmt.Errorf("replacement %q is not a legal SMB name character", r)
	}
	return t, nil
}

// MustTable is NewTable for options known to be valid
func MustTable(opts Options) *Table {
	t, err := NewTable(opts)
	if err != nil {
		panic(err)
	}
	return t
}

// Default returns a table with DefaultOptions
func Default() *Table {
	return MustTable(DefaultOptions())
}

// Replacement returns the character substituted for illegal ones
func (t *Table) Replacement() rune { return t.replacement }

func (t *Table) illegalRune(r rune) bool {
	if _, ok := t.reserved[r]; ok {
		return true
	}
	if _, ok := t.legacy[r]; ok && t.strict {
		return true
	}
	return unicode.Is(ProblemRunes, r)
}

func (t *Table) classify(r rune) (Violation, bool) {
	if _, ok := t.reserved[r]; ok {
		return ViolationReservedChar, true
	}
	if _, ok := t.legacy[r]; ok && t.strict {
		return ViolationLegacyChar, true
	}
	if unicode.Is(ProblemRunes, r) {
		return ViolationProblemRune, true
	}
	if r == noBreakSpace {
		return ViolationNoBreakSpace, true
	}
	return "", false
}

// IsReservedName reports whether name's stem is a device name.
func (t *Table) IsReservedName(name string) bool {
	_, ok := t.names[strings.ToUpper(reservedStem(name))]
	return ok
}

// reservedStem is the part before the first dot without trailing spaces.
func reservedStem(name string) string {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		name = name[:i]
	}
	return strings.TrimRight(name, " ")
}

func runeSet(rs []rune) map[rune]struct{} {
	m := make(map[rune]struct{}, len(rs))
	for _, r := range rs {
		m[r] = struct{}{}
	}
	return m
}
