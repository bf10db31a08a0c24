package rules

import (
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/Keav/smbfix/smbfix/filesystem/types"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Sanitize maps name to an SMB-legal name. It is total, deterministic and
// idempotent: the pipeline is re-applied until the name stops changing.
func (t *Table) Sanitize(name string, kind types.EntryKind) string {
	cur := name
	for range maxPasses {
		next := t.clean(cur, kind)
		if next == cur {
			return cur
		}
		cur = next
	}
	return cur
}

func (t *Table) clean(name string, kind types.EntryKind) string {
	s := norm.NFC.String(t.fixUTF8(name))

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == noBreakSpace:
			b.WriteRune(' ')
		case t.illegalRune(r):
			b.WriteRune(t.replacement)
		default:
			b.WriteRune(r)
		}
	}

	s = strings.Trim(collapseSpaces(b.String()), " ")

	if trimmed := strings.TrimRight(s, "."); len(trimmed) != len(s) {
		s = trimmed + strings.Repeat(string(t.replacement), len(s)-len(trimmed))
	}

	if s == "" {
		return UnnamedFile
	}

	if t.IsReservedName(s) {
		stem := reservedStem(s)
		s = stem + string(t.replacement) + s[len(stem):]
	}

	if utf16Len(s) > MaxNameUnits {
		s = WithSuffix(s, kind, "")
	}
	return s
}

// fixUTF8 replaces bytes that are not valid UTF-8; SMB names are UTF-16 on the wire.
func (t *Table) fixUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size <= 1 {
			b.WriteRune(t.replacement)
			i++
			continue
		}
		b.WriteString(s[i : i+size])
		i += size
	}
	return b.String()
}

// Violations lists every rule name breaks, in table order.
func (t *Table) Violations(name string) []Violation {
	var out []Violation
	seen := make(map[Violation]bool)
	add := func(v Violation) {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}

	if name == "" {
		return []Violation{ViolationEmpty}
	}
	if !utf8.ValidString(name) {
		add(ViolationInvalidUTF8)
	} else if !norm.NFC.IsNormalString(name) {
		add(ViolationNotNFC)
	}
	for _, r := range name {
		if v, bad := t.classify(r); bad {
			add(v)
		}
	}
	if strings.HasPrefix(name, " ") || strings.HasSuffix(name, " ") || strings.Contains(name, "  ") {
		add(ViolationWhitespace)
	}
	if strings.HasSuffix(name, ".") {
		add(ViolationTrailingDot)
	}
	if t.IsReservedName(name) {
		add(ViolationReservedName)
	}
	if utf16Len(name) > MaxNameUnits {
		add(ViolationTooLong)
	}
	return out
}

// IsLegal reports whether name breaks no rule
func (t *Table) IsLegal(name string) bool {
	return len(t.Violations(name)) == 0
}

// SplitExt splits a file name into stem and extension. Directories and
// dot-files without a further dot have no extension.
func SplitExt(name string, kind types.EntryKind) (stem, ext string) {
	if kind == types.KindDirectory {
		return name, ""
	}
	i := strings.LastIndexByte(name, '.')
	if i <= 0 || i == len(name)-1 {
		return name, ""
	}
	return name[:i], name[i:]
}

// WithSuffix inserts suffix between stem and extension, truncating the stem so
// the result fits in MaxNameUnits. An extension that leaves no room is dropped.
func WithSuffix(name string, kind types.EntryKind, suffix string) string {
	stem, ext := SplitExt(name, kind)
	budget := MaxNameUnits - utf16Len(suffix) - utf16Len(ext)
	if budget < 1 {
		stem, ext = name, ""
		budget = MaxNameUnits - utf16Len(suffix)
	}
	stem = truncateUnits(stem, budget)
	if suffix != "" {
		stem = strings.TrimRight(stem, " ")
	}
	if stem == "" {
		stem = UnnamedStem
	}
	return stem + suffix + ext
}

// FoldKey returns the key two sibling names collide on.
func FoldKey(name string, caseInsensitive bool) string {
	name = norm.NFC.String(name)
	if !caseInsensitive {
		return name
	}
	return cases.Fold().String(name)
}

func collapseSpaces(s string) string {
	if !strings.Contains(s, "  ") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	prevSpace := false
	for _, r := range s {
		if r == ' ' {
			if prevSpace {
				continue
			}
			prevSpace = true
		} else {
			prevSpace = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		if l := utf16.RuneLen(r); l > 0 {
			n += l
		} else {
			n++
		}
	}
	return n
}

func truncateUnits(s string, limit int) string {
	n := 0
	for i, r := range s {
		l := utf16.RuneLen(r)
		if l < 0 {
			l = 1
		}
		if n+l > limit {
			return s[:i]
		}
		n += l
	}
	return s
}
