// Package extract locates facility fields in raw content and normalizes them
// into canonical records.
//
// Two strategies are provided:
// - Rows (CSV, JSON, YAML, XLSX): keys are matched against an AliasTable,
//   first alias in declared order wins.
// - Free text (PDF): email and phone are found by pattern anywhere in the
//   text; other fields come from labeled lines ("Ville: Laval").
//
// ParseLine handles the one-record-per-line text format.
package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"golang.org/x/text/unicode/norm"
)

// MaxNameLength bounds the nom value produced by ParseLine (NOM column width).
const MaxNameLength = 400

var (
	emailRE = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	phoneRE = regexp.MustCompile(`(?:\+?\d{1,3}[\s.-]?)?(?:\(\d{1,4}\)[\s.-]?)?\d{2,4}(?:[\s.-]?\d{2,4}){2,4}`)
)

// FindEmail returns the first email address in text.
func FindEmail(text string) (string, bool) {
	m := emailRE.FindString(text)
	return m, m != ""
}

// FindPhone returns the first phone number in text.
func FindPhone(text string) (string, bool) {
	m := phoneRE.FindString(text)
	return m, m != ""
}

// LabelMatcher finds the value of one field on a labeled line.
type LabelMatcher struct {
	Field Field
	re    *regexp.Regexp
}

// NewLabelMatcher compiles a case-insensitive, multiline pattern matching a
// line that starts with one of aliases, optionally followed by ':', '-' or
// an en dash. The rest of the line is the value.
func NewLabelMatcher(field Field, aliases []string) LabelMatcher {
	quoted := make([]string, 0, len(aliases))
	for _, a := range aliases {
		quoted = append(quoted, regexp.QuoteMeta(a))
	}
	pattern := `(?im)(?:^|\n)\s*(?:` + strings.Join(quoted, "|") + `)\s*[:\-–]?\s*(.+)$`
	return LabelMatcher{Field: field, re: regexp.MustCompile(pattern)}
}

// Find returns the trimmed remainder of the first labeled line.
func (m LabelMatcher) Find(text string) (string, bool) {
	sub := m.re.FindStringSubmatch(text)
	if len(sub) < 2 {
		return "", false
	}
	v := strings.TrimSpace(sub[1])
	return v, v != ""
}

// CompileLabels builds one matcher per field of t, in table order.
func CompileLabels(t AliasTable) []LabelMatcher {
	fields := t.Fields()
	out := make([]LabelMatcher, 0, len(fields))
	for _, f := range fields {
		aliases := t.Aliases(f)
		if len(aliases) == 0 {
			continue
		}
		out = append(out, NewLabelMatcher(f, aliases))
	}
	return out
}

// TextExtractor pulls fields out of unstructured text.
type TextExtractor struct {
	labels []LabelMatcher
}

// NewTextExtractor compiles label matchers for t.
func NewTextExtractor(t AliasTable) *TextExtractor {
	return &TextExtractor{labels: CompileLabels(t)}
}

// Extract runs the email, phone and label searches independently.
func (x *TextExtractor) Extract(text string) Partial {
	text = norm.NFC.String(text)
	out := Partial{}
	if v, ok := FindEmail(text); ok {
		out[FieldEmail] = v
	}
	if v, ok := FindPhone(text); ok {
		out[FieldTelephone] = v
	}
	for _, m := range x.labels {
		if v, ok := m.Find(text); ok {
			out[m.Field] = v
		}
	}
	return out
}

// RowExtractor resolves canonical fields from a keyed row.
type RowExtractor struct {
	aliases AliasTable
}

// NewRowExtractor returns an extractor using t for key resolution.
func NewRowExtractor(t AliasTable) *RowExtractor {
	return &RowExtractor{aliases: t}
}

// Extract folds the row keys and, per field, takes the value of the first
// alias present with a non-empty value. When two keys fold to the same
// alias the later one wins.
func (x *RowExtractor) Extract(row *orderedmap.OrderedMap[string, string]) Partial {
	folded := orderedmap.New[string, string]()
	if row != nil {
		for pair := row.Oldest(); pair != nil; pair = pair.Next() {
			folded.Set(FoldKey(pair.Key), pair.Value)
		}
	}

	out := Partial{}
	for _, f := range x.aliases.Fields() {
		for _, alias := range x.aliases.Aliases(f) {
			v, ok := folded.Get(alias)
			if !ok {
				continue
			}
			if v = strings.TrimSpace(v); v != "" {
				out[f] = v
				break
			}
		}
	}
	return out
}

// ParseLine applies the single-line heuristic: the first email and then the
// first phone are cut out of the line, and what remains is the name.
// Province and ville are never filled. ok is false for lines that resolve
// to nothing.
func ParseLine(line string) (p Partial, ok bool) {
	rest := strings.TrimSpace(line)
	if rest == "" {
		return nil, false
	}

	p = Partial{}
	if loc := emailRE.FindStringIndex(rest); loc != nil {
		p[FieldEmail] = rest[loc[0]:loc[1]]
		rest = rest[:loc[0]] + " " + rest[loc[1]:]
	}
	if loc := phoneRE.FindStringIndex(rest); loc != nil {
		p[FieldTelephone] = rest[loc[0]:loc[1]]
		rest = rest[:loc[0]] + " " + rest[loc[1]:]
	}

	if nom := truncateRunes(strings.TrimSpace(rest), MaxNameLength); nom != "" {
		p[FieldNom] = nom
	}
	if len(p) == 0 {
		return nil, false
	}
	return p, true
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:max]))
}
