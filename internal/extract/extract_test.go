package extract

import (
	"strings"
	"testing"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

func rowOf(kv ...string) *orderedmap.OrderedMap[string, string] {
	row := orderedmap.New[string, string]()
	for i := 0; i+1 < len(kv); i += 2 {
		row.Set(kv[i], kv[i+1])
	}
	return row
}

func TestRowExtractor_AliasPrecedence(t *testing.T) {
	x := NewRowExtractor(StructuredAliases)

	// "org" is declared after "hospital_name" for nom, so it loses even
	// though it appears first in the row.
	got := x.Extract(rowOf(
		"org", "Org Holdings",
		"Hospital_Name", "Hôpital Saint-Luc",
	))
	if got[FieldNom] != "Hôpital Saint-Luc" {
		t.Fatalf("nom = %q, want %q", got[FieldNom], "Hôpital Saint-Luc")
	}
}

func TestRowExtractor_Fields(t *testing.T) {
	x := NewRowExtractor(StructuredAliases)

	tests := []struct {
		name string
		row  *orderedmap.OrderedMap[string, string]
		want Partial
	}{
		{
			name: "all fields via aliases",
			row: rowOf(
				" Name ", "Clinique du Parc",
				"E-Mail", "info@parc.ca",
				"Phone", "418 555 0101",
				"State", "Québec",
				"City", "Lévis",
				"Rooms", "12",
			),
			want: Partial{
				FieldNom:         "Clinique du Parc",
				FieldEmail:       "info@parc.ca",
				FieldTelephone:   "418 555 0101",
				FieldProvince:    "Québec",
				FieldVille:       "Lévis",
				FieldNombreSalle: "12",
			},
		},
		{
			name: "empty value falls through to next alias",
			row:  rowOf("nom", "", "name", "Fallback"),
			want: Partial{FieldNom: "Fallback"},
		},
		{
			name: "accented alias in decomposed form",
			row:  rowOf("Te\u0301le\u0301phone", "514-555-0000"),
			want: Partial{FieldTelephone: "514-555-0000"},
		},
		{
			name: "later duplicate key wins after folding",
			row:  rowOf("Ville", "Montréal", "ville", "Laval"),
			want: Partial{FieldVille: "Laval"},
		},
		{
			name: "unknown keys",
			row:  rowOf("foo", "bar"),
			want: Partial{},
		},
		{
			name: "nil row",
			row:  nil,
			want: Partial{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := x.Extract(tt.row)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for f, v := range tt.want {
				if got[f] != v {
					t.Errorf("%s = %q, want %q", f, got[f], v)
				}
			}
		})
	}
}

func TestTextExtractor_Labels(t *testing.T) {
	x := NewTextExtractor(LabelAliases)

	got := x.Extract("Nom: Hôpital Saint-Louis\nVille: Laval\n")
	if got[FieldNom] != "Hôpital Saint-Louis" {
		t.Errorf("nom = %q", got[FieldNom])
	}
	if got[FieldVille] != "Laval" {
		t.Errorf("ville = %q", got[FieldVille])
	}
	for _, f := range []Field{FieldEmail, FieldTelephone, FieldProvince, FieldNombreSalle} {
		if _, ok := got[f]; ok {
			t.Errorf("%s should be unresolved, got %q", f, got[f])
		}
	}
}

func TestTextExtractor_LabelSeparators(t *testing.T) {
	x := NewTextExtractor(LabelAliases)

	tests := []struct {
		text  string
		field Field
		want  string
	}{
		{"PROVINCE - Ontario", FieldProvince, "Ontario"},
		{"Région – Estrie", FieldProvince, "Estrie"},
		{"city Sherbrooke", FieldVille, "Sherbrooke"},
		{"intro\n   Nb salles : 8  \nfin", FieldNombreSalle, "8"},
		{"Établissement: CHU de Québec", FieldNom, "CHU de Québec"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := x.Extract(tt.text)
			if got[tt.field] != tt.want {
				t.Fatalf("%s = %q, want %q", tt.field, got[tt.field], tt.want)
			}
		})
	}
}

func TestTextExtractor_FirstLabelWins(t *testing.T) {
	x := NewTextExtractor(LabelAliases)
	got := x.Extract("Ville: Gatineau\nCity: Ottawa\n")
	if got[FieldVille] != "Gatineau" {
		t.Fatalf("ville = %q, want Gatineau", got[FieldVille])
	}
}

func TestTextExtractor_EmailPhoneAnywhere(t *testing.T) {
	x := NewTextExtractor(LabelAliases)

	got := x.Extract("contact us at a@b.com or call 514-555-1234")
	if got[FieldEmail] != "a@b.com" {
		t.Errorf("email = %q", got[FieldEmail])
	}
	if got[FieldTelephone] != "514-555-1234" {
		t.Errorf("telephone = %q", got[FieldTelephone])
	}
	if _, ok := got[FieldNom]; ok {
		t.Errorf("nom should be unresolved, got %q", got[FieldNom])
	}
}

func TestFindPhone(t *testing.T) {
	tests := []struct {
		text string
		want string
		ok   bool
	}{
		{"tel +1 (514) 555-1234 ext", "+1 (514) 555-1234", true},
		{"appelez le 01.23.45.67.89", "01.23.45.67.89", true},
		{"room 12", "", false},
		{"no digits here", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := FindPhone(tt.text)
			if ok != tt.ok || got != tt.want {
				t.Fatalf("FindPhone(%q) = %q, %v; want %q, %v", tt.text, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestFindEmail_FirstMatch(t *testing.T) {
	got, ok := FindEmail("x first.last+tag@sub.example.org then b@c.io")
	if !ok || got != "first.last+tag@sub.example.org" {
		t.Fatalf("FindEmail = %q, %v", got, ok)
	}
	if _, ok := FindEmail("user@localhost"); ok {
		t.Fatal("expected no match without a TLD")
	}
}

func TestParseLine(t *testing.T) {
	p, ok := ParseLine("Dr. Martin Roy a@b.com 514-555-1234")
	if !ok {
		t.Fatal("expected line to be kept")
	}
	if p[FieldNom] != "Dr. Martin Roy" {
		t.Errorf("nom = %q", p[FieldNom])
	}
	if p[FieldEmail] != "a@b.com" {
		t.Errorf("email = %q", p[FieldEmail])
	}
	if p[FieldTelephone] != "514-555-1234" {
		t.Errorf("telephone = %q", p[FieldTelephone])
	}

	rec := Normalize(p, "list.txt")
	if rec.Province != Placeholder || rec.Ville != Placeholder || rec.NombreSalle != Placeholder {
		t.Errorf("province/ville/nombre_salle should be placeholders: %+v", rec)
	}
}

func TestParseLine_Dropped(t *testing.T) {
	for _, line := range []string{"", "   ", "\t\r"} {
		if _, ok := ParseLine(line); ok {
			t.Errorf("ParseLine(%q) should drop the line", line)
		}
	}
}

func TestParseLine_OnlyContact(t *testing.T) {
	p, ok := ParseLine("  info@clinique.ca  ")
	if !ok {
		t.Fatal("expected line with email to be kept")
	}
	if _, has := p[FieldNom]; has {
		t.Errorf("nom should be unresolved, got %q", p[FieldNom])
	}
}

func TestParseLine_TruncatesName(t *testing.T) {
	long := strings.Repeat("é", MaxNameLength+50)
	p, ok := ParseLine(long)
	if !ok {
		t.Fatal("expected line to be kept")
	}
	if n := len([]rune(p[FieldNom])); n != MaxNameLength {
		t.Fatalf("nom has %d runes, want %d", n, MaxNameLength)
	}
}
