package extract

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// AliasEntry declares the accepted source names for one canonical field.
// Earlier aliases take precedence.
type AliasEntry struct {
	Field   Field
	Aliases []string
}

// AliasTable maps canonical fields to ordered alias lists. It is immutable once
// built; accessors return copies.
type AliasTable struct {
	fields  []Field
	aliases map[Field][]string
}

// NewAliasTable builds a table from entries. Aliases are folded (trimmed,
// lower-cased, NFC) so lookups are case-insensitive. A field declared twice
// keeps its first position and gets the later aliases appended.
func NewAliasTable(entries ...AliasEntry) AliasTable {
	t := AliasTable{aliases: make(map[Field][]string, len(entries))}
	for _, e := range entries {
		if _, seen := t.aliases[e.Field]; !seen {
			t.fields = append(t.fields, e.Field)
		}
		for _, a := range e.Aliases {
			if k := FoldKey(a); k != "" {
				t.aliases[e.Field] = append(t.aliases[e.Field], k)
			}
		}
	}
	return t
}

// Fields returns the fields in declaration order.
func (t AliasTable) Fields() []Field {
	return append([]Field(nil), t.fields...)
}

// Aliases returns the folded aliases for f in precedence order.
func (t AliasTable) Aliases(f Field) []string {
	return append([]string(nil), t.aliases[f]...)
}

// FoldKey normalizes a source key for alias comparison.
func FoldKey(s string) string {
	return norm.NFC.String(strings.ToLower(strings.TrimSpace(s)))
}

// StructuredAliases resolves keys of CSV/JSON/YAML/XLSX rows.
var StructuredAliases = NewAliasTable(
	AliasEntry{FieldNom, []string{"nom", "name", "hospital", "hopital", "hôpital", "hospital_name", "organisation", "organization", "org"}},
	AliasEntry{FieldEmail, []string{"email", "e-mail", "mail", "contact_email"}},
	AliasEntry{FieldTelephone, []string{"telephone", "téléphone", "tel", "phone", "phone_number", "contact_phone"}},
	AliasEntry{FieldProvince, []string{"province", "provine", "state", "region"}},
	AliasEntry{FieldVille, []string{"ville", "city", "localite", "localité", "town"}},
	AliasEntry{FieldNombreSalle, []string{"nombre_salle", "nb_salle", "nbre_salle", "rooms", "number_of_rooms", "rooms_count", "salles", "nombre_de_salles"}},
)

// LabelAliases are the line labels searched in free text. Email and telephone
// are found by pattern instead.
var LabelAliases = NewAliasTable(
	AliasEntry{FieldNom, []string{"nom", "name", "hôpital", "hopital", "hospital", "etablissement", "établissement"}},
	AliasEntry{FieldProvince, []string{"province", "provine", "région", "region", "state"}},
	AliasEntry{FieldVille, []string{"ville", "city", "localité", "localite", "commune"}},
	AliasEntry{FieldNombreSalle, []string{"nombre de salle", "nombre_salle", "nbre de salles", "nb salles", "rooms", "rooms count", "number of rooms"}},
)
