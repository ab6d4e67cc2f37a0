package extract

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Placeholder is stored for every canonical field that could not be resolved.
// Storage treats it as "column present, value unknown".
const Placeholder = " "

// Field names a canonical facility field. The string value is also the JSON key.
type Field string

const (
	FieldNom         Field = "nom"
	FieldEmail       Field = "email"
	FieldTelephone   Field = "telephone"
	FieldProvince    Field = "province"
	FieldVille       Field = "ville"
	FieldNombreSalle Field = "nombre_salle"
)

// CanonicalFields lists the six canonical fields in schema order.
var CanonicalFields = []Field{
	FieldNom, FieldEmail, FieldTelephone, FieldProvince, FieldVille, FieldNombreSalle,
}

// Partial is the output of a field extractor: only resolved fields are set.
type Partial map[Field]string

// Record is one canonical facility entry. All six fields are always set;
// unresolved ones hold Placeholder.
type Record struct {
	Nom         string `json:"nom"`
	Email       string `json:"email"`
	Telephone   string `json:"telephone"`
	Province    string `json:"province"`
	Ville       string `json:"ville"`
	NombreSalle string `json:"nombre_salle"`
	File        string `json:"file"`
}

// Get returns the value of a canonical field.
func (r Record) Get(f Field) string {
	switch f {
	case FieldNom:
		return r.Nom
	case FieldEmail:
		return r.Email
	case FieldTelephone:
		return r.Telephone
	case FieldProvince:
		return r.Province
	case FieldVille:
		return r.Ville
	case FieldNombreSalle:
		return r.NombreSalle
	}
	return ""
}

// Blank reports whether every canonical field is unresolved.
func (r Record) Blank() bool {
	for _, f := range CanonicalFields {
		if strings.TrimSpace(r.Get(f)) != "" {
			return false
		}
	}
	return true
}

// Normalize completes a partial mapping into a Record and tags it with file.
func Normalize(p Partial, file string) Record {
	return Record{
		Nom:         resolved(p[FieldNom]),
		Email:       resolved(p[FieldEmail]),
		Telephone:   resolved(p[FieldTelephone]),
		Province:    resolved(p[FieldProvince]),
		Ville:       resolved(p[FieldVille]),
		NombreSalle: resolved(p[FieldNombreSalle]),
		File:        file,
	}
}

func resolved(v string) string {
	if strings.TrimSpace(v) == "" {
		return Placeholder
	}
	return v
}

// ErrorRecord reports a failure for one file, or for the whole batch when
// File is empty.
type ErrorRecord struct {
	File  string `json:"file,omitempty"`
	Error string `json:"error"`
}

// Result is either a Record or an ErrorRecord, never both.
type Result struct {
	Record  *Record
	Failure *ErrorRecord
}

// Success wraps a record.
func Success(r Record) Result {
	return Result{Record: &r}
}

// Failed wraps err as a failure for file.
func Failed(file string, err error) Result {
	return Result{Failure: &ErrorRecord{File: file, Error: err.Error()}}
}

// OK reports whether the result carries a record.
func (r Result) OK() bool {
	return r.Record != nil
}

// MarshalJSON emits the record or the error record, whichever is set.
func (r Result) MarshalJSON() ([]byte, error) {
	switch {
	case r.Record != nil:
		return json.Marshal(r.Record)
	case r.Failure != nil:
		return json.Marshal(r.Failure)
	}
	return nil, fmt.Errorf("empty result")
}

// UnmarshalJSON decodes an element produced by MarshalJSON. An object with an
// "error" key is a failure.
func (r *Result) UnmarshalJSON(data []byte) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	if _, ok := probe["error"]; ok {
		var e ErrorRecord
		if err := json.Unmarshal(data, &e); err != nil {
			return err
		}
		*r = Result{Failure: &e}
		return nil
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	*r = Result{Record: &rec}
	return nil
}

// Split separates records from failures, keeping order within each.
func Split(results []Result) ([]Record, []ErrorRecord) {
	var records []Record
	var failures []ErrorRecord
	for _, r := range results {
		switch {
		case r.Record != nil:
			records = append(records, *r.Record)
		case r.Failure != nil:
			failures = append(failures, *r.Failure)
		}
	}
	return records, failures
}
