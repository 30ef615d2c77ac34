package sparql

import (
	"strings"
)

// Term is one bound RDF term in a result row.
type Term struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Datatype string `json:"datatype,omitempty"`
	Lang     string `json:"xml:lang,omitempty"`
}

// Results is the SPARQL 1.1 JSON results document.
type Results struct {
	Head struct {
		Vars []string `json:"vars"`
	} `json:"head"`
	Results struct {
		Bindings []map[string]Term `json:"bindings"`
	} `json:"results"`
	Boolean *bool `json:"boolean,omitempty"`
}

// Rows returns the bindings.
func (r *Results) Rows() []map[string]Term {
	return r.Results.Bindings
}

// Value returns the value of variable name in row, or "" when unbound.
func Value(row map[string]Term, name string) string {
	return row[name].Value
}

var literalEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

// Literal quotes s as a SPARQL string literal.
func Literal(s string) string {
	return `"` + literalEscaper.Replace(s) + `"`
}

// TypedLiteral quotes s with an XSD datatype, e.g. TypedLiteral("3", "integer").
func TypedLiteral(s, xsdType string) string {
	return Literal(s) + "^^xsd:" + xsdType
}

// LocalName makes s safe as the local part of a prefixed name.
func LocalName(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
