package graph

import (
	"cmp"
	"math"
	"slices"
	"strconv"
	"strings"
)

// TermKind distinguishes IRIs from literals.
type TermKind uint8

const (
	// KindIRI is a resource identifier.
	KindIRI TermKind = iota + 1
	// KindLiteral is a typed literal value.
	KindLiteral
)

// Term is the object position of a triple: an IRI or a typed literal.
type Term struct {
	Kind     TermKind
	Value    string // IRI or lexical form
	Datatype string // literal datatype IRI, empty for IRIs
}

// IRI returns an IRI term.
func IRI(iri string) Term {
	return Term{Kind: KindIRI, Value: iri}
}

// StringLiteral returns an xsd:string literal.
func StringLiteral(s string) Term {
	return Term{Kind: KindLiteral, Value: s, Datatype: XSDString}
}

// FloatLiteral returns an xsd:float literal.
func FloatLiteral(f float64) Term {
	return Term{Kind: KindLiteral, Value: formatFloat(f), Datatype: XSDFloat}
}

// IntLiteral returns an xsd:integer literal.
func IntLiteral(i int64) Term {
	return Term{Kind: KindLiteral, Value: strconv.FormatInt(i, 10), Datatype: XSDInteger}
}

// BoolLiteral returns an xsd:boolean literal.
func BoolLiteral(b bool) Term {
	return Term{Kind: KindLiteral, Value: strconv.FormatBool(b), Datatype: XSDBoolean}
}

// IsIRI reports whether t is an IRI.
func (t Term) IsIRI() bool {
	return t.Kind == KindIRI
}

// Float parses a numeric literal.
func (t Term) Float() (float64, bool) {
	if t.Kind != KindLiteral {
		return 0, false
	}
	f, err := strconv.ParseFloat(t.Value, 64)
	return f, err == nil
}

// Triple is one edge of the knowledge graph.
type Triple struct {
	Subject   string
	Predicate string
	Object    Term
}

// Compare orders triples by subject, predicate, then object.
func Compare(a, b Triple) int {
	if c := cmp.Compare(a.Subject, b.Subject); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Predicate, b.Predicate); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Object.Kind, b.Object.Kind); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Object.Value, b.Object.Value); c != 0 {
		return c
	}
	return cmp.Compare(a.Object.Datatype, b.Object.Datatype)
}

// Normalize sorts triples and removes duplicates, turning a slice into a set.
// The input slice is reordered in place.
func Normalize(triples []Triple) []Triple {
	slices.SortFunc(triples, Compare)
	return slices.Compact(triples)
}

// Subjects returns the distinct subjects of triples in sorted order.
func Subjects(triples []Triple) []string {
	subjects := make([]string, 0, len(triples))
	for _, t := range triples {
		subjects = append(subjects, t.Subject)
	}
	slices.Sort(subjects)
	return slices.Compact(subjects)
}

// formatFloat renders f with a decimal point so literals read as floats.
func formatFloat(f float64) string {
	if math.IsInf(f, 1) {
		return "INF"
	}
	if math.IsInf(f, -1) {
		return "-INF"
	}
	if math.IsNaN(f) {
		return "NaN"
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}
