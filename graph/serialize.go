package graph

import (
	"bufio"
	"fmt"
	"io"
	"slices"
	"strings"
)

// WriteNTriples writes triples in N-Triples form, one statement per line,
// in sorted order.
func WriteNTriples(w io.Writer, triples []Triple) error {
	sorted := Normalize(slices.Clone(triples))
	bw := bufio.NewWriter(w)
	for _, t := range sorted {
		if _, err := fmt.Fprintf(bw, "<%s> <%s> %s .\n", t.Subject, t.Predicate, ntriplesTerm(t.Object)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteTurtle writes triples as Turtle, grouping statements by subject and
// abbreviating known namespaces.
func WriteTurtle(w io.Writer, triples []Triple) error {
	sorted := Normalize(slices.Clone(triples))
	bw := bufio.NewWriter(w)

	for _, p := range prefixes {
		fmt.Fprintf(bw, "@prefix %s: <%s> .\n", p.name, p.ns)
	}

	var subject string
	for i, t := range sorted {
		if t.Subject != subject {
			if i > 0 {
				bw.WriteString(" .\n")
			}
			subject = t.Subject
			fmt.Fprintf(bw, "\n%s %s %s", turtleIRI(t.Subject), turtlePredicate(t.Predicate), turtleTerm(t.Object))
			continue
		}
		fmt.Fprintf(bw, " ;\n    %s %s", turtlePredicate(t.Predicate), turtleTerm(t.Object))
	}
	if len(sorted) > 0 {
		bw.WriteString(" .\n")
	}
	return bw.Flush()
}

func ntriplesTerm(t Term) string {
	if t.IsIRI() {
		return "<" + t.Value + ">"
	}
	lit := `"` + escapeLiteral(t.Value) + `"`
	if t.Datatype == "" || t.Datatype == XSDString {
		return lit
	}
	return lit + "^^<" + t.Datatype + ">"
}

func turtleTerm(t Term) string {
	if t.IsIRI() {
		return turtleIRI(t.Value)
	}
	lit := `"` + escapeLiteral(t.Value) + `"`
	if t.Datatype == "" || t.Datatype == XSDString {
		return lit
	}
	return lit + "^^" + turtleIRI(t.Datatype)
}

func turtlePredicate(p string) string {
	if p == RDFType {
		return "a"
	}
	return turtleIRI(p)
}

// turtleIRI abbreviates iri to a prefixed name when its local part is a
// plain name, otherwise writes it in full.
func turtleIRI(iri string) string {
	for _, p := range prefixes {
		local, ok := strings.CutPrefix(iri, p.ns)
		if ok && isPlainLocal(local) {
			return p.name + ":" + local
		}
	}
	return "<" + iri + ">"
}

func isPlainLocal(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			return false
		}
	}
	return true
}

var literalEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

func escapeLiteral(s string) string {
	return literalEscaper.Replace(s)
}
