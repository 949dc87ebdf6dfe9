package graph

import (
	"strconv"
	"strings"
)

// fragment is literal Cypher owned by this package. Only untyped constants
// convert to it implicitly, so caller-supplied strings cannot reach query
// structure without going through Ident.
type fragment string

// Statement is a Cypher query with every value bound as a parameter.
type Statement struct {
	Cypher string
	Params map[string]any
}

type builder struct {
	sb     strings.Builder
	params map[string]any
	next   int
}

func newBuilder() *builder {
	return &builder{params: map[string]any{}}
}

func (b *builder) raw(f fragment) *builder {
	b.sb.WriteString(string(f))
	return b
}

func (b *builder) ident(id Ident) *builder {
	if id.IsZero() {
		panic("graph: zero Ident in query")
	}
	b.sb.WriteString(id.Quoted())
	return b
}

// int splices a validated integer. Used where Cypher does not accept parameters.
func (b *builder) int(n int) *builder {
	b.sb.WriteString(strconv.Itoa(n))
	return b
}

// bind stores v under a fixed parameter name and writes $name.
func (b *builder) bind(name fragment, v any) *builder {
	b.params[string(name)] = v
	b.sb.WriteString("$" + string(name))
	return b
}

// value binds v under a generated parameter name and writes it.
func (b *builder) value(v any) *builder {
	name := "p" + strconv.Itoa(b.next)
	b.next++
	b.params[name] = v
	b.sb.WriteString("$" + name)
	return b
}

// assignments writes "alias.`key` = $pN, ..." for each property.
func (b *builder) assignments(alias fragment, props []Property) *builder {
	for i, p := range props {
		if i > 0 {
			b.raw(", ")
		}
		b.raw(alias).raw(".").ident(p.Key).raw(" = ").value(p.Value)
	}
	return b
}

func (b *builder) build() Statement {
	return Statement{Cypher: b.sb.String(), Params: b.params}
}
