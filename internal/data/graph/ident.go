package graph

import "strings"

const (
	FallbackLabel    = "ENTITY"
	FallbackRelType  = "RELATED_TO"
	FallbackProperty = "_property"
)

// Ident is a schema identifier that is safe to splice into Cypher text.
// The zero value is invalid; build one with LabelIdent, RelTypeIdent or PropertyIdent.
type Ident struct {
	name string
}

func (i Ident) String() string { return i.name }

// Quoted returns the identifier wrapped in backticks.
func (i Ident) Quoted() string { return "`" + i.name + "`" }

func (i Ident) IsZero() bool { return i.name == "" }

// LabelIdent sanitizes an entity type. Types that land on a reserved label
// get ReservedLabelSuffix so an entity never joins the document scaffolding.
func LabelIdent(raw string) Ident {
	name := Sanitize(raw, FallbackLabel)
	if reservedLabels[name] {
		name += ReservedLabelSuffix
	}
	return Ident{name: name}
}

func RelTypeIdent(raw string) Ident  { return Ident{name: Sanitize(raw, FallbackRelType)} }
func PropertyIdent(raw string) Ident { return Ident{name: Sanitize(raw, FallbackProperty)} }

// Reserved schema names.
var (
	LabelDocument       = Ident{name: "Document"}
	LabelChunk          = Ident{name: "Chunk"}
	LabelEmbeddedEntity = Ident{name: "EmbeddedEntity"}

	RelFirstChunk  = Ident{name: "FIRST_CHUNK"}
	RelNextChunk   = Ident{name: "NEXT_CHUNK"}
	RelPartOf      = Ident{name: "PART_OF"}
	RelMentionedIn = Ident{name: "MENTIONED_IN"}

	PropEmbedding = Ident{name: "embedding"}
)

const ReservedLabelSuffix = "_Entity"

var reservedLabels = map[string]bool{
	LabelDocument.name:       true,
	LabelChunk.name:          true,
	LabelEmbeddedEntity.name: true,
}

// Sanitize maps free text onto [A-Za-z_][A-Za-z0-9_]*. Characters outside
// [A-Za-z0-9_] become '_', runs of '_' collapse, leading and trailing '_' are
// trimmed, and a leading digit gets a '_' prefix. Empty results yield fallback.
func Sanitize(raw, fallback string) string {
	var b strings.Builder
	b.Grow(len(raw))
	lastUnderscore := false
	for _, r := range raw {
		if !isIdentRune(r) {
			r = '_'
		}
		if r == '_' {
			if lastUnderscore {
				continue
			}
			lastUnderscore = true
		} else {
			lastUnderscore = false
		}
		b.WriteRune(r)
	}
	out := strings.Trim(b.String(), "_")
	if out == "" {
		return fallback
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = "_" + out
	}
	return out
}

func isIdentRune(r rune) bool {
	return r == '_' ||
		(r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}
