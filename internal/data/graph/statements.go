package graph

import (
	"github.com/yungbote/graphstore/internal/domain"
)

// Provenance is written to created_by on every node and edge this package creates.
const Provenance = "graphstore"

var (
	propID             = Ident{name: "id"}
	propDocID          = Ident{name: "doc_id"}
	propName           = Ident{name: "name"}
	propType           = Ident{name: "type"}
	propDescription    = Ident{name: "description"}
	propSourceChunkIDs = Ident{name: "source_chunk_ids"}
	propRelationType   = Ident{name: "relation_type"}
	propConfidence     = Ident{name: "confidence"}
	propText           = Ident{name: "text"}
	propIndex          = Ident{name: "index"}
	propDocumentID     = Ident{name: "document_id"}
	propTitle          = Ident{name: "title"}
	propSource         = Ident{name: "source"}
	propPublishedDate  = Ident{name: "published_date"}
	propCreatedAt      = Ident{name: "created_at"}
	propUpdatedAt      = Ident{name: "updated_at"}
	propCreatedBy      = Ident{name: "created_by"}
)

func clearAll() Statement {
	return newBuilder().raw("MATCH (n) DETACH DELETE n").build()
}

func clearProvenance() Statement {
	return newBuilder().
		raw("MATCH (n) WHERE n.").ident(propCreatedBy).raw(" = ").bind("created_by", Provenance).
		raw(" DETACH DELETE n").
		build()
}

// upsertNode writes either
//
//	MERGE (alias:`Label` {key: $key}) ON CREATE SET ... ON MATCH SET ...
//
// or, when merge is false,
//
//	CREATE (alias:`Label`) SET ...
//
// followed by optional extra labels and always-set properties.
func upsertNode(alias fragment, label Ident, key Ident, keyValue any, core []Property, merge bool, now string, extraLabels []Ident, always []Property) Statement {
	b := newBuilder()
	created := append([]Property{
		{Key: propCreatedAt, Value: now},
		{Key: propUpdatedAt, Value: now},
		{Key: propCreatedBy, Value: Provenance},
	}, core...)
	if merge {
		b.raw("MERGE (").raw(alias).raw(":").ident(label).raw(" {").ident(key).raw(": ").bind("key", keyValue).raw("})\n")
		b.raw("ON CREATE SET ").assignments(alias, created).raw("\n")
		matched := append([]Property{{Key: propUpdatedAt, Value: now}}, core...)
		b.raw("ON MATCH SET ").assignments(alias, matched)
	} else {
		b.raw("CREATE (").raw(alias).raw(":").ident(label).raw(")\n")
		b.raw("SET ").assignments(alias, append([]Property{{Key: key, Value: keyValue}}, created...))
	}
	if len(extraLabels) > 0 || len(always) > 0 {
		b.raw("\nSET ")
		for i, l := range extraLabels {
			if i > 0 {
				b.raw(", ")
			}
			b.raw(alias).raw(":").ident(l)
		}
		if len(extraLabels) > 0 && len(always) > 0 {
			b.raw(", ")
		}
		b.assignments(alias, always)
	}
	b.raw("\nRETURN ").raw(alias).raw(".").ident(key).raw(" AS key")
	return b.build()
}

func entityUpsert(e *domain.Entity, label Ident, props []Property, embedding []float32, merge bool, now string) Statement {
	core := []Property{
		{Key: propName, Value: e.Name},
		{Key: propType, Value: e.Type},
		{Key: propDescription, Value: e.Description},
	}
	if refs := e.ChunkRefs(); len(refs) > 0 {
		core = append(core, Property{Key: propSourceChunkIDs, Value: refs})
	}
	core = append(core, props...)
	var (
		extra  []Ident
		always []Property
	)
	if embedding != nil {
		extra = []Ident{LabelEmbeddedEntity}
		always = []Property{{Key: PropEmbedding, Value: embedding}}
	}
	return upsertNode("e", label, propID, e.ID, core, merge, now, extra, always)
}

func documentUpsert(d *domain.Document, now string) Statement {
	core := []Property{
		{Key: propTitle, Value: d.Title},
		{Key: propSource, Value: d.Source},
		{Key: propPublishedDate, Value: d.PublishedDate},
	}
	return upsertNode("d", LabelDocument, propDocID, d.DocID, core, true, now, nil, nil)
}

func chunkUpsert(c *domain.Chunk, documentID string, embedding []float32, now string) Statement {
	core := []Property{
		{Key: propText, Value: c.Text},
		{Key: propIndex, Value: int64(c.Index)},
		{Key: propDocumentID, Value: documentID},
	}
	var always []Property
	if embedding != nil {
		always = []Property{{Key: PropEmbedding, Value: embedding}}
	}
	return upsertNode("c", LabelChunk, propID, c.ID, core, true, now, nil, always)
}

// endpoint describes one side of an edge statement. A zero label means "any
// entity node", which excludes Document and Chunk nodes.
type endpoint struct {
	label Ident
	key   Ident
	value any
}

func entityEndpoint(id string) endpoint {
	return endpoint{key: propID, value: id}
}

func chunkEndpoint(id string) endpoint {
	return endpoint{label: LabelChunk, key: propID, value: id}
}

func documentEndpoint(docID string) endpoint {
	return endpoint{label: LabelDocument, key: propDocID, value: docID}
}

func (b *builder) matchEndpoint(alias fragment, param fragment, ep endpoint) *builder {
	b.raw("MATCH (").raw(alias)
	if !ep.label.IsZero() {
		b.raw(":").ident(ep.label)
	}
	b.raw(" {").ident(ep.key).raw(": ").bind(param, ep.value).raw("})")
	if ep.label.IsZero() {
		b.raw(" WHERE NOT ").raw(alias).raw(":").ident(LabelChunk).
			raw(" AND NOT ").raw(alias).raw(":").ident(LabelDocument)
	}
	return b.raw("\n")
}

// upsertEdge writes MATCH/MATCH/MERGE for an edge between two existing nodes.
// A nil id merges on the pair and type alone. It returns one row per edge
// touched, so zero rows means an endpoint was missing.
func upsertEdge(from, to endpoint, relType Ident, id *string, core []Property, merge bool, now string) Statement {
	b := newBuilder()
	b.matchEndpoint("a", "from", from)
	b.matchEndpoint("b", "to", to)
	created := append([]Property{
		{Key: propCreatedAt, Value: now},
		{Key: propUpdatedAt, Value: now},
		{Key: propCreatedBy, Value: Provenance},
	}, core...)
	if merge {
		b.raw("MERGE (a)-[r:").ident(relType)
		if id != nil {
			b.raw(" {").ident(propID).raw(": ").bind("id", *id).raw("}")
		}
		b.raw("]->(b)\n")
		b.raw("ON CREATE SET ").assignments("r", created).raw("\n")
		b.raw("ON MATCH SET ").assignments("r", append([]Property{{Key: propUpdatedAt, Value: now}}, core...)).raw("\n")
	} else {
		b.raw("CREATE (a)-[r:").ident(relType).raw("]->(b)\n")
		if id != nil {
			created = append([]Property{{Key: propID, Value: *id}}, created...)
		}
		b.raw("SET ").assignments("r", created).raw("\n")
	}
	b.raw("RETURN type(r) AS type")
	return b.build()
}

func relationUpsert(r *domain.Relation, relType Ident, props []Property, merge bool, now string) Statement {
	core := []Property{
		{Key: propRelationType, Value: r.RelationType},
		{Key: propDescription, Value: r.Description},
	}
	if r.Confidence != nil {
		core = append(core, Property{Key: propConfidence, Value: *r.Confidence})
	}
	core = append(core, props...)
	id := r.ID
	return upsertEdge(entityEndpoint(r.SourceEntityID), entityEndpoint(r.TargetEntityID), relType, &id, core, merge, now)
}

func linkEdge(from, to endpoint, relType Ident, now string) Statement {
	return upsertEdge(from, to, relType, nil, nil, true, now)
}
