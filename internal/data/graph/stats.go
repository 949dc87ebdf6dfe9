package graph

import (
	"context"
	"fmt"

	"github.com/yungbote/graphstore/internal/platform/neo4jdb"
)

type Statistics struct {
	TotalNodes          int64            `json:"total_nodes"`
	TotalRelationships  int64            `json:"total_relationships"`
	NodesByLabel        map[string]int64 `json:"nodes_by_label"`
	RelationshipsByType map[string]int64 `json:"relationships_by_type"`
}

// Statistics counts everything in the database, not only nodes this package wrote.
func (x *Exporter) Statistics(ctx context.Context) (*Statistics, error) {
	sess := x.sessions.OpenSession(ctx, neo4jdb.ReadAccess)
	defer sess.Close(ctx)

	out := &Statistics{NodesByLabel: map[string]int64{}, RelationshipsByType: map[string]int64{}}

	var err error
	if out.TotalNodes, err = scalarCount(ctx, sess, countNodes()); err != nil {
		return nil, fmt.Errorf("count nodes: %w", err)
	}
	if out.TotalRelationships, err = scalarCount(ctx, sess, countRelationships()); err != nil {
		return nil, fmt.Errorf("count relationships: %w", err)
	}
	if err := groupedCount(ctx, sess, countByLabel(), "label", out.NodesByLabel); err != nil {
		return nil, fmt.Errorf("count labels: %w", err)
	}
	if err := groupedCount(ctx, sess, countByType(), "type", out.RelationshipsByType); err != nil {
		return nil, fmt.Errorf("count relationship types: %w", err)
	}
	return out, nil
}

// ClearProvenance deletes only nodes (and their edges) created by this package,
// then drops the vector indexes that covered them. Index drop failures other
// than connectivity are logged and skipped.
func (x *Exporter) ClearProvenance(ctx context.Context) (int, error) {
	sess := x.sessions.OpenSession(ctx, neo4jdb.WriteAccess)
	stmt := clearProvenance()
	res, err := sess.Run(ctx, stmt.Cypher, stmt.Params)
	sess.Close(ctx)
	if err != nil {
		return 0, fmt.Errorf("clear provenance: %w", err)
	}
	x.log.Info("cleared graphstore nodes", "nodes_deleted", res.Counters.NodesDeleted)

	for _, spec := range []IndexSpec{EntityIndex, ChunkIndex} {
		if err := x.indexes.DropIndex(ctx, spec); err != nil {
			if neo4jdb.IsFatal(err) {
				return res.Counters.NodesDeleted, fmt.Errorf("clear provenance: %w", err)
			}
			x.log.Warn("vector index drop failed (continuing)", "index", spec.Name.String(), "error", err)
		}
	}
	return res.Counters.NodesDeleted, nil
}

func scalarCount(ctx context.Context, sess neo4jdb.Session, stmt Statement) (int64, error) {
	res, err := sess.Run(ctx, stmt.Cypher, stmt.Params)
	if err != nil {
		return 0, err
	}
	if len(res.Records) == 0 {
		return 0, nil
	}
	n, _ := res.Records[0].Get("count")
	return asInt64(n), nil
}

func groupedCount(ctx context.Context, sess neo4jdb.Session, stmt Statement, key string, into map[string]int64) error {
	res, err := sess.Run(ctx, stmt.Cypher, stmt.Params)
	if err != nil {
		return err
	}
	for _, rec := range res.Records {
		k, _ := rec.Get(key)
		n, _ := rec.Get("count")
		if name, ok := k.(string); ok {
			into[name] = asInt64(n)
		}
	}
	return nil
}

func countNodes() Statement {
	return newBuilder().raw("MATCH (n) RETURN count(n) AS count").build()
}

func countRelationships() Statement {
	return newBuilder().raw("MATCH ()-[r]->() RETURN count(r) AS count").build()
}

func countByLabel() Statement {
	return newBuilder().raw("MATCH (n) UNWIND labels(n) AS label RETURN label, count(*) AS count ORDER BY count DESC, label").build()
}

func countByType() Statement {
	return newBuilder().raw("MATCH ()-[r]->() RETURN type(r) AS type, count(*) AS count ORDER BY count DESC, type").build()
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
