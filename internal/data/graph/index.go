package graph

import (
	"context"
	"fmt"

	"github.com/yungbote/graphstore/internal/platform/logger"
	"github.com/yungbote/graphstore/internal/platform/neo4jdb"
)

// IndexSpec names a vector index over one label and property.
type IndexSpec struct {
	Name     Ident
	Label    Ident
	Property Ident
}

var (
	EntityIndex = IndexSpec{
		Name:     Ident{name: "entity_embedding_index"},
		Label:    LabelEmbeddedEntity,
		Property: PropEmbedding,
	}
	ChunkIndex = IndexSpec{
		Name:     Ident{name: "chunk_embedding_index"},
		Label:    LabelChunk,
		Property: PropEmbedding,
	}
)

type IndexManager struct {
	sessions neo4jdb.Sessions
	log      *logger.Logger
}

func NewIndexManager(sessions neo4jdb.Sessions, log *logger.Logger) *IndexManager {
	if log == nil {
		log = logger.Nop()
	}
	return &IndexManager{sessions: sessions, log: log.With("service", "IndexManager")}
}

// EnsureIndex replaces any index named spec.Name with a cosine vector index of
// the given dimension. A store rejection comes back as *IndexError; connectivity
// failures come back unwrapped.
func (m *IndexManager) EnsureIndex(ctx context.Context, spec IndexSpec, dimension int) error {
	sess := m.sessions.OpenSession(ctx, neo4jdb.WriteAccess)
	defer sess.Close(ctx)
	return m.ensureWith(ctx, sess, spec, dimension)
}

// DropIndex removes spec.Name if present. Failures other than connectivity are *IndexError.
func (m *IndexManager) DropIndex(ctx context.Context, spec IndexSpec) error {
	sess := m.sessions.OpenSession(ctx, neo4jdb.WriteAccess)
	defer sess.Close(ctx)
	return m.dropWith(ctx, sess, spec)
}

func (m *IndexManager) IndexExists(ctx context.Context, spec IndexSpec) (bool, error) {
	sess := m.sessions.OpenSession(ctx, neo4jdb.ReadAccess)
	defer sess.Close(ctx)
	stmt := showIndex(spec)
	res, err := sess.Run(ctx, stmt.Cypher, stmt.Params)
	if err != nil {
		return false, fmt.Errorf("show indexes: %w", err)
	}
	return len(res.Records) > 0, nil
}

func (m *IndexManager) ensureWith(ctx context.Context, sess neo4jdb.Session, spec IndexSpec, dimension int) error {
	if dimension <= 0 {
		return &IndexError{Op: IndexOpCreate, Index: spec.Name.String(), Err: fmt.Errorf("dimension must be positive, got %d", dimension)}
	}
	if err := m.dropWith(ctx, sess, spec); err != nil {
		if neo4jdb.IsFatal(err) {
			return err
		}
		m.log.Warn("vector index drop before create failed (continuing)", "index", spec.Name.String(), "error", err)
	}
	stmt := createVectorIndex(spec, dimension)
	if _, err := sess.Run(ctx, stmt.Cypher, stmt.Params); err != nil {
		if neo4jdb.IsFatal(err) {
			return err
		}
		return &IndexError{Op: IndexOpCreate, Index: spec.Name.String(), Err: err}
	}
	m.log.Info("vector index ready", "index", spec.Name.String(), "label", spec.Label.String(), "dimension", dimension)
	return nil
}

func (m *IndexManager) dropWith(ctx context.Context, sess neo4jdb.Session, spec IndexSpec) error {
	stmt := dropIndex(spec)
	if _, err := sess.Run(ctx, stmt.Cypher, stmt.Params); err != nil {
		if neo4jdb.IsFatal(err) {
			return err
		}
		return &IndexError{Op: IndexOpDrop, Index: spec.Name.String(), Err: err}
	}
	return nil
}

func dropIndex(spec IndexSpec) Statement {
	return newBuilder().raw("DROP INDEX ").ident(spec.Name).raw(" IF EXISTS").build()
}

func createVectorIndex(spec IndexSpec, dimension int) Statement {
	return newBuilder().
		raw("CREATE VECTOR INDEX ").ident(spec.Name).raw(" IF NOT EXISTS\n").
		raw("FOR (n:").ident(spec.Label).raw(") ON (n.").ident(spec.Property).raw(")\n").
		raw("OPTIONS {indexConfig: {`vector.dimensions`: ").int(dimension).
		raw(", `vector.similarity_function`: 'cosine'}}").
		build()
}

func showIndex(spec IndexSpec) Statement {
	return newBuilder().
		raw("SHOW INDEXES YIELD name, type WHERE name = ").bind("name", spec.Name.String()).
		raw(" RETURN name, type").
		build()
}
