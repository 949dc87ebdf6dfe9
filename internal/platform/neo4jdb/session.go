package neo4jdb

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

type AccessMode int

const (
	ReadAccess AccessMode = iota
	WriteAccess
)

// Counters mirrors the update statistics the server reports for a statement.
type Counters struct {
	NodesCreated         int
	NodesDeleted         int
	RelationshipsCreated int
	RelationshipsDeleted int
	PropertiesSet        int
	LabelsAdded          int
	IndexesAdded         int
	IndexesRemoved       int
}

// Result is a fully drained statement result.
type Result struct {
	Records  []*neo4j.Record
	Counters Counters
}

// Session runs auto-commit statements. One statement, one round trip.
type Session interface {
	Run(ctx context.Context, cypher string, params map[string]any) (*Result, error)
	Close(ctx context.Context) error
}

// Sessions opens sessions against a single database.
type Sessions interface {
	OpenSession(ctx context.Context, mode AccessMode) Session
}

type driverSession struct {
	inner neo4j.SessionWithContext
}

func (s *driverSession) Run(ctx context.Context, cypher string, params map[string]any) (*Result, error) {
	res, err := s.inner.Run(ctx, cypher, params)
	if err != nil {
		return nil, wrapErr("run", err)
	}
	records, err := res.Collect(ctx)
	if err != nil {
		return nil, wrapErr("collect", err)
	}
	summary, err := res.Consume(ctx)
	if err != nil {
		return nil, wrapErr("consume", err)
	}
	out := &Result{Records: records}
	if summary != nil {
		c := summary.Counters()
		out.Counters = Counters{
			NodesCreated:         c.NodesCreated(),
			NodesDeleted:         c.NodesDeleted(),
			RelationshipsCreated: c.RelationshipsCreated(),
			RelationshipsDeleted: c.RelationshipsDeleted(),
			PropertiesSet:        c.PropertiesSet(),
			LabelsAdded:          c.LabelsAdded(),
			IndexesAdded:         c.IndexesAdded(),
			IndexesRemoved:       c.IndexesRemoved(),
		}
	}
	return out, nil
}

func (s *driverSession) Close(ctx context.Context) error {
	return s.inner.Close(ctx)
}
