// Package graphtest provides an in-memory neo4jdb.Sessions for tests. It
// understands exactly the statement shapes the graph package emits and
// rejects anything else, so a change in query shape fails loudly.
package graphtest

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/graphstore/internal/platform/neo4jdb"
)

type Node struct {
	ID     int64
	Labels []string
	Props  map[string]any
}

func (n *Node) HasLabel(label string) bool {
	for _, l := range n.Labels {
		if l == label {
			return true
		}
	}
	return false
}

type Rel struct {
	ID    int64
	Type  string
	Start int64
	End   int64
	Props map[string]any
}

type Index struct {
	Name       string
	Label      string
	Property   string
	Dimensions int
	Similarity string
}

type Store struct {
	mu         sync.Mutex
	nextID     int64
	nodes      map[int64]*Node
	rels       map[int64]*Rel
	indexes    map[string]Index
	statements []string
	failWhen   func(cypher string) error
	open       int
}

func New() *Store {
	return &Store{
		nodes:   map[int64]*Node{},
		rels:    map[int64]*Rel{},
		indexes: map[string]Index{},
	}
}

// FailWhen installs a hook consulted before every statement. A non-nil
// return is handed back to the caller instead of running the statement.
func (s *Store) FailWhen(fn func(cypher string) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWhen = fn
}

// Unreachable makes every statement fail the way a dropped connection does.
func (s *Store) Unreachable() {
	s.FailWhen(func(string) error {
		return &neo4jdb.ConnectivityError{Op: "run", Cause: fmt.Errorf("connection refused")}
	})
}

func (s *Store) OpenSession(_ context.Context, _ neo4jdb.AccessMode) neo4jdb.Session {
	s.mu.Lock()
	s.open++
	s.mu.Unlock()
	return &session{store: s}
}

// OpenSessions reports sessions that were opened and never closed.
func (s *Store) OpenSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *Store) Statements() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.statements...)
}

// Nodes returns every node carrying label, or all nodes when label is empty.
func (s *Store) Nodes(label string) []*Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Node
	for _, n := range s.sortedNodes() {
		if label == "" || n.HasLabel(label) {
			out = append(out, n)
		}
	}
	return out
}

// NodeByID returns the first node whose id property equals id.
func (s *Store) NodeByID(id string) *Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.sortedNodes() {
		if n.Props["id"] == id {
			return n
		}
	}
	return nil
}

// Rels returns every relationship of relType, or all when relType is empty.
func (s *Store) Rels(relType string) []*Rel {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Rel
	for _, r := range s.sortedRels() {
		if relType == "" || r.Type == relType {
			out = append(out, r)
		}
	}
	return out
}

// Endpoints returns the start and end node of r.
func (s *Store) Endpoints(r *Rel) (*Node, *Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nodes[r.Start], s.nodes[r.End]
}

func (s *Store) Index(name string) (Index, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.indexes[name]
	return idx, ok
}

type session struct {
	store  *Store
	closed bool
}

func (ss *session) Run(ctx context.Context, cypher string, params map[string]any) (*neo4jdb.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ss.closed {
		return nil, fmt.Errorf("graphtest: session already closed")
	}
	return ss.store.run(cypher, params)
}

func (ss *session) Close(context.Context) error {
	if ss.closed {
		return nil
	}
	ss.closed = true
	ss.store.mu.Lock()
	ss.store.open--
	ss.store.mu.Unlock()
	return nil
}

var (
	reParam      = regexp.MustCompile(`\$(\w+)`)
	reMergeNode  = regexp.MustCompile("^MERGE \\((\\w+):`([^`]+)` \\{`([^`]+)`: \\$(\\w+)\\}\\)$")
	reCreateNode = regexp.MustCompile("^CREATE \\((\\w+):`([^`]+)`\\)$")
	reEndpoint   = regexp.MustCompile("^MATCH \\((\\w+)(?::`([^`]+)`)? \\{`([^`]+)`: \\$(\\w+)\\}\\)(?: WHERE (.*))?$")
	reMergeRel   = regexp.MustCompile("^MERGE \\(a\\)-\\[r:`([^`]+)`(?: \\{`([^`]+)`: \\$(\\w+)\\})?\\]->\\(b\\)$")
	reCreateRel  = regexp.MustCompile("^CREATE \\(a\\)-\\[r:`([^`]+)`\\]->\\(b\\)$")
	reAssign     = regexp.MustCompile("(\\w+)\\.`([^`]+)` = \\$(\\w+)")
	reLabel      = regexp.MustCompile("(\\w+):`([^`]+)`")
	reReturnKey  = regexp.MustCompile("^RETURN (\\w+)\\.`([^`]+)` AS (\\w+)$")
	reDropIndex  = regexp.MustCompile("^DROP INDEX `([^`]+)` IF EXISTS$")
	reCreateIdx  = regexp.MustCompile("^CREATE VECTOR INDEX `([^`]+)` IF NOT EXISTS\nFOR \\(n:`([^`]+)`\\) ON \\(n\\.`([^`]+)`\\)\nOPTIONS \\{indexConfig: \\{`vector\\.dimensions`: (\\d+), `vector\\.similarity_function`: '(\\w+)'\\}\\}$")
	reHops       = regexp.MustCompile(`\[\*1\.\.(\d+)\]`)
	reReturnProp = regexp.MustCompile(`node\.(\w+) AS (\w+)`)
	reExcluded   = regexp.MustCompile("x:`([^`]+)`")
)

const (
	stmtClearAll      = "MATCH (n) DETACH DELETE n"
	stmtCountNodes    = "MATCH (n) RETURN count(n) AS count"
	stmtCountRels     = "MATCH ()-[r]->() RETURN count(r) AS count"
	stmtCountByLabel  = "MATCH (n) UNWIND labels(n) AS label RETURN label, count(*) AS count ORDER BY count DESC, label"
	stmtCountByType   = "MATCH ()-[r]->() RETURN type(r) AS type, count(*) AS count ORDER BY count DESC, type"
	prefixProvenance  = "MATCH (n) WHERE n.`created_by` = $created_by DETACH DELETE n"
	prefixShowIndexes = "SHOW INDEXES YIELD name, type WHERE name = $name"
	prefixQueryNodes  = "CALL db.index.vector.queryNodes($index_name, $k, $query_vector)"
	prefixExpand      = "UNWIND $ids AS seed\n"
)

func (s *Store) run(cypher string, params map[string]any) (*neo4jdb.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.statements = append(s.statements, cypher)
	if s.failWhen != nil {
		if err := s.failWhen(cypher); err != nil {
			return nil, err
		}
	}
	for _, m := range reParam.FindAllStringSubmatch(cypher, -1) {
		if _, ok := params[m[1]]; !ok {
			return nil, fmt.Errorf("graphtest: parameter $%s not bound", m[1])
		}
	}

	switch {
	case cypher == stmtClearAll:
		return s.deleteWhere(func(*Node) bool { return true }), nil
	case cypher == prefixProvenance:
		by := params["created_by"]
		return s.deleteWhere(func(n *Node) bool { return n.Props["created_by"] == by }), nil
	case cypher == stmtCountNodes:
		return rows([]string{"count"}, []any{int64(len(s.nodes))}), nil
	case cypher == stmtCountRels:
		return rows([]string{"count"}, []any{int64(len(s.rels))}), nil
	case cypher == stmtCountByLabel:
		return s.grouped("label", func(add func(string)) {
			for _, n := range s.nodes {
				for _, l := range n.Labels {
					add(l)
				}
			}
		}), nil
	case cypher == stmtCountByType:
		return s.grouped("type", func(add func(string)) {
			for _, r := range s.rels {
				add(r.Type)
			}
		}), nil
	case strings.HasPrefix(cypher, "DROP INDEX "):
		return s.dropIndex(cypher)
	case strings.HasPrefix(cypher, "CREATE VECTOR INDEX "):
		return s.createIndex(cypher)
	case strings.HasPrefix(cypher, prefixShowIndexes):
		return s.showIndex(params)
	case strings.HasPrefix(cypher, prefixQueryNodes):
		return s.queryNodes(cypher, params)
	case strings.HasPrefix(cypher, prefixExpand):
		return s.expand(cypher, params)
	}

	lines := strings.Split(cypher, "\n")
	switch {
	case reMergeNode.MatchString(lines[0]), reCreateNode.MatchString(lines[0]):
		return s.upsertNode(lines, params)
	case strings.HasPrefix(lines[0], "MATCH (a") && len(lines) > 2:
		return s.upsertEdge(lines, params)
	}
	return nil, fmt.Errorf("graphtest: unsupported statement:\n%s", cypher)
}

func (s *Store) upsertNode(lines []string, params map[string]any) (*neo4jdb.Result, error) {
	res := &neo4jdb.Result{}
	type target struct {
		node    *Node
		created bool
	}
	var (
		alias   string
		targets []target
	)
	if m := reMergeNode.FindStringSubmatch(lines[0]); m != nil {
		alias = m[1]
		label, key, val := m[2], m[3], params[m[4]]
		for _, n := range s.sortedNodes() {
			if n.HasLabel(label) && equalValue(n.Props[key], val) {
				targets = append(targets, target{node: n})
			}
		}
		if len(targets) == 0 {
			n := s.newNode(label)
			n.Props[key] = val
			res.Counters.NodesCreated++
			res.Counters.LabelsAdded++
			res.Counters.PropertiesSet++
			targets = append(targets, target{node: n, created: true})
		}
	} else {
		m := reCreateNode.FindStringSubmatch(lines[0])
		alias = m[1]
		targets = append(targets, target{node: s.newNode(m[2]), created: true})
		res.Counters.NodesCreated++
		res.Counters.LabelsAdded++
	}

	for _, t := range targets {
		var record *neo4j.Record
		for _, line := range lines[1:] {
			switch {
			case strings.HasPrefix(line, "ON CREATE SET "):
				if t.created {
					s.applyNodeSet(t.node, alias, line, params, &res.Counters)
				}
			case strings.HasPrefix(line, "ON MATCH SET "):
				if !t.created {
					s.applyNodeSet(t.node, alias, line, params, &res.Counters)
				}
			case strings.HasPrefix(line, "SET "):
				s.applyNodeSet(t.node, alias, line, params, &res.Counters)
			case strings.HasPrefix(line, "RETURN "):
				m := reReturnKey.FindStringSubmatch(line)
				if m == nil || m[1] != alias {
					return nil, fmt.Errorf("graphtest: unsupported return %q", line)
				}
				record = &neo4j.Record{Keys: []string{m[3]}, Values: []any{t.node.Props[m[2]]}}
			default:
				return nil, fmt.Errorf("graphtest: unsupported node clause %q", line)
			}
		}
		if record != nil {
			res.Records = append(res.Records, record)
		}
	}
	return res, nil
}

func (s *Store) applyNodeSet(n *Node, alias, line string, params map[string]any, c *neo4jdb.Counters) {
	for _, m := range reLabel.FindAllStringSubmatch(line, -1) {
		if m[1] == alias && !n.HasLabel(m[2]) {
			n.Labels = append(n.Labels, m[2])
			c.LabelsAdded++
		}
	}
	applyAssignments(n.Props, alias, line, params, c)
}

func applyAssignments(props map[string]any, alias, line string, params map[string]any, c *neo4jdb.Counters) {
	for _, m := range reAssign.FindAllStringSubmatch(line, -1) {
		if m[1] != alias {
			continue
		}
		v := params[m[3]]
		if v == nil {
			delete(props, m[2])
		} else {
			props[m[2]] = v
		}
		c.PropertiesSet++
	}
}

func (s *Store) matchEndpoint(line string, params map[string]any) ([]*Node, error) {
	m := reEndpoint.FindStringSubmatch(line)
	if m == nil {
		return nil, fmt.Errorf("graphtest: unsupported endpoint %q", line)
	}
	label, key, val, where := m[2], m[3], params[m[4]], m[5]
	var excluded []string
	if where != "" {
		for _, lm := range reLabel.FindAllStringSubmatch(where, -1) {
			excluded = append(excluded, lm[2])
		}
	}
	var out []*Node
	for _, n := range s.sortedNodes() {
		if label != "" && !n.HasLabel(label) {
			continue
		}
		if !equalValue(n.Props[key], val) {
			continue
		}
		skip := false
		for _, l := range excluded {
			if n.HasLabel(l) {
				skip = true
			}
		}
		if !skip {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *Store) upsertEdge(lines []string, params map[string]any) (*neo4jdb.Result, error) {
	from, err := s.matchEndpoint(lines[0], params)
	if err != nil {
		return nil, err
	}
	to, err := s.matchEndpoint(lines[1], params)
	if err != nil {
		return nil, err
	}
	res := &neo4jdb.Result{}

	mergeM := reMergeRel.FindStringSubmatch(lines[2])
	createM := reCreateRel.FindStringSubmatch(lines[2])
	if mergeM == nil && createM == nil {
		return nil, fmt.Errorf("graphtest: unsupported edge clause %q", lines[2])
	}

	for _, a := range from {
		for _, b := range to {
			var (
				rel     *Rel
				created bool
				relType string
			)
			if mergeM != nil {
				relType = mergeM[1]
				for _, r := range s.sortedRels() {
					if r.Type != relType || r.Start != a.ID || r.End != b.ID {
						continue
					}
					if mergeM[2] != "" && !equalValue(r.Props[mergeM[2]], params[mergeM[3]]) {
						continue
					}
					rel = r
					break
				}
				if rel == nil {
					rel = s.newRel(relType, a.ID, b.ID)
					if mergeM[2] != "" {
						rel.Props[mergeM[2]] = params[mergeM[3]]
					}
					created = true
				}
			} else {
				relType = createM[1]
				rel = s.newRel(relType, a.ID, b.ID)
				created = true
			}
			if created {
				res.Counters.RelationshipsCreated++
			}
			for _, line := range lines[3:] {
				switch {
				case strings.HasPrefix(line, "ON CREATE SET "):
					if created {
						applyAssignments(rel.Props, "r", line, params, &res.Counters)
					}
				case strings.HasPrefix(line, "ON MATCH SET "):
					if !created {
						applyAssignments(rel.Props, "r", line, params, &res.Counters)
					}
				case strings.HasPrefix(line, "SET "):
					applyAssignments(rel.Props, "r", line, params, &res.Counters)
				case line == "RETURN type(r) AS type":
					res.Records = append(res.Records, &neo4j.Record{Keys: []string{"type"}, Values: []any{rel.Type}})
				default:
					return nil, fmt.Errorf("graphtest: unsupported edge clause %q", line)
				}
			}
		}
	}
	return res, nil
}

func (s *Store) deleteWhere(match func(*Node) bool) *neo4jdb.Result {
	res := &neo4jdb.Result{}
	for id, n := range s.nodes {
		if !match(n) {
			continue
		}
		for rid, r := range s.rels {
			if r.Start == id || r.End == id {
				delete(s.rels, rid)
				res.Counters.RelationshipsDeleted++
			}
		}
		delete(s.nodes, id)
		res.Counters.NodesDeleted++
	}
	return res
}

func (s *Store) dropIndex(cypher string) (*neo4jdb.Result, error) {
	m := reDropIndex.FindStringSubmatch(cypher)
	if m == nil {
		return nil, fmt.Errorf("graphtest: unsupported statement:\n%s", cypher)
	}
	res := &neo4jdb.Result{}
	if _, ok := s.indexes[m[1]]; ok {
		delete(s.indexes, m[1])
		res.Counters.IndexesRemoved++
	}
	return res, nil
}

func (s *Store) createIndex(cypher string) (*neo4jdb.Result, error) {
	m := reCreateIdx.FindStringSubmatch(cypher)
	if m == nil {
		return nil, fmt.Errorf("graphtest: unsupported statement:\n%s", cypher)
	}
	res := &neo4jdb.Result{}
	if _, ok := s.indexes[m[1]]; ok {
		return res, nil
	}
	dim, _ := strconv.Atoi(m[4])
	s.indexes[m[1]] = Index{Name: m[1], Label: m[2], Property: m[3], Dimensions: dim, Similarity: m[5]}
	res.Counters.IndexesAdded++
	return res, nil
}

func (s *Store) showIndex(params map[string]any) (*neo4jdb.Result, error) {
	name, _ := params["name"].(string)
	if _, ok := s.indexes[name]; !ok {
		return &neo4jdb.Result{}, nil
	}
	return rows([]string{"name", "type"}, []any{name, "VECTOR"}), nil
}

// queryNodes scores with (1 + cosine) / 2, the same scale the server reports.
func (s *Store) queryNodes(cypher string, params map[string]any) (*neo4jdb.Result, error) {
	name, _ := params["index_name"].(string)
	idx, ok := s.indexes[name]
	if !ok {
		return nil, &neo4j.Neo4jError{
			Code: "Neo.ClientError.Procedure.ProcedureCallFailed",
			Msg:  "Failed to invoke procedure `db.index.vector.queryNodes`: There is no such vector schema index: " + name,
		}
	}
	query, ok := params["query_vector"].([]float32)
	if !ok || len(query) != idx.Dimensions {
		return nil, &neo4j.Neo4jError{
			Code: "Neo.ClientError.Procedure.ProcedureCallFailed",
			Msg:  fmt.Sprintf("Index query vector has %d dimensions, but indexed vectors have %d.", len(query), idx.Dimensions),
		}
	}
	k := toInt(params["k"])

	type hit struct {
		node  *Node
		score float64
	}
	var hits []hit
	for _, n := range s.sortedNodes() {
		if !n.HasLabel(idx.Label) {
			continue
		}
		vec, ok := n.Props[idx.Property].([]float32)
		if !ok || len(vec) != idx.Dimensions {
			continue
		}
		cos, ok := cosine(query, vec)
		if !ok {
			continue
		}
		hits = append(hits, hit{node: n, score: (1 + cos) / 2})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if k >= 0 && len(hits) > k {
		hits = hits[:k]
	}

	cols := reReturnProp.FindAllStringSubmatch(cypher, -1)
	keys := make([]string, 0, len(cols)+1)
	for _, c := range cols {
		keys = append(keys, c[2])
	}
	keys = append(keys, "score")
	res := &neo4jdb.Result{}
	for _, h := range hits {
		vals := make([]any, 0, len(keys))
		for _, c := range cols {
			vals = append(vals, h.node.Props[c[1]])
		}
		vals = append(vals, h.score)
		res.Records = append(res.Records, &neo4j.Record{Keys: keys, Values: vals})
	}
	return res, nil
}

// expand returns every relationship on a path of at most h hops from a seed
// that avoids the excluded labels.
func (s *Store) expand(cypher string, params map[string]any) (*neo4jdb.Result, error) {
	hm := reHops.FindStringSubmatch(cypher)
	if hm == nil {
		return nil, fmt.Errorf("graphtest: unsupported statement:\n%s", cypher)
	}
	hops, _ := strconv.Atoi(hm[1])
	ids, _ := params["ids"].([]string)
	var excluded []string
	for _, m := range reExcluded.FindAllStringSubmatch(cypher, -1) {
		excluded = append(excluded, m[1])
	}
	allowed := func(n *Node) bool {
		for _, l := range excluded {
			if n.HasLabel(l) {
				return false
			}
		}
		return true
	}

	seen := map[int64]bool{}
	var found []*Rel
	for _, id := range ids {
		for _, seed := range s.sortedNodes() {
			if !seed.HasLabel("EmbeddedEntity") || seed.Props["id"] != id || !allowed(seed) {
				continue
			}
			visited := map[int64]bool{seed.ID: true}
			frontier := []*Node{seed}
			for d := 0; d < hops; d++ {
				var next []*Node
				for _, u := range frontier {
					for _, r := range s.sortedRels() {
						var other int64
						switch u.ID {
						case r.Start:
							other = r.End
						case r.End:
							other = r.Start
						default:
							continue
						}
						on := s.nodes[other]
						if on == nil || !allowed(on) {
							continue
						}
						if !seen[r.ID] {
							seen[r.ID] = true
							found = append(found, r)
						}
						if !visited[other] {
							visited[other] = true
							next = append(next, on)
						}
					}
				}
				frontier = next
			}
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].ID < found[j].ID })

	res := &neo4jdb.Result{}
	keys := []string{"start_id", "start_name", "start_type", "rel_type", "end_id", "end_name", "end_type"}
	for _, r := range found {
		a, b := s.nodes[r.Start], s.nodes[r.End]
		res.Records = append(res.Records, &neo4j.Record{
			Keys:   keys,
			Values: []any{a.Props["id"], a.Props["name"], a.Props["type"], r.Type, b.Props["id"], b.Props["name"], b.Props["type"]},
		})
	}
	return res, nil
}

func (s *Store) grouped(key string, each func(add func(string))) *neo4jdb.Result {
	counts := map[string]int64{}
	each(func(k string) { counts[k]++ })
	names := make([]string, 0, len(counts))
	for k := range counts {
		names = append(names, k)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})
	res := &neo4jdb.Result{}
	for _, k := range names {
		res.Records = append(res.Records, &neo4j.Record{Keys: []string{key, "count"}, Values: []any{k, counts[k]}})
	}
	return res
}

func (s *Store) newNode(label string) *Node {
	s.nextID++
	n := &Node{ID: s.nextID, Labels: []string{label}, Props: map[string]any{}}
	s.nodes[n.ID] = n
	return n
}

func (s *Store) newRel(relType string, start, end int64) *Rel {
	s.nextID++
	r := &Rel{ID: s.nextID, Type: relType, Start: start, End: end, Props: map[string]any{}}
	s.rels[r.ID] = r
	return r
}

func (s *Store) sortedNodes() []*Node {
	out := make([]*Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) sortedRels() []*Rel {
	out := make([]*Rel, 0, len(s.rels))
	for _, r := range s.rels {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func rows(keys []string, values []any) *neo4jdb.Result {
	return &neo4jdb.Result{Records: []*neo4j.Record{{Keys: keys, Values: values}}}
}

func equalValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return fmt.Sprint(a) == fmt.Sprint(b) && fmt.Sprintf("%T", a) == fmt.Sprintf("%T", b)
}

func toInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	default:
		return -1
	}
}

func cosine(a, b []float32) (float64, bool) {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), true
}
