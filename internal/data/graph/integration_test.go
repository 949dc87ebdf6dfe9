package graph

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/yungbote/graphstore/internal/embedding"
	"github.com/yungbote/graphstore/internal/platform/logger"
	"github.com/yungbote/graphstore/internal/platform/neo4jdb"
)

// Runs against a real server when NEO4J_TEST_URI and NEO4J_PASSWORD are set.
// The database is modified: use a scratch instance.
func TestNeo4jRoundTrip(t *testing.T) {
	uri := strings.TrimSpace(os.Getenv("NEO4J_TEST_URI"))
	password := strings.TrimSpace(os.Getenv("NEO4J_PASSWORD"))
	if uri == "" || password == "" {
		t.Skip("NEO4J_TEST_URI / NEO4J_PASSWORD not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	client, err := neo4jdb.New(ctx, neo4jdb.Config{
		URI:      uri,
		User:     os.Getenv("NEO4J_USER"),
		Password: password,
		Database: os.Getenv("NEO4J_DATABASE"),
	}, logger.Nop())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close(ctx)

	hash := embedding.NewHashProvider(testDim)
	x := NewExporter(client, hash, nil)
	defer func() {
		if _, err := x.ClearProvenance(context.Background()); err != nil {
			t.Logf("cleanup: %v", err)
		}
	}()

	opts := ExportOptions{MergeDuplicates: true, Embed: true}
	first, err := x.Export(ctx, acmeGraph(), opts)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(first.Errors) != 0 || !first.IndexReady {
		t.Fatalf("summary: errors=%v warnings=%v index_ready=%v", first.Errors, first.Warnings, first.IndexReady)
	}
	before, err := x.Statistics(ctx)
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if _, err := x.Export(ctx, acmeGraph(), opts); err != nil {
		t.Fatalf("second Export: %v", err)
	}
	after, err := x.Statistics(ctx)
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if before.TotalNodes != after.TotalNodes || before.TotalRelationships != after.TotalRelationships {
		t.Fatalf("merge not idempotent: before=%+v after=%+v", before, after)
	}

	// Vector indexes populate asynchronously.
	r := NewRetriever(client, hash, nil)
	deadline := time.Now().Add(30 * time.Second)
	for {
		out, err := r.Retrieve(ctx, "Who does Acme Corp employ?", DefaultRetrieveOptions())
		if err == nil && strings.Contains(out, "Acme Corp --[EMPLOYS]--> Jane Doe") {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("retrieve: err=%v out=%q", err, out)
		}
		time.Sleep(time.Second)
	}
}
