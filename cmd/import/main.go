package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/yungbote/graphstore/internal/app"
	"github.com/yungbote/graphstore/internal/data/graph"
	"github.com/yungbote/graphstore/internal/domain"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		file       string
		clearAll   bool
		clearOwned bool
		merge      bool
		embed      bool
		query      string
		topK       int
		hops       int
		noScore    bool
	)
	flag.StringVar(&file, "file", "", "document graph JSON to import (- for stdin)")
	flag.BoolVar(&clearAll, "clear", false, "delete the whole graph and its vector indexes first")
	flag.BoolVar(&clearOwned, "clear-owned", false, "delete only nodes this tool wrote, before any -file import")
	flag.BoolVar(&merge, "merge", true, "merge entities and relations by id instead of creating duplicates")
	flag.BoolVar(&embed, "embed", true, "embed entities and chunks and build the vector indexes")
	flag.StringVar(&query, "query", "", "run a retrieval after importing and print the context")
	flag.IntVar(&topK, "top-k", graph.DefaultTopK, "entities matched by -query")
	flag.IntVar(&hops, "hops", 1, "relationship hops expanded by -query")
	flag.BoolVar(&noScore, "no-score", false, "omit similarity scores from the -query output")
	flag.Parse()

	if file == "" && query == "" && !clearOwned {
		fmt.Fprintln(os.Stderr, "nothing to do: pass -file, -query or -clear-owned")
		flag.Usage()
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init app: %v\n", err)
		return 1
	}
	defer application.Close()
	svc := application.Services.Graph

	if clearOwned {
		n, err := svc.ClearOwned(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "clear owned: %v\n", err)
			return 1
		}
		fmt.Fprintf(os.Stderr, "deleted %d nodes\n", n)
	}

	if file != "" {
		g, err := readGraph(file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 1
		}
		summary, err := svc.Import(ctx, g, graph.ExportOptions{
			ClearExisting:   clearAll,
			MergeDuplicates: merge,
			Embed:           embed,
		})
		if summary != nil {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			_ = enc.Encode(summary)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "import aborted: %v\n", err)
			return 1
		}
	}

	if query != "" {
		out, err := svc.Retrieve(ctx, query, graph.RetrieveOptions{TopK: topK, ExpandHop: hops, IncludeScore: !noScore})
		if err != nil {
			fmt.Fprintf(os.Stderr, "retrieve: %v\n", err)
			return 1
		}
		fmt.Println(out)
	}
	return 0
}

func readGraph(path string) (*domain.DocumentGraph, error) {
	if path == "-" {
		return domain.LoadDocumentGraph(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	g, err := domain.LoadDocumentGraph(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}
