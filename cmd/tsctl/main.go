// Command tsctl imports/exports triples to/from a store as CSV, runs ad-hoc
// pattern queries, and reports store statistics.
package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cormorant-db/triples"
)

func main() {
	if len(os.Args) < 4 {
		printUsage()
		os.Exit(2)
		return
	}

	root := os.Args[2]
	path := os.Args[3]

	var err error
	switch os.Args[1] {
	case "in":
		err = runIn(root, path)
	case "out":
		err = runOut(root, path)
	case "query":
		if len(os.Args) != 7 {
			printUsage()
			os.Exit(2)
			return
		}
		err = runQuery(root, path, os.Args[4], os.Args[5], os.Args[6])
	case "stats":
		err = runStats(root, path)
	default:
		printUsage()
		os.Exit(2)
		return
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, os.Args[1]+" error: "+err.Error())
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage: tsctl in ROOT PATH < FILE.csv
       tsctl out ROOT PATH > FILE.csv
       tsctl query ROOT PATH SUBJECT PREDICATE OBJECT   (use _ for a wildcard)
       tsctl stats ROOT PATH`)
}

func runIn(root, path string) error {
	store, err := triples.Open(path, root)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	r := csv.NewReader(os.Stdin)
	line := 0

	for {
		record, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		if len(record) != 3 {
			return fmt.Errorf("csv must contain lines with 3 fields, got %d on line %d", len(record), line)
		}

		if err := store.Insert(ctx, triples.Triple{
			Subject:   record[0],
			Predicate: record[1],
			Object:    record[2],
		}); err != nil {
			return err
		}

		line++
	}
}

func runOut(root, path string) error {
	store, err := triples.Open(path, root)
	if err != nil {
		return err
	}
	defer store.Close()

	w := csv.NewWriter(os.Stdout)

	for t, err := range store.Query(context.Background(), triples.Pattern{}) {
		if err != nil {
			return err
		}
		if err := w.Write([]string{t.Subject, t.Predicate, t.Object}); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

func runQuery(root, path, subject, predicate, object string) error {
	store, err := triples.Open(path, root)
	if err != nil {
		return err
	}
	defer store.Close()

	pattern := triples.Pattern{
		Subject:   boundOrWildcard(subject),
		Predicate: boundOrWildcard(predicate),
		Object:    boundOrWildcard(object),
	}

	w := csv.NewWriter(os.Stdout)
	for t, err := range store.Query(context.Background(), pattern) {
		if err != nil {
			return err
		}
		if err := w.Write([]string{t.Subject, t.Predicate, t.Object}); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

func runStats(root, path string) error {
	store, err := triples.Open(path, root)
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := store.Stats(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("triples: %d\nuris: %d\n", stats.TripleCount, stats.URICount)
	return nil
}

func boundOrWildcard(v string) *string {
	if v == "_" {
		return nil
	}
	return triples.Bound(v)
}
