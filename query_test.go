package triples

import (
	"sort"
	"testing"

	"hawx.me/code/assert"
)

func seedStore(t *testing.T) *Store {
	t.Helper()

	path := t.TempDir() + "/query.db"
	store, err := Open(path, "test")
	assert.Equal(t, nil, err)
	t.Cleanup(func() { _ = store.Close() })

	triples := []Triple{
		{"john", "firstName", "John"},
		{"john", "lastName", "Smith"},
		{"dave", "firstName", "Dave"},
		{"dave", "lastName", "Smith"},
	}
	for _, tr := range triples {
		assert.Equal(t, nil, store.Insert(testCtx(), tr))
	}

	return store
}

func collect(store *Store, pattern Pattern) ([]Triple, error) {
	var out []Triple
	for tr, err := range store.Query(testCtx(), pattern) {
		if err != nil {
			return out, err
		}
		out = append(out, tr)
	}
	return out, nil
}

func sortTriples(ts []Triple) {
	sort.Slice(ts, func(i, j int) bool {
		if ts[i].Subject != ts[j].Subject {
			return ts[i].Subject < ts[j].Subject
		}
		return ts[i].Predicate < ts[j].Predicate
	})
}

func TestQueryAllWildcard(t *testing.T) {
	store := seedStore(t)

	results, err := collect(store, Pattern{})
	assert.Equal(t, nil, err)
	sortTriples(results)

	assert.Equal(t, 4, len(results))
}

func TestQueryBySubject(t *testing.T) {
	store := seedStore(t)

	results, err := collect(store, Pattern{Subject: Bound("john")})
	assert.Equal(t, nil, err)
	sortTriples(results)

	assert.Equal(t, []Triple{
		{"john", "firstName", "John"},
		{"john", "lastName", "Smith"},
	}, results)
}

func TestQueryByPredicate(t *testing.T) {
	store := seedStore(t)

	results, err := collect(store, Pattern{Predicate: Bound("firstName")})
	assert.Equal(t, nil, err)
	sortTriples(results)

	assert.Equal(t, []Triple{
		{"dave", "firstName", "Dave"},
		{"john", "firstName", "John"},
	}, results)
}

func TestQueryByObject(t *testing.T) {
	store := seedStore(t)

	results, err := collect(store, Pattern{Object: Bound("Smith")})
	assert.Equal(t, nil, err)
	sortTriples(results)

	assert.Equal(t, []Triple{
		{"dave", "lastName", "Smith"},
		{"john", "lastName", "Smith"},
	}, results)
}

func TestQuerySubjectAndObjectUsesPostFilter(t *testing.T) {
	store := seedStore(t)

	results, err := collect(store, Pattern{Subject: Bound("john"), Object: Bound("Smith")})
	assert.Equal(t, nil, err)

	assert.Equal(t, []Triple{
		{"john", "lastName", "Smith"},
	}, results)
}

func TestQueryFullyBoundSpecific(t *testing.T) {
	store := seedStore(t)

	results, err := collect(store, Pattern{
		Subject:   Bound("john"),
		Predicate: Bound("lastName"),
		Object:    Bound("Smith"),
	})
	assert.Equal(t, nil, err)
	assert.Equal(t, []Triple{{"john", "lastName", "Smith"}}, results)
}

func TestQueryUnknownURIYieldsNoResults(t *testing.T) {
	store := seedStore(t)

	results, err := collect(store, Pattern{Subject: Bound("nobody")})
	assert.Equal(t, nil, err)
	assert.Equal(t, 0, len(results))
}

func TestQueryStopsEarly(t *testing.T) {
	store := seedStore(t)

	var seen int
	for range store.Query(testCtx(), Pattern{}) {
		seen++
		break
	}

	assert.Equal(t, 1, seen)
}
