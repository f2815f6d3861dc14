// Package triples provides an RDF triple store layered on top of an
// ordered, transactional key-value database (go.etcd.io/bbolt).
//
// Triples are (subject, predicate, object) URIs. They are interned into
// fixed-width IDs by a Dictionary and stored across four covering indexes
// (SPO, PSO, POS, OSP) so that any bound/unbound combination of subject,
// predicate and object can be answered with a single prefix scan, bar one
// pattern which falls back to a post-filtered SPO scan.
package triples
