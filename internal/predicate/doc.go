// Package predicate provides the abstract filter language compiled by the
// cypher package.
//
// Predicate is a sealed interface: only types in this package implement it,
// which lets compilers switch exhaustively over the kinds they know:
//
//	switch p := pred.(type) {
//	case *Exact:
//	    // key <op> $param
//	case *Group:
//	    // recurse into children
//	}
//
// Predicates nest through Group and Not, so a whole WHERE clause is one tree.
// A Query wraps the tree with the presentation concerns that do not belong to
// any single predicate: sort key, slice (skip/limit) and the ping flag.
//
// TRUST BOUNDARY:
//
// Values are always bound as statement parameters. Property keys, labels and
// relationship types are interpolated into the statement text as quoted
// identifiers, so Validate rejects identifiers that are empty or contain
// control characters before a predicate reaches the compiler.
package predicate
