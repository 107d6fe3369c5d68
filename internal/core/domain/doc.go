// Package domain holds prdmachine's entities and the rules that need no
// infrastructure.
//
// A tracked document is a DocumentState (its mutable head) plus an
// append-only chain of DocumentVersions. Triggers that were considered
// for it are DocumentEvents; inconsistencies found in it are
// DocumentConflicts; exports of its stories and changes are
// DocumentExports.
//
// The package imports only the standard library. Everything else in the
// module may import it.
package domain
