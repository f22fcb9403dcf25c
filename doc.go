// Package txnset implements a family of in-memory, ordered, transactional
// set containers: a generic AVL-balanced set and a B-tree-backed ordered
// multiset variant, both versioned by generation and accessed through an
// optimistic watch/stage/commit transaction protocol. The Locked wrapper
// adds thread safety, and the sharded subpackage adds hash-partitioning for
// horizontal write concurrency.
package txnset
