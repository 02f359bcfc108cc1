// Package memory provides the low-level primitives for object reuse
// and safe reclamation: a typed pool, a lock-free retire ring, and
// global epoch tracking. An order pulled out of a book is never handed
// back to the pool while a depth-snapshot reader from an older epoch
// may still hold a pointer to it.
package memory
