// Package lww is a last-writer-wins register and map keyed by a totally
// ordered logical Timestamp. Writes commute and are idempotent, so replicas
// converge whatever order updates arrive in.
//
// Register and Map are not safe for concurrent use; the owner serializes
// access. Clock is.
package lww
