// Package ot implements operational transformation for plain text.
//
// Ops are generated against a document snapshot the caller tracks; ot itself
// carries no versions. Transform rebases two concurrent ops (same snapshot)
// so that applying them in either order converges, Compose merges two
// sequential ops from one replica.
package ot
