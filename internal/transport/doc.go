// Package transport frames protocol messages as newline-delimited JSON over
// a byte stream. The node reads requests from standard input and writes
// replies and gossip to standard output through it.
package transport
