// Package protocol defines the message envelope exchanged between a node and
// the cluster harness, the closed set of body payloads, and their
// line-delimited JSON wire form. It also carries the error taxonomy shared by
// the rest of the node: decode failures, protocol violations and transport
// failures.
//
// Wire shape:
//
//	{"src":"c1","dest":"n1","body":{"type":"echo","msg_id":1,"echo":"hi"}}
//
// Payload fields are flattened into the body next to "type", "msg_id" and
// "in_reply_to".
package protocol
