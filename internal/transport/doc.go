// Package transport owns the request-reply connection to the broker.
//
// Ownership boundary:
// - endpoint parsing and scheme dispatch
// - ZeroMQ REQ sockets (tcp://, ipc://, inproc://)
// - framed plain TCP connections (frame://) for development brokers
// - connect retry/backoff
//
// A Conn is owned by exactly one caller; none of its methods are safe for
// concurrent use.
package transport
