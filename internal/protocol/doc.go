// Package protocol owns the broker wire contract.
//
// Ownership boundary:
// - request envelopes per service (login, channels, channel, publish)
// - msgpack encoding of requests
// - defensive reply decoding (msgpack, JSON fallback)
// - frame/ carries envelopes over plain TCP for the frame:// transport
package protocol
