package protocol

import "errors"

var (
	ErrDecode         = errors.New("protocol: reply decode failed")
	ErrUnknownService = errors.New("protocol: unknown service")
	ErrMissingField   = errors.New("protocol: missing field")
)
