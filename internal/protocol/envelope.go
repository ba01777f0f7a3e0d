package protocol

import (
	"fmt"
	"strings"

	"github.com/danmuck/brokerbot/internal/clock"
)

// Service names a broker operation.
type Service string

const (
	ServiceLogin    Service = "login"
	ServiceChannels Service = "channels"
	ServiceChannel  Service = "channel"
	ServicePublish  Service = "publish"
	// ServiceError is only ever seen in replies.
	ServiceError Service = "error"
)

// Data keys.
const (
	KeyUser        = "user"
	KeyChannel     = "channel"
	KeyChannels    = "channels"
	KeyMessage     = "message"
	KeyTimestamp   = "timestamp"
	KeyClock       = "clock"
	KeyStatus      = "status"
	KeyDescription = "description"
)

// Reply statuses the broker is known to send.
const (
	StatusSuccess  = "sucesso"
	StatusLoggedIn = "logado"
	StatusOK       = "OK"
	StatusError    = "erro"
)

var requiredKeys = map[Service][]string{
	ServiceLogin:    {KeyUser, KeyTimestamp, KeyClock},
	ServiceChannels: {KeyTimestamp, KeyClock},
	ServiceChannel:  {KeyChannel, KeyTimestamp, KeyClock},
	ServicePublish:  {KeyUser, KeyChannel, KeyMessage, KeyTimestamp, KeyClock},
}

// Request is one outgoing envelope. Build it with the constructors below and
// treat it as immutable afterwards.
type Request struct {
	Service Service        `msgpack:"service" json:"service"`
	Data    map[string]any `msgpack:"data" json:"data"`
}

func LoginRequest(user, timestamp string, clock int64) Request {
	return Request{Service: ServiceLogin, Data: map[string]any{
		KeyUser:      user,
		KeyTimestamp: timestamp,
		KeyClock:     clock,
	}}
}

func ChannelsRequest(timestamp string, clock int64) Request {
	return Request{Service: ServiceChannels, Data: map[string]any{
		KeyTimestamp: timestamp,
		KeyClock:     clock,
	}}
}

func ChannelRequest(channel, timestamp string, clock int64) Request {
	return Request{Service: ServiceChannel, Data: map[string]any{
		KeyChannel:   channel,
		KeyTimestamp: timestamp,
		KeyClock:     clock,
	}}
}

func PublishRequest(user, channel, message, timestamp string, clock int64) Request {
	return Request{Service: ServicePublish, Data: map[string]any{
		KeyUser:      user,
		KeyChannel:   channel,
		KeyMessage:   message,
		KeyTimestamp: timestamp,
		KeyClock:     clock,
	}}
}

// Clock returns the logical clock value the request was stamped with.
func (r Request) Clock() int64 {
	n, _ := clock.AsInt(r.Data[KeyClock])
	return n
}

// Str returns a string data field, or "" when absent.
func (r Request) Str(key string) string {
	s, _ := r.Data[key].(string)
	return s
}

// Validate checks the request carries every key its service requires.
func (r Request) Validate() error {
	keys, ok := requiredKeys[r.Service]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownService, r.Service)
	}
	for _, key := range keys {
		if _, ok := r.Data[key]; !ok {
			return fmt.Errorf("%w: %s.%s", ErrMissingField, r.Service, key)
		}
	}
	return nil
}

// Reply is a decoded broker reply. Every field may be absent; absence means
// "no information".
type Reply struct {
	Service Service
	Status  string
	Data    map[string]any
}

// Clock returns the reply's data.clock when it is a number.
func (r Reply) Clock() (int64, bool) {
	if r.Data == nil {
		return 0, false
	}
	return clock.AsInt(r.Data[KeyClock])
}

// Channels returns data.channels. A missing or malformed list is empty;
// non-string and blank entries are skipped.
func (r Reply) Channels() []string {
	raw, ok := r.Data[KeyChannels].([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		name, ok := item.(string)
		if !ok || strings.TrimSpace(name) == "" {
			continue
		}
		out = append(out, name)
	}
	return out
}

// DataStatus returns data.status, falling back to the top-level status.
func (r Reply) DataStatus() string {
	if s, ok := r.Data[KeyStatus].(string); ok && s != "" {
		return s
	}
	return r.Status
}

// Description returns the human readable detail the broker attaches to
// replies (data.description, or data.message on publish errors).
func (r Reply) Description() string {
	if s, ok := r.Data[KeyDescription].(string); ok && s != "" {
		return s
	}
	s, _ := r.Data[KeyMessage].(string)
	return s
}

// Failed reports whether the broker answered with an error status or an
// error service envelope.
func (r Reply) Failed() bool {
	return r.Service == ServiceError || r.DataStatus() == StatusError
}
