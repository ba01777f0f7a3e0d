package probe

import (
	"errors"
	"strconv"
	"strings"
)

var ErrMalformedDelivery = errors.New("probe: malformed delivery")

// Delivery is one pub-sub line: "<channel> <sender>: <message> [<time>] (clock=<n>)".
// Time and clock are optional trailers.
type Delivery struct {
	Channel  string
	Sender   string
	Message  string
	Time     string
	Clock    int64
	HasClock bool
	// Own is set when Sender is the probing bot.
	Own bool
}

func ParseDelivery(line, user string) (Delivery, error) {
	line = strings.TrimSpace(line)
	topic, payload, ok := strings.Cut(line, " ")
	if !ok || topic == "" {
		return Delivery{}, ErrMalformedDelivery
	}
	d := Delivery{Channel: topic}

	payload = strings.TrimSpace(payload)
	if rest, n, ok := cutClock(payload); ok {
		payload, d.Clock, d.HasClock = rest, n, true
	}
	if rest, ts, ok := cutTime(payload); ok {
		payload, d.Time = rest, ts
	}

	sender, message, ok := strings.Cut(payload, ": ")
	if !ok {
		// A bare "sender:" with an empty message still counts.
		if s, found := strings.CutSuffix(payload, ":"); found {
			sender, message, ok = s, "", true
		}
	}
	if !ok || strings.TrimSpace(sender) == "" {
		return Delivery{}, ErrMalformedDelivery
	}
	d.Sender = strings.TrimSpace(sender)
	d.Message = message
	d.Own = user != "" && d.Sender == user
	return d, nil
}

func cutClock(s string) (string, int64, bool) {
	if !strings.HasSuffix(s, ")") {
		return s, 0, false
	}
	i := strings.LastIndex(s, "(clock=")
	if i < 0 {
		return s, 0, false
	}
	n, err := strconv.ParseInt(s[i+len("(clock="):len(s)-1], 10, 64)
	if err != nil {
		return s, 0, false
	}
	return strings.TrimSpace(s[:i]), n, true
}

func cutTime(s string) (string, string, bool) {
	if !strings.HasSuffix(s, "]") {
		return s, "", false
	}
	i := strings.LastIndex(s, " [")
	if i < 0 {
		return s, "", false
	}
	return strings.TrimSpace(s[:i]), s[i+2 : len(s)-1], true
}
