package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Encode packs a request as a msgpack map {service, data}.
func Encode(req Request) ([]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(req); err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", req.Service, err)
	}
	return buf.Bytes(), nil
}

// Decode parses reply bytes. msgpack is tried first, then JSON, matching a
// broker that falls back to JSON when packing fails. Failures wrap ErrDecode.
func Decode(raw []byte) (Reply, error) {
	if len(raw) == 0 {
		return Reply{}, fmt.Errorf("%w: empty reply", ErrDecode)
	}
	top, mpErr := decodeMsgpack(raw)
	if mpErr != nil {
		var jsErr error
		top, jsErr = decodeJSON(raw)
		if jsErr != nil {
			return Reply{}, fmt.Errorf("%w: msgpack: %v; json: %v", ErrDecode, mpErr, jsErr)
		}
	}
	return replyFromMap(top), nil
}

// DecodeRequest parses a request envelope; brokers and test doubles use it.
func DecodeRequest(raw []byte) (Request, error) {
	top, err := decodeMsgpack(raw)
	if err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	svc, _ := top["service"].(string)
	data, _ := top["data"].(map[string]any)
	if data == nil {
		data = map[string]any{}
	}
	return Request{Service: Service(svc), Data: data}, nil
}

// EncodeReply packs a reply envelope {service, data}.
func EncodeReply(reply Reply) ([]byte, error) {
	env := map[string]any{}
	if reply.Service != "" {
		env["service"] = string(reply.Service)
	}
	if reply.Status != "" {
		env[KeyStatus] = reply.Status
	}
	if reply.Data != nil {
		env["data"] = reply.Data
	}
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(env); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeMsgpack(raw []byte) (map[string]any, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(raw))
	dec.SetMapDecoder(func(d *msgpack.Decoder) (any, error) {
		return d.DecodeUntypedMap()
	})
	v, err := dec.DecodeInterface()
	if err != nil {
		return nil, err
	}
	return asStringMap(v)
}

func decodeJSON(raw []byte) (map[string]any, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return asStringMap(v)
}

func asStringMap(v any) (map[string]any, error) {
	switch m := v.(type) {
	case map[string]any:
		return m, nil
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			key, ok := k.(string)
			if !ok {
				continue
			}
			out[key] = normalize(val)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("top-level value is %T, want map", v)
	}
}

// normalize turns nested map[any]any into map[string]any so callers can use
// one shape regardless of which codec produced the value.
func normalize(v any) any {
	switch x := v.(type) {
	case map[any]any:
		m, _ := asStringMap(x)
		return m
	case []any:
		for i := range x {
			x[i] = normalize(x[i])
		}
		return x
	default:
		return v
	}
}

func replyFromMap(top map[string]any) Reply {
	r := Reply{}
	if s, ok := top["service"].(string); ok {
		r.Service = Service(s)
	}
	if s, ok := top[KeyStatus].(string); ok {
		r.Status = s
	}
	if data, ok := top["data"].(map[string]any); ok {
		r.Data = data
	}
	return r
}
