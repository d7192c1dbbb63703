package hood

import (
	"bytes"
	"encoding/json"
	"unicode/utf8"
)

// frameTerminator is the single carriage return the vendor app appends to
// every command. The device tolerates a trailing linefeed but never needs
// one.
const frameTerminator = '\r'

// EncodeFrame renders a state (or partial state) as a compact JSON object
// followed by a carriage return. Keys are emitted in sorted order; the
// device does not care, but a fixed order keeps captures comparable.
func EncodeFrame(state State) ([]byte, error) {
	payload, err := json.Marshal(map[string]any(state))
	if err != nil {
		return nil, err
	}
	return append(payload, frameTerminator), nil
}

// DecodeFrame parses a raw reply buffer into a State. The device's reply
// behavior is inconsistent (JSON, an echo, garbage, or nothing), so any
// unparseable buffer yields ok=false rather than an error. Callers treat
// a missing decode as "no new information".
func DecodeFrame(raw []byte) (State, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || !utf8.Valid(trimmed) {
		return nil, false
	}

	var fields map[string]any
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, false
	}

	state := make(State, len(fields))
	for k, v := range fields {
		state[k] = normalizeValue(v)
	}
	return state, true
}

// normalizeValue collapses whole-number float64 values from the JSON
// decoder back to int so that decoded state compares equal to the int
// values the command tables use.
func normalizeValue(v any) any {
	f, ok := v.(float64)
	if !ok {
		return v
	}
	if f == float64(int(f)) {
		return int(f)
	}
	return f
}
