package hood

// Field codes used on the wire. The firmware reports integers for
// everything except the WiFi fields, which are strings.
const (
	FieldMotor      = "M"
	FieldLight      = "L"
	FieldRed        = "R"
	FieldGreen      = "G"
	FieldBlue       = "B"
	FieldColdWhite  = "CW"
	FieldBrightness = "BRG"
	FieldTemp       = "T"
	FieldTimerTM    = "TM"
	FieldTimerTS    = "TS"
	FieldAction     = "A"
)

// Extension fields seen in status replies from newer firmware.
const (
	FieldLightMode    = "LM"
	FieldColdWhiteDir = "CWD"
	FieldRGBDir       = "RGBD"
	FieldStatusU      = "U"
	FieldWifiMode     = "W"
	FieldWifiSSID     = "WS"
	FieldWifiAPSSID   = "WAPS"
	FieldWifiAPPass   = "WAPP"
)

// State maps field codes to their values. A State returned by the client
// is always a private copy; callers may mutate it freely.
type State map[string]any

// Clone returns a shallow copy. Values are scalars, so a shallow copy is
// a full copy.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Int returns the field as an int, with ok reporting whether the field is
// present and numeric.
func (s State) Int(field string) (int, bool) {
	switch v := s[field].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

// String returns the field as a string.
func (s State) String(field string) (string, bool) {
	v, ok := s[field].(string)
	return v, ok
}

// DefaultState is the seed state observed from the vendor app before the
// first status exchange.
func DefaultState() State {
	return State{
		FieldMotor:      0,
		FieldLight:      0,
		FieldRed:        45,
		FieldGreen:      255,
		FieldBlue:       104,
		FieldColdWhite:  255,
		FieldBrightness: 132,
		FieldTemp:       0,
		FieldTimerTM:    0,
		FieldTimerTS:    255,
		FieldAction:     1,
	}
}
