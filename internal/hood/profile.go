package hood

import "fmt"

// Profile pins the field values whose meaning has drifted between
// firmware revisions. The value that means "light on" has been observed
// as 1, 2 and 3, and the fan-off sentinel as 0 and 1, so none of these
// are hardcoded constants: deployments override the profile when their
// hood disagrees with the default.
type Profile struct {
	// Name identifies the mapping table revision in logs.
	Name string

	// LightOn and LightOff are the L values for on and off.
	LightOn  int
	LightOff int

	// MotorOff is the M sentinel for a stopped fan. MotorSpeeds are the
	// M values for speed steps 1..4, lowest first.
	MotorOff    int
	MotorSpeeds [4]int

	// StatusQueryAction is the A value that requests a full state report.
	StatusQueryAction int
}

// DefaultProfile matches the mapping captured from the vendor app:
// M:1 off, M:2..5 speeds, L:2 on, L:0 off, {"A":4} status query.
func DefaultProfile() Profile {
	return Profile{
		Name:              "v2",
		LightOn:           2,
		LightOff:          0,
		MotorOff:          1,
		MotorSpeeds:       [4]int{2, 3, 4, 5},
		StatusQueryAction: 4,
	}
}

// Validate rejects profiles that cannot express the command table.
func (p Profile) Validate() error {
	if p.LightOn == p.LightOff {
		return fmt.Errorf("profile %s: light on and off values are both %d", p.Name, p.LightOn)
	}
	seen := map[int]bool{p.MotorOff: true}
	for _, v := range p.MotorSpeeds {
		if seen[v] {
			return fmt.Errorf("profile %s: duplicate motor value %d", p.Name, v)
		}
		seen[v] = true
	}
	return nil
}

// RangeWarnings reports fields whose observed value falls outside the
// profile's enumerated range. These are logged, never fatal: they usually
// mean the device runs a firmware revision the profile does not describe.
func (p Profile) RangeWarnings(state State) []string {
	var warnings []string
	if motor, ok := state.Int(FieldMotor); ok {
		if motor != p.MotorOff && p.PercentForMotorValue(motor) == 0 {
			warnings = append(warnings, fmt.Sprintf("M=%d outside profile %s", motor, p.Name))
		}
	}
	if light, ok := state.Int(FieldLight); ok {
		if light != p.LightOn && light != p.LightOff {
			warnings = append(warnings, fmt.Sprintf("L=%d outside profile %s", light, p.Name))
		}
	}
	return warnings
}
