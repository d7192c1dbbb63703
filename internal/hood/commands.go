package hood

import "fmt"

// Command is a symbolic, pre-defined state change.
type Command string

const (
	CmdLightOn     Command = "light-on"
	CmdLightOff    Command = "light-off"
	CmdFanOff      Command = "fan-off"
	CmdFanSpeed1   Command = "fan-speed-1"
	CmdFanSpeed2   Command = "fan-speed-2"
	CmdFanSpeed3   Command = "fan-speed-3"
	CmdFanSpeed4   Command = "fan-speed-4"
	CmdStatusQuery Command = "status-query"
)

// Commands lists every symbolic command, for CLIs and bridges.
func Commands() []Command {
	return []Command{
		CmdLightOn, CmdLightOff,
		CmdFanOff, CmdFanSpeed1, CmdFanSpeed2, CmdFanSpeed3, CmdFanSpeed4,
		CmdStatusQuery,
	}
}

// ParseCommand resolves a symbolic command name.
func ParseCommand(name string) (Command, error) {
	for _, cmd := range Commands() {
		if string(cmd) == name {
			return cmd, nil
		}
	}
	return "", fmt.Errorf("unknown command %q", name)
}

// SpeedPresets are the fan preset names, lowest first. Index i maps to
// Profile.MotorSpeeds[i].
var SpeedPresets = []string{"low", "medium", "high", "max"}

// Delta resolves a symbolic command to the partial state it stands for
// under this profile. Status queries carry no delta.
func (p Profile) Delta(cmd Command) (State, error) {
	switch cmd {
	case CmdLightOn:
		return State{FieldLight: p.LightOn}, nil
	case CmdLightOff:
		return State{FieldLight: p.LightOff}, nil
	case CmdFanOff:
		return State{FieldMotor: p.MotorOff}, nil
	case CmdFanSpeed1, CmdFanSpeed2, CmdFanSpeed3, CmdFanSpeed4:
		idx := int(cmd[len(cmd)-1] - '1')
		return State{FieldMotor: p.MotorSpeeds[idx]}, nil
	case CmdStatusQuery:
		return nil, fmt.Errorf("status-query has no delta")
	default:
		return nil, fmt.Errorf("unknown command %q", cmd)
	}
}

// StatusQueryFrame is the literal payload that asks the device to report
// its full state.
func (p Profile) StatusQueryFrame() State {
	return State{FieldAction: p.StatusQueryAction}
}

// MotorValueForPercent translates a 0-100 fan percentage to the wire
// value, matching the vendor app's four-step ladder.
func (p Profile) MotorValueForPercent(percent int) int {
	switch {
	case percent <= 0:
		return p.MotorOff
	case percent <= 25:
		return p.MotorSpeeds[0]
	case percent <= 50:
		return p.MotorSpeeds[1]
	case percent <= 75:
		return p.MotorSpeeds[2]
	default:
		return p.MotorSpeeds[3]
	}
}

// PercentForMotorValue is the inverse mapping; off and unknown values
// report 0.
func (p Profile) PercentForMotorValue(motor int) int {
	for i, v := range p.MotorSpeeds {
		if v == motor {
			return (i + 1) * 25
		}
	}
	return 0
}

// MotorValueForPreset translates a preset name ("low".."max") to the wire
// value. Unknown presets fall back to the lowest speed.
func (p Profile) MotorValueForPreset(preset string) int {
	for i, name := range SpeedPresets {
		if name == preset {
			return p.MotorSpeeds[i]
		}
	}
	return p.MotorSpeeds[0]
}

// LightDelta builds the partial state for turning the light on with an
// optional RGBW color and brightness. Negative channels are left
// untouched so the device keeps its current value.
func (p Profile) LightDelta(r, g, b, cw, brightness int) State {
	delta := State{FieldLight: p.LightOn}
	set := func(field string, v int) {
		if v >= 0 {
			delta[field] = v
		}
	}
	set(FieldRed, r)
	set(FieldGreen, g)
	set(FieldBlue, b)
	set(FieldColdWhite, cw)
	set(FieldBrightness, brightness)
	return delta
}
