package types

// ---- Retained state payloads published on the local bus ----

// Link is the radio link state.
type Link string

const (
	LinkIdle     Link = "idle"
	LinkUp       Link = "up"
	LinkDegraded Link = "degraded"
	LinkError    Link = "error"
)

// LinkState is published retained under radio/state.
type LinkState struct {
	Level  Link   `json:"level"`
	Status string `json:"status"` // short machine string
	Error  string `json:"error,omitempty"`
	TSms   int64  `json:"ts_ms"`
}

// OrientationState is published retained under orientation/state.
type OrientationState struct {
	Face     int    `json:"face"`
	Rotation int    `json:"rotation_deg"`
	Alarm    Alarm  `json:"alarm"`
	Sample   Vector `json:"sample"`
	TSms     int64  `json:"ts_ms"`
}

// LEDMode mirrors the modes a virtual LED accepts.
type LEDMode uint8

const (
	LEDOff LEDMode = iota
	LEDOn
	LEDBlink
	LEDBlinkSlow
	LEDBlinkFast
	LEDFlash
)

func (m LEDMode) String() string {
	switch m {
	case LEDOff:
		return "off"
	case LEDOn:
		return "on"
	case LEDBlink:
		return "blink"
	case LEDBlinkSlow:
		return "blink_slow"
	case LEDBlinkFast:
		return "blink_fast"
	case LEDFlash:
		return "flash"
	}
	return "unknown"
}
