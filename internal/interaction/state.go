package interaction

import (
	"fmt"

	"github.com/bawa-mj/vanya/internal/locale"
	"github.com/bawa-mj/vanya/internal/transcript"
)

// Mode is the single active high-level state of the interaction.
type Mode int

const (
	Idle Mode = iota
	Listening
	Processing
	Speaking
)

var modeNames = [...]string{
	Idle:       "idle",
	Listening:  "listening",
	Processing: "processing",
	Speaking:   "speaking",
}

// String implements fmt.Stringer.
func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return fmt.Sprintf("mode(%d)", int(m))
	}
	return modeNames[m]
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	if m < 0 || int(m) >= len(modeNames) {
		return nil, fmt.Errorf("interaction: invalid mode %d", int(m))
	}
	return []byte(modeNames[m]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(b []byte) error {
	for i, n := range modeNames {
		if n == string(b) {
			*m = Mode(i)
			return nil
		}
	}
	return fmt.Errorf("interaction: unknown mode %q", b)
}

// State is an immutable snapshot of everything a presentation layer renders.
// Turns must be treated as read-only; it may be shared between snapshots.
type State struct {
	// Version increases with every published snapshot.
	Version uint64 `json:"version"`

	Mode  Mode              `json:"mode"`
	Turns []transcript.Turn `json:"turns"`

	// Locale is the locale used for the next capture and submission.
	Locale locale.Code `json:"locale"`

	// Label names the locale the toggle switches to.
	Label string `json:"label"`

	// Welcome is shown while the transcript is empty.
	Welcome string `json:"welcome"`

	// Error is the current transient message, empty when none is shown.
	Error string `json:"error,omitempty"`

	// Unsupported reports that no capture engine is available.
	Unsupported bool `json:"unsupported"`

	// NoticeOpen reports whether the unsupported-capture notice is shown.
	NoticeOpen bool `json:"notice_open"`

	// Notice is the unsupported-capture text in the active locale.
	Notice string `json:"notice,omitempty"`
}

// sameView reports whether a and b render identically. Turns are compared by
// length since the transcript is only ever appended to.
func sameView(a, b State) bool {
	return a.Mode == b.Mode &&
		len(a.Turns) == len(b.Turns) &&
		a.Locale == b.Locale &&
		a.Error == b.Error &&
		a.NoticeOpen == b.NoticeOpen &&
		a.Unsupported == b.Unsupported
}
