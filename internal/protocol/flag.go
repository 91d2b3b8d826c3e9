package protocol

import "fmt"

// Flag is the control flag carried by every message. A message holds
// exactly one flag.
type Flag int

const (
	FlagNone Flag = iota
	FlagFailed
	FlagConverged
	FlagFinished
	FlagTimeAdjusted
	FlagIterating
)

var flagNames = [...]string{
	FlagNone:         "none",
	FlagFailed:       "failed",
	FlagConverged:    "converged",
	FlagFinished:     "finished",
	FlagTimeAdjusted: "time_adjusted",
	FlagIterating:    "iterating",
}

func (f Flag) String() string {
	if f < 0 || int(f) >= len(flagNames) {
		return fmt.Sprintf("Flag(%d)", int(f))
	}
	return flagNames[f]
}

func ParseFlag(s string) (Flag, error) {
	for i, name := range flagNames {
		if name == s {
			return Flag(i), nil
		}
	}
	return FlagNone, fmt.Errorf("protocol: unknown flag %q", s)
}

func (f Flag) MarshalText() ([]byte, error) {
	if f < 0 || int(f) >= len(flagNames) {
		return nil, fmt.Errorf("protocol: cannot marshal %v", f)
	}
	return []byte(f.String()), nil
}

func (f *Flag) UnmarshalText(text []byte) error {
	parsed, err := ParseFlag(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// Success reports whether an attempt ended converged or finished.
func (f Flag) Success() bool {
	return f == FlagConverged || f == FlagFinished
}

// StartsNewInterval reports whether a message following a turn that ended
// with f begins a new interval instead of resuming the current one.
func (f Flag) StartsNewInterval() bool {
	return f == FlagNone || f.Success()
}
