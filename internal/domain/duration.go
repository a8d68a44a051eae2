package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Clock is a wall-clock time of day with minute precision.
type Clock struct {
	minutes int
}

// ParseClock parses "HH:MM" (24h).
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return Clock{}, fmt.Errorf("invalid time %q: expected HH:MM", s)
	}
	return Clock{minutes: t.Hour()*60 + t.Minute()}, nil
}

// Minutes returns minutes since midnight.
func (c Clock) Minutes() int { return c.minutes }

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.minutes/60, c.minutes%60)
}

// DurationKind names which source is authoritative for an entry's duration.
type DurationKind string

const (
	DurationRange  DurationKind = "range"
	DurationPreset DurationKind = "preset"
	DurationCustom DurationKind = "custom"
)

// DurationPresets are the fixed durations offered by the entry form.
var DurationPresets = []int{30, 60, 90, 120}

// DurationSource is exactly one of FromRange, FromPreset or FromCustom.
type DurationSource interface {
	Kind() DurationKind
	Minutes() (int, error)
}

// FromRange derives the duration from start and end times.
type FromRange struct {
	Start Clock
	End   Clock
}

func (FromRange) Kind() DurationKind { return DurationRange }

func (r FromRange) Minutes() (int, error) {
	d := r.End.Minutes() - r.Start.Minutes()
	if d <= 0 {
		return 0, &ErrValidation{Field: "endTime", Message: "o horário final deve ser posterior ao inicial"}
	}
	return d, nil
}

// FromPreset is one of DurationPresets.
type FromPreset struct {
	Value int
}

func (FromPreset) Kind() DurationKind { return DurationPreset }

func (p FromPreset) Minutes() (int, error) {
	if !slices.Contains(DurationPresets, p.Value) {
		return 0, &ErrValidation{Field: "durationMinutes", Message: fmt.Sprintf("duração pré-definida inválida: %d", p.Value)}
	}
	return p.Value, nil
}

// FromCustom is a user-entered number of minutes.
type FromCustom struct {
	Value int
}

func (FromCustom) Kind() DurationKind { return DurationCustom }

func (c FromCustom) Minutes() (int, error) {
	if c.Value <= 0 {
		return 0, &ErrValidation{Field: "durationMinutes", Message: "a duração deve ser maior que zero"}
	}
	return c.Value, nil
}

// DurationInput is the raw duration data captured by the form.
type DurationInput struct {
	StartTime     string
	EndTime       string
	PresetMinutes *int
	CustomMinutes *int
}

// ResolveDuration picks the authoritative source and returns its minutes.
// A complete time range always wins over preset and custom values.
func ResolveDuration(in DurationInput) (DurationSource, int, error) {
	var src DurationSource
	switch {
	case strings.TrimSpace(in.StartTime) != "" && strings.TrimSpace(in.EndTime) != "":
		start, err := ParseClock(in.StartTime)
		if err != nil {
			return nil, 0, &ErrValidation{Field: "startTime", Message: err.Error()}
		}
		end, err := ParseClock(in.EndTime)
		if err != nil {
			return nil, 0, &ErrValidation{Field: "endTime", Message: err.Error()}
		}
		src = FromRange{Start: start, End: end}
	case in.PresetMinutes != nil && *in.PresetMinutes != 0:
		src = FromPreset{Value: *in.PresetMinutes}
	case in.CustomMinutes != nil:
		src = FromCustom{Value: *in.CustomMinutes}
	default:
		return nil, 0, &ErrValidation{Field: "durationMinutes", Message: "informe o horário ou a duração"}
	}

	minutes, err := src.Minutes()
	if err != nil {
		return nil, 0, err
	}
	return src, minutes, nil
}

// ResolveDurationMinutes is ResolveDuration without the source.
func ResolveDurationMinutes(in DurationInput) (int, error) {
	_, m, err := ResolveDuration(in)
	return m, err
}
