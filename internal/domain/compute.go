package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var minutesPerHour = decimal.NewFromInt(60)

// TotalInput holds the values a billing total is computed from.
type TotalInput struct {
	DurationMinutes int
	HourlyRate      decimal.Decimal
	TravelCost      decimal.Decimal
}

// ComputeTotal returns round2(duration/60*rate + travel). Negative inputs
// are clamped to zero; validation rejects them before this point.
func ComputeTotal(in TotalInput) decimal.Decimal {
	minutes := decimal.NewFromInt(int64(max(0, in.DurationMinutes)))
	rate := clampZero(in.HourlyRate)
	travel := clampZero(in.TravelCost)

	return Round2(minutes.Mul(rate).Div(minutesPerHour).Add(travel))
}

// Round2 rounds to two decimal places, half away from zero.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

func clampZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// FormatDuration renders minutes as "1h 30m", "45m" or "2h".
func FormatDuration(minutes int) string {
	if minutes <= 0 {
		return "0m"
	}
	h, m := minutes/60, minutes%60
	switch {
	case h == 0:
		return fmt.Sprintf("%dm", m)
	case m == 0:
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dh %dm", h, m)
	}
}

// FormatBRL renders an amount in Brazilian reais, e.g. "R$ 1.234,56".
func FormatBRL(d decimal.Decimal) string {
	p := message.NewPrinter(language.BrazilianPortuguese)
	return p.Sprintf("R$ %.2f", d.Round(2).InexactFloat64())
}

// Preview is the live total shown while an entry is being edited.
type Preview struct {
	DurationMinutes int             `json:"durationMinutes"`
	DurationSource  DurationKind    `json:"durationSource"`
	DurationLabel   string          `json:"durationLabel"`
	HourlyRate      decimal.Decimal `json:"hourlyRate"`
	TravelCost      decimal.Decimal `json:"travelCost"`
	Total           decimal.Decimal `json:"total"`
	TotalLabel      string          `json:"totalLabel"`
}

// PreviewTotal computes the total of a possibly incomplete payload. Only the
// duration must resolve; missing parties and dates are not checked here.
func PreviewTotal(p EntryPayload) (*Preview, error) {
	p.normalize()
	src, minutes, err := ResolveDuration(DurationInput{
		StartTime:     p.StartTime,
		EndTime:       p.EndTime,
		PresetMinutes: p.DurationPreset,
		CustomMinutes: p.DurationCustom,
	})
	if err != nil {
		return nil, err
	}

	total := ComputeTotal(TotalInput{DurationMinutes: minutes, HourlyRate: p.HourlyRate, TravelCost: p.TravelCost})
	return &Preview{
		DurationMinutes: minutes,
		DurationSource:  src.Kind(),
		DurationLabel:   FormatDuration(minutes),
		HourlyRate:      p.HourlyRate,
		TravelCost:      p.TravelCost,
		Total:           total,
		TotalLabel:      FormatBRL(total),
	}, nil
}
