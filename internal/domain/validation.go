package domain

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("activity", func(fl validator.FieldLevel) bool {
		return ActivityType(fl.Field().String()).IsValid()
	})
	return v
}

var tagMessages = map[string]string{
	"required": "campo obrigatório",
	"datetime": "formato inválido",
	"activity": "tipo de atividade desconhecido",
	"max":      "texto muito longo",
}

// Resolve normalizes the payload, checks every rule and computes the
// duration and total. All violations are reported together as
// ValidationErrors; nothing is returned partially valid.
func (p EntryPayload) Resolve() (*ResolvedEntry, error) {
	p.normalize()

	var errs ValidationErrors

	if err := validate.Struct(p); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return nil, err
		}
		for _, fe := range fieldErrs {
			msg, ok := tagMessages[fe.Tag()]
			if !ok {
				msg = "valor inválido"
			}
			errs.add(fieldPath(fe), msg)
		}
	}

	src, minutes, err := ResolveDuration(DurationInput{
		StartTime:     p.StartTime,
		EndTime:       p.EndTime,
		PresetMinutes: p.DurationPreset,
		CustomMinutes: p.DurationCustom,
	})
	if err != nil {
		var ve *ErrValidation
		if !errors.As(err, &ve) {
			return nil, err
		}
		errs.add(ve.Field, ve.Message)
	}

	if p.HourlyRate.IsNegative() {
		errs.add("hourlyRate", "o valor da hora não pode ser negativo")
	}

	if p.HasTravelCost {
		switch {
		case p.TravelCost.IsNegative():
			errs.add("travelCost", "a ajuda de custo não pode ser negativa")
		case p.TravelCost.IsZero():
			errs.add("travelCost", "informe o valor da ajuda de custo")
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}

	return &ResolvedEntry{
		Payload:         p,
		Duration:        src,
		DurationMinutes: minutes,
		Total: ComputeTotal(TotalInput{
			DurationMinutes: minutes,
			HourlyRate:      p.HourlyRate,
			TravelCost:      p.TravelCost,
		}),
	}, nil
}

// normalize enforces hasTravelCost == false ⇒ travelCost == 0 and trims text.
func (p *EntryPayload) normalize() {
	if !p.HasTravelCost {
		p.TravelCost = decimal.Zero
	}
	p.TherapistID = strings.TrimSpace(p.TherapistID)
	p.ClientID = strings.TrimSpace(p.ClientID)
	p.Notes = strings.TrimSpace(p.Notes)
	p.Attachments = append([]Attachment(nil), p.Attachments...)
	for i := range p.Attachments {
		p.Attachments[i].Name = strings.TrimSpace(p.Attachments[i].Name)
	}
}

// fieldPath drops the struct name prefix: "EntryPayload.attachments[0].name" -> "attachments[0].name".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}
