package ledger

import (
	"errors"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Upload is a raw attachment as submitted by the user, before encoding.
type Upload struct {
	Name     string
	MimeType string
	Data     []byte
}

// FormData is the user input for a new transaction.
type FormData struct {
	Date       time.Time       `validate:"required"`
	PersonName string          `validate:"required,max=200"`
	Amount     decimal.Decimal `validate:"positive,cents"`
	Type       Type            `validate:"oneof=received sent"`
	Notes      string          `validate:"max=2000"`
	Attachment *Upload
}

// Patch is a partial edit of an existing transaction's user fields.
type Patch struct {
	Date       Opt[time.Time]
	PersonName Opt[string]
	Amount     Opt[decimal.Decimal]
	Type       Opt[Type]
	Notes      Opt[string]
	Attachment *Upload
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return !p.Date.IsSome() && !p.PersonName.IsSome() && !p.Amount.IsSome() &&
		!p.Type.IsSome() && !p.Notes.IsSome() && p.Attachment == nil
}

// AmountPlaces is the most decimal places an amount may carry.
const AmountPlaces = 2

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func formValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		if err := RegisterValidations(validate); err != nil {
			panic(err)
		}
	})
	return validate
}

// RegisterValidations teaches v the amount tags ("positive", "cents") and
// reports fields by their json names, falling back to the form names.
// Decimal fields are validated as their exact string form.
func RegisterValidations(v *validator.Validate) error {
	v.RegisterCustomTypeFunc(func(f reflect.Value) interface{} {
		if d, ok := f.Interface().(decimal.Decimal); ok {
			return d.String()
		}
		return nil
	}, decimal.Decimal{})
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name, _, _ := strings.Cut(f.Tag.Get("json"), ","); name != "" && name != "-" {
			return name
		}
		return fieldNames[f.Name]
	})
	if err := v.RegisterValidation("positive", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		return err == nil && d.IsPositive()
	}); err != nil {
		return err
	}
	return v.RegisterValidation("cents", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		return err == nil && AmountHasValidPlaces(d)
	})
}

// AmountHasValidPlaces reports whether d needs no more than AmountPlaces
// decimal places. Trailing zeros do not count.
func AmountHasValidPlaces(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(AmountPlaces))
}

var fieldNames = map[string]string{
	"Date":       "date",
	"PersonName": "person_name",
	"Amount":     "amount",
	"Type":       "type",
	"Notes":      "notes",
	"Attachment": "attachment",
}

var fieldMessages = map[string]string{
	"required": "is required",
	"positive": "must be greater than zero",
	"cents":    "must have at most 2 decimal places",
	"oneof":    "must be received or sent",
	"max":      "is too long",
}

// Normalize returns a copy of f with text fields trimmed and NFC-normalised.
func (f FormData) Normalize() FormData {
	f.PersonName = NormalizeText(f.PersonName)
	f.Notes = NormalizeText(f.Notes)
	return f
}

// Validate checks f and returns a *ValidationError for the first bad field.
// It expects f to be normalised already.
func (f FormData) Validate() error {
	if f.Attachment != nil && strings.TrimSpace(f.Attachment.Name) == "" {
		return &ValidationError{Field: "attachment", Message: "file name is required"}
	}
	return ValidationErrorFrom(formValidator().Struct(f))
}

// Normalize returns a copy of p with present text fields normalised.
func (p Patch) Normalize() Patch {
	if v, ok := p.PersonName.Get(); ok {
		p.PersonName = Some(NormalizeText(v))
	}
	if v, ok := p.Notes.Get(); ok {
		p.Notes = Some(NormalizeText(v))
	}
	return p
}

// Validate checks the fields present in p.
func (p Patch) Validate() error {
	v := formValidator()
	if name, ok := p.PersonName.Get(); ok {
		if err := v.Var(name, "required,max=200"); err != nil {
			return fieldError("person_name", err)
		}
	}
	if amount, ok := p.Amount.Get(); ok {
		if err := v.Var(amount.String(), "positive,cents"); err != nil {
			return fieldError("amount", err)
		}
	}
	if t, ok := p.Type.Get(); ok && !t.Valid() {
		return &ValidationError{Field: "type", Message: fieldMessages["oneof"]}
	}
	if d, ok := p.Date.Get(); ok && d.IsZero() {
		return &ValidationError{Field: "date", Message: fieldMessages["required"]}
	}
	if notes, ok := p.Notes.Get(); ok {
		if err := v.Var(notes, "max=2000"); err != nil {
			return fieldError("notes", err)
		}
	}
	if p.Attachment != nil && strings.TrimSpace(p.Attachment.Name) == "" {
		return &ValidationError{Field: "attachment", Message: "file name is required"}
	}
	return nil
}

func fieldError(field string, err error) error {
	ve := ValidationErrorFrom(err)
	var out *ValidationError
	if errors.As(ve, &out) {
		out.Field = field
	}
	return ve
}

// ValidationErrorFrom converts a validator error into a *ValidationError for
// its first failing field. Other errors become a field-less ValidationError.
func ValidationErrorFrom(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ValidationError{Message: err.Error()}
	}
	fe := verrs[0]
	msg, ok := fieldMessages[fe.Tag()]
	if !ok {
		msg = "failed " + fe.Tag() + " check"
	}
	return &ValidationError{Field: fe.Field(), Message: msg}
}
