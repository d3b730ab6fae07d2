package screen

import (
	"fmt"
	"time"

	"github.com/tshop/admin/internal/numfmt"
	"github.com/tshop/admin/model"
)

// DateLayout is the wire and input format of date fields.
const DateLayout = "2006-01-02"

// Draft is the editable form state of a screen. Values are held as the
// user sees them; numeric fields carry grouping separators until Record
// strips them.
type Draft struct {
	def     model.ScreenDefinition
	fmt     *numfmt.Formatter
	today   string
	values  map[string]string
	editing bool
}

// NewDraft creates a draft seeded with the field defaults. today is the
// session's current date, used by default_today and max_today fields.
func NewDraft(def model.ScreenDefinition, f *numfmt.Formatter, today time.Time) *Draft {
	d := &Draft{
		def:   def,
		fmt:   f,
		today: today.Format(DateLayout),
	}
	d.Reset()
	return d
}

// Reset returns every field to its default and leaves edit mode.
func (d *Draft) Reset() {
	d.values = make(map[string]string, len(d.def.Fields))
	for _, f := range d.def.Fields {
		v := f.Default
		if f.DefaultToday {
			v = d.today
		}
		if f.Numeric {
			v = d.fmt.Reformat(v)
		}
		d.values[f.Field] = v
	}
	d.editing = false
}

// Fill overwrites every field, identity included, with the record's
// values. Fields the record lacks become empty.
func (d *Draft) Fill(r model.Resource) {
	d.values = make(map[string]string, len(d.def.Fields))
	for _, f := range d.def.Fields {
		if f.Numeric {
			d.values[f.Field] = d.fmt.FormatValue(r[f.Field])
			continue
		}
		d.values[f.Field] = r.String(f.Field)
	}
	d.editing = true
}

// Input applies one keystroke's worth of input to a field. Numeric fields
// are re-grouped; a rejected value leaves the field unchanged.
func (d *Draft) Input(field, value string) error {
	f, ok := d.def.Field(field)
	if !ok {
		return model.NewValidationError([]model.FieldError{
			{Field: field, Code: "UNKNOWN_FIELD", Message: fmt.Sprintf("form has no field %q", field)},
		})
	}
	if f.Numeric {
		value = d.fmt.Reformat(value)
	}
	if fe := d.checkField(f, value); fe != nil {
		return model.NewValidationError([]model.FieldError{*fe})
	}
	d.values[field] = value
	return nil
}

// Validate checks the whole draft.
func (d *Draft) Validate() []model.FieldError {
	var errs []model.FieldError
	for _, f := range d.def.Fields {
		if fe := d.checkField(f, d.values[f.Field]); fe != nil {
			errs = append(errs, *fe)
		}
	}
	return errs
}

func (d *Draft) checkField(f model.FieldDefinition, value string) *model.FieldError {
	if f.Type != model.FieldTypeDate || value == "" {
		return nil
	}
	if _, err := time.Parse(DateLayout, value); err != nil {
		return &model.FieldError{Field: f.Field, Code: "INVALID_DATE", Message: fmt.Sprintf("%s must be a date (YYYY-MM-DD)", f.Field)}
	}
	// ISO dates order lexically.
	if f.MaxToday && value > d.today {
		return &model.FieldError{Field: f.Field, Code: "MAX", Message: fmt.Sprintf("%s cannot be after %s", f.Field, d.today)}
	}
	return nil
}

// Value returns the displayed value of a field.
func (d *Draft) Value(field string) string {
	return d.values[field]
}

// Today returns the session date as used for date defaults and limits.
func (d *Draft) Today() string {
	return d.today
}

// Mode returns model.FormModeUpdate when a submit would update an existing
// record. Synthetic-id screens decide by the presence of the id; others by
// whether a row was loaded for editing.
func (d *Draft) Mode() string {
	switch {
	case !d.def.HasTable():
		return model.FormModeCreate
	case d.def.Identity.Strategy == model.IdentitySynthetic:
		if d.values[d.def.Identity.Field] != "" {
			return model.FormModeUpdate
		}
		return model.FormModeCreate
	case d.editing:
		return model.FormModeUpdate
	}
	return model.FormModeCreate
}

// Record serializes the draft into the request record. Numeric fields are
// sent as raw digits.
func (d *Draft) Record() model.Resource {
	r := make(model.Resource, len(d.def.Fields))
	for _, f := range d.def.Fields {
		v := d.values[f.Field]
		if f.Numeric {
			v = numfmt.Strip(v)
		}
		r[f.Field] = v
	}
	return r
}
