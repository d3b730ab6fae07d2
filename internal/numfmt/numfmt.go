// Package numfmt implements the reversible display transform for price-like
// fields: digits are grouped by thousands using the locale's separator for
// display and stripped back to raw digits for the wire.
package numfmt

import (
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/tshop/admin/model"
)

// DefaultLocale is the locale the tshop backend and its operators use.
const DefaultLocale = "vi"

// Formatter groups and strips digit strings for one locale. It is safe for
// concurrent use.
type Formatter struct {
	printer   *message.Printer
	separator string
}

// New creates a Formatter for a BCP-47 locale. Unknown locales fall back to
// DefaultLocale.
func New(locale string) *Formatter {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.MustParse(DefaultLocale)
	}
	p := message.NewPrinter(tag)

	// Derive the grouping separator from the locale's own rendering. A
	// million is used because some locales leave four-digit numbers ungrouped.
	sample := strings.TrimPrefix(p.Sprintf("%d", 1000000), "1")
	sep := sample
	if i := strings.IndexByte(sample, '0'); i >= 0 {
		sep = sample[:i]
	}

	return &Formatter{printer: p, separator: sep}
}

// Separator returns the grouping separator of the formatter's locale.
func (f *Formatter) Separator() string {
	return f.separator
}

// Format groups a digit-only string by thousands. Every digit is kept,
// including leading zeros, so Strip(Format(x)) == x. Input that is not
// digit-only is returned unchanged.
func (f *Formatter) Format(raw string) string {
	if raw == "" || !IsDigits(raw) {
		return raw
	}
	head := len(raw) % 3
	if head == 0 {
		head = 3
	}
	var b strings.Builder
	b.Grow(len(raw) + (len(raw)/3)*len(f.separator))
	b.WriteString(raw[:head])
	for i := head; i < len(raw); i += 3 {
		b.WriteString(f.separator)
		b.WriteString(raw[i : i+3])
	}
	return b.String()
}

// Reformat applies the keystroke rule: strip everything but digits, then
// group again, so separators are always canonical.
func (f *Formatter) Reformat(input string) string {
	return f.Format(Strip(input))
}

// FormatValue renders a backend value for display. Integral values are
// grouped, fractional numbers use the locale's decimal formatting and
// anything else is rendered verbatim.
func (f *Formatter) FormatValue(v any) string {
	s := model.Stringify(v)
	if s == "" {
		return s
	}
	if neg, ok := strings.CutPrefix(s, "-"); ok && IsDigits(neg) {
		return "-" + f.Format(neg)
	}
	if IsDigits(s) {
		return f.Format(s)
	}
	if fl, err := strconv.ParseFloat(s, 64); err == nil {
		return f.printer.Sprint(number.Decimal(fl))
	}
	return s
}

// Strip removes every character that is not an ASCII digit.
func Strip(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// IsDigits reports whether s is a non-empty string of ASCII digits.
func IsDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
