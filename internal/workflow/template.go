package workflow

import (
	"io"
	"strings"

	"github.com/valyala/fasttemplate"

	"github.com/pitabwire/recruitflow/model"
)

const (
	placeholderStart = "{{"
	placeholderEnd   = "}}"
)

// Interpolate replaces {{field}} placeholders in tmpl with payload values.
// Whitespace inside the braces is ignored and unknown fields render as the
// empty string.
func Interpolate(tmpl string, payload model.Payload) string {
	if !strings.Contains(tmpl, placeholderStart) {
		return tmpl
	}
	return fasttemplate.ExecuteFuncString(tmpl, placeholderStart, placeholderEnd,
		func(w io.Writer, tag string) (int, error) {
			return io.WriteString(w, payload.Lookup(strings.TrimSpace(tag)).Text())
		})
}

// Placeholders lists the field names referenced by tmpl, in order of
// appearance. A placeholder without its closing braces is an error.
func Placeholders(tmpl string) ([]string, error) {
	t, err := fasttemplate.NewTemplate(tmpl, placeholderStart, placeholderEnd)
	if err != nil {
		return nil, err
	}
	var fields []string
	t.ExecuteFuncString(func(_ io.Writer, tag string) (int, error) {
		fields = append(fields, strings.TrimSpace(tag))
		return 0, nil
	})
	return fields, nil
}
