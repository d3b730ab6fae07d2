package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Resource is a single flat record exchanged with the backend. Values are
// primitives: string, float64 or json.Number for numbers, bool, or nil.
type Resource map[string]any

// Clone returns a shallow copy of the resource. Since values are primitives
// the copy is independent of the original.
func (r Resource) Clone() Resource {
	if r == nil {
		return nil
	}
	out := make(Resource, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Has reports whether the field is present with a non-empty value.
func (r Resource) Has(field string) bool {
	v, ok := r[field]
	if !ok || v == nil {
		return false
	}
	if s, ok := v.(string); ok {
		return s != ""
	}
	return true
}

// String renders a field value for display or for use in a URL path.
// Integral numbers are rendered without a fractional part.
func (r Resource) String(field string) string {
	return Stringify(r[field])
}

// Stringify renders a primitive value as a string.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		if t == math.Trunc(t) && !math.IsInf(t, 0) {
			return strconv.FormatFloat(t, 'f', 0, 64)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return Stringify(float64(t))
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

// Pageable is the backend's description of the window that was served.
// PageNumber is zero-based.
type Pageable struct {
	PageNumber int `json:"pageNumber"`
	PageSize   int `json:"pageSize"`
}

// Page is one window of the backend's paginated resource collection.
type Page struct {
	Content          []Resource `json:"content"`
	Pageable         Pageable   `json:"pageable"`
	First            bool       `json:"first"`
	Last             bool       `json:"last"`
	TotalPages       int        `json:"totalPages"`
	TotalElements    int        `json:"totalElements,omitempty"`
	NumberOfElements int        `json:"numberOfElements,omitempty"`
}

// Cursor is the UI-held, one-based page position mirrored from the last
// successful Page response.
type Cursor struct {
	Page int `json:"page"`
	Size int `json:"size"`
}

// FromPage returns the cursor that a successful response reports.
func FromPage(p Page) Cursor {
	return Cursor{
		Page: p.Pageable.PageNumber + 1,
		Size: p.Pageable.PageSize,
	}
}
