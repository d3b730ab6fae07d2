package screen

import (
	"fmt"

	"github.com/tshop/admin/model"
)

// NavAction is a pagination control.
type NavAction string

// Navigation actions.
const (
	NavFirst NavAction = "first"
	NavPrev  NavAction = "prev"
	NavNext  NavAction = "next"
	NavLast  NavAction = "last"
	// NavPage jumps to a page number entered by the user.
	NavPage NavAction = "page"
)

// Pagination mirrors the pagination metadata of the last successful page
// response. It is never advanced optimistically.
type Pagination struct {
	Cursor     model.Cursor
	First      bool
	Last       bool
	TotalPages int
}

// NewPagination returns the state of a screen that has not loaded yet.
func NewPagination(size int) Pagination {
	return Pagination{
		Cursor: model.Cursor{Page: 1, Size: size},
		First:  true,
		Last:   true,
	}
}

// Apply adopts the window the backend reports having served.
func (p *Pagination) Apply(page model.Page) {
	p.Cursor = model.FromPage(page)
	p.First = page.First
	p.Last = page.Last
	p.TotalPages = page.TotalPages
}

// Target returns the page a navigation action requests. Targets are not
// bounds-checked; the disabled controls are what keep them in range.
func (p Pagination) Target(action NavAction, entered int) (int, error) {
	switch action {
	case NavFirst:
		return 1, nil
	case NavPrev:
		return p.Cursor.Page - 1, nil
	case NavNext:
		return p.Cursor.Page + 1, nil
	case NavLast:
		return p.TotalPages, nil
	case NavPage:
		return entered, nil
	default:
		return 0, fmt.Errorf("screen: unknown navigation action %q", action)
	}
}

// Enabled reports whether a navigation control is usable at the current
// boundary. The first and last flags are independent.
func (p Pagination) Enabled(action NavAction) bool {
	switch action {
	case NavFirst, NavPrev:
		return !p.First
	case NavNext, NavLast:
		return !p.Last
	case NavPage:
		return true
	}
	return false
}

var navLabels = []struct {
	action NavAction
	label  string
	icon   string
}{
	{NavFirst, "First", "first_page"},
	{NavPrev, "Previous", "chevron_left"},
	{NavNext, "Next", "chevron_right"},
	{NavLast, "Last", "last_page"},
}

// Descriptor renders the navigation bar. busy disables every control.
func (p Pagination) Descriptor(options []int, busy bool) *model.PaginationDescriptor {
	controls := make([]model.ActionDescriptor, 0, len(navLabels))
	for _, n := range navLabels {
		target, _ := p.Target(n.action, 0)
		controls = append(controls, model.ActionDescriptor{
			ID:      string(n.action),
			Label:   n.label,
			Icon:    n.icon,
			Enabled: !busy && p.Enabled(n.action),
			Target:  target,
		})
	}
	return &model.PaginationDescriptor{
		Page:        p.Cursor.Page,
		Size:        p.Cursor.Size,
		TotalPages:  p.TotalPages,
		SizeOptions: options,
		Disabled:    busy,
		Controls:    controls,
	}
}
