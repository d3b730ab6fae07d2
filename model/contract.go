package model

import "net/http"

// Path suffixes of the backend REST contract, relative to a screen's base path.
const (
	PathFindAll = "/findAll"
	PathCreate  = "/create"
	PathUpdate  = "/update"
	PathDelete  = "/delete"
)

// Endpoint is one backend operation a screen depends on.
type Endpoint struct {
	Method string
	// Path is the full path template below the service base URL, e.g.
	// "/accessories/update/{id}".
	Path string
}

// Endpoints returns the backend operations the screen calls, in the order
// list, create, update, delete. Natural-key screens never call create: every
// save goes through the body-keyed update.
func (s ScreenDefinition) Endpoints() []Endpoint {
	base := s.BasePath
	if !s.HasTable() {
		return []Endpoint{{Method: http.MethodPost, Path: base + PathCreate}}
	}
	if s.Identity.Strategy == IdentityNaturalKey {
		return []Endpoint{
			{Method: http.MethodGet, Path: base + PathFindAll},
			{Method: http.MethodPut, Path: base + PathUpdate},
			{Method: http.MethodDelete, Path: base + PathDelete},
		}
	}
	return []Endpoint{
		{Method: http.MethodGet, Path: base + PathFindAll},
		{Method: http.MethodPost, Path: base + PathCreate},
		{Method: http.MethodPut, Path: base + PathUpdate + "/{id}"},
		{Method: http.MethodDelete, Path: base + PathDelete + "/{id}"},
	}
}

// PageSizeOptions returns the selectable page sizes, defaulting to 5, 10, 20.
func (s ScreenDefinition) PageSizeOptions() []int {
	if len(s.PageSizes) > 0 {
		return s.PageSizes
	}
	return []int{5, 10, 20}
}

// InitialPageSize returns the page size a new session starts with.
func (s ScreenDefinition) InitialPageSize() int {
	if s.DefaultPageSize > 0 {
		return s.DefaultPageSize
	}
	return 10
}
