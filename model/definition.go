package model

// DomainDefinition is the root structure of a definition file. Each file
// declares one domain's navigation entry and its management screens.
type DomainDefinition struct {
	Domain     string               `yaml:"domain"     json:"domain"`
	Version    string               `yaml:"version"    json:"version"`
	Navigation NavigationDefinition `yaml:"navigation" json:"navigation"`
	Screens    []ScreenDefinition   `yaml:"screens"    json:"screens,omitempty"`

	// Checksum is computed at load time and not part of the YAML.
	Checksum string `yaml:"-" json:"-"`
	// SourceFile records the originating file path.
	SourceFile string `yaml:"-" json:"-"`
}

// NavigationDefinition describes a domain's menu entry.
type NavigationDefinition struct {
	Label string `yaml:"label" json:"label"`
	Icon  string `yaml:"icon"  json:"icon"`
	Order int    `yaml:"order" json:"order"`
}

// Screen modes.
const (
	// ScreenModeManage is a paginated table with an upsert form and row actions.
	ScreenModeManage = "manage"
	// ScreenModeCreateOnly is a standalone create form with no table.
	ScreenModeCreateOnly = "create_only"
)

// Identity strategies.
const (
	// IdentitySynthetic keys a resource by a single generated id field.
	IdentitySynthetic = "id"
	// IdentityNaturalKey keys a resource by a composite of business fields.
	IdentityNaturalKey = "natural_key"
)

// ScreenDefinition describes one management screen bound to one backend
// resource collection.
type ScreenDefinition struct {
	ID        string `yaml:"id"         json:"id"`
	Title     string `yaml:"title"      json:"title"`
	Route     string `yaml:"route"      json:"route"`
	Mode      string `yaml:"mode"       json:"mode"`
	ServiceID string `yaml:"service_id" json:"service_id"`
	// BasePath is appended to the service base URL, e.g. "/accessories".
	BasePath           string                  `yaml:"base_path"           json:"base_path"`
	Identity           IdentityDefinition      `yaml:"identity"            json:"identity"`
	Columns            []ColumnDefinition      `yaml:"columns"             json:"columns,omitempty"`
	Fields             []FieldDefinition       `yaml:"fields"              json:"fields"`
	PageSizes          []int                   `yaml:"page_sizes"          json:"page_sizes,omitempty"`
	DefaultPageSize    int                     `yaml:"default_page_size"   json:"default_page_size,omitempty"`
	DeleteConfirmation *ConfirmationDefinition `yaml:"delete_confirmation" json:"delete_confirmation,omitempty"`
}

// TableColumns returns the columns the table renders.
func (s ScreenDefinition) TableColumns() []ColumnDefinition {
	if len(s.Columns) > 0 {
		return s.Columns
	}
	cols := make([]ColumnDefinition, 0, len(s.Fields))
	for _, f := range s.Fields {
		cols = append(cols, ColumnDefinition{Field: f.Field, Label: f.Label})
	}
	return cols
}

// HasTable reports whether the screen renders a paginated table.
func (s ScreenDefinition) HasTable() bool {
	return s.Mode != ScreenModeCreateOnly
}

// Field returns the field definition with the given name.
func (s ScreenDefinition) Field(name string) (FieldDefinition, bool) {
	for _, f := range s.Fields {
		if f.Field == name {
			return f, true
		}
	}
	return FieldDefinition{}, false
}

// IdentityDefinition describes how records of a screen are addressed.
type IdentityDefinition struct {
	Strategy   string   `yaml:"strategy"    json:"strategy"`
	Field      string   `yaml:"field"       json:"field,omitempty"`
	NaturalKey []string `yaml:"natural_key" json:"natural_key,omitempty"`
}

// ColumnDefinition describes a table column. When a screen defines no
// columns, its form fields are rendered as columns in declaration order.
type ColumnDefinition struct {
	Field string `yaml:"field" json:"field"`
	Label string `yaml:"label" json:"label"`
}

// Field types.
const (
	FieldTypeText   = "text"
	FieldTypeNumber = "number"
	FieldTypeDate   = "date"
	FieldTypeHidden = "hidden"
)

// FieldDefinition describes a form field.
type FieldDefinition struct {
	Field string `yaml:"field" json:"field"`
	Label string `yaml:"label" json:"label"`
	Type  string `yaml:"type"  json:"type"`
	// Numeric fields are displayed grouped by thousands and sent as raw digits.
	Numeric bool   `yaml:"numeric" json:"numeric,omitempty"`
	Default string `yaml:"default" json:"default,omitempty"`
	// DefaultToday seeds a date field with the session's current date.
	DefaultToday bool `yaml:"default_today" json:"default_today,omitempty"`
	// MaxToday rejects dates after the current date.
	MaxToday bool `yaml:"max_today" json:"max_today,omitempty"`
}

// ConfirmationDefinition describes a confirmation dialog.
type ConfirmationDefinition struct {
	Title   string `yaml:"title"   json:"title"`
	Message string `yaml:"message" json:"message"`
	Confirm string `yaml:"confirm" json:"confirm"`
	Cancel  string `yaml:"cancel"  json:"cancel,omitempty"`
}
