package model

// NavigationTree is the top-level navigation structure returned to the frontend.
type NavigationTree struct {
	Items []NavigationNode `json:"items"`
}

// NavigationNode is a single node in the navigation tree.
type NavigationNode struct {
	ID       string           `json:"id"`
	Label    string           `json:"label"`
	Icon     string           `json:"icon,omitempty"`
	Route    string           `json:"route,omitempty"`
	Children []NavigationNode `json:"children,omitempty"`
}

// ScreenDescriptor is the complete, render-ready state of one screen session.
// While Busy is true every control in it reports disabled.
type ScreenDescriptor struct {
	SessionID  string                `json:"session_id"`
	ScreenID   string                `json:"screen_id"`
	Title      string                `json:"title"`
	Busy       bool                  `json:"busy"`
	Table      *TableDescriptor      `json:"table,omitempty"`
	Form       FormDescriptor        `json:"form"`
	Pagination *PaginationDescriptor `json:"pagination,omitempty"`
	Notice     string                `json:"notice,omitempty"`
}

// TableDescriptor is the rendered resource table.
type TableDescriptor struct {
	Columns []ColumnDescriptor `json:"columns"`
	Rows    []RowDescriptor    `json:"rows"`
}

// ColumnDescriptor describes a visible table column.
type ColumnDescriptor struct {
	Field string `json:"field"`
	Label string `json:"label"`
}

// RowDescriptor is one rendered table row with its row-scoped actions.
type RowDescriptor struct {
	Index   int                `json:"index"`
	Cells   []string           `json:"cells"`
	Actions []ActionDescriptor `json:"actions"`
}

// Form modes.
const (
	FormModeCreate = "create"
	FormModeUpdate = "update"
)

// FormDescriptor is the rendered form draft.
type FormDescriptor struct {
	Mode    string             `json:"mode"`
	Fields  []FieldDescriptor  `json:"fields"`
	Actions []ActionDescriptor `json:"actions"`
}

// FieldDescriptor is a rendered form input.
type FieldDescriptor struct {
	Field    string `json:"field"`
	Label    string `json:"label"`
	Type     string `json:"type"`
	Value    string `json:"value"`
	Disabled bool   `json:"disabled"`
	Max      string `json:"max,omitempty"`
}

// PaginationDescriptor is the rendered navigation bar.
type PaginationDescriptor struct {
	Page        int                `json:"page"`
	Size        int                `json:"size"`
	TotalPages  int                `json:"total_pages"`
	SizeOptions []int              `json:"size_options"`
	Disabled    bool               `json:"disabled"`
	Controls    []ActionDescriptor `json:"controls"`
}

// ActionDescriptor is a clickable control.
type ActionDescriptor struct {
	ID           string                  `json:"id"`
	Label        string                  `json:"label"`
	Icon         string                  `json:"icon,omitempty"`
	Enabled      bool                    `json:"enabled"`
	Target       int                     `json:"target,omitempty"`
	Confirmation *ConfirmationDescriptor `json:"confirmation,omitempty"`
}

// ConfirmationDescriptor describes a confirmation dialog.
type ConfirmationDescriptor struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Confirm string `json:"confirm"`
	Cancel  string `json:"cancel,omitempty"`
}

// ErrorResponse is the body written for a failed screen request. Screen
// carries the current state so the frontend can re-render unlocked controls.
type ErrorResponse struct {
	Error  *ErrorEnvelope    `json:"error"`
	Screen *ScreenDescriptor `json:"screen,omitempty"`
}
