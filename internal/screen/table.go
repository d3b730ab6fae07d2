package screen

import (
	"github.com/tshop/admin/internal/numfmt"
	"github.com/tshop/admin/model"
)

// Table holds the rendered rows of the last successful page. Each row keeps
// its own copy of the record it was rendered from.
type Table struct {
	def  model.ScreenDefinition
	fmt  *numfmt.Formatter
	rows []model.Resource
}

// NewTable creates an empty table for the screen.
func NewTable(def model.ScreenDefinition, f *numfmt.Formatter) *Table {
	return &Table{def: def, fmt: f}
}

// Render replaces every row with the page content, in content order.
func (t *Table) Render(content []model.Resource) {
	rows := make([]model.Resource, len(content))
	for i, r := range content {
		rows[i] = r.Clone()
	}
	t.rows = rows
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Row returns a copy of the snapshot captured when row i was rendered.
func (t *Table) Row(i int) (model.Resource, bool) {
	if i < 0 || i >= len(t.rows) {
		return nil, false
	}
	return t.rows[i].Clone(), true
}

// Cells renders the visible cells of row i.
func (t *Table) Cells(i int) []string {
	cols := t.def.TableColumns()
	cells := make([]string, len(cols))
	for j, c := range cols {
		v := t.rows[i][c.Field]
		if f, ok := t.def.Field(c.Field); ok && f.Numeric {
			cells[j] = t.fmt.FormatValue(v)
			continue
		}
		cells[j] = model.Stringify(v)
	}
	return cells
}

// Descriptor renders the table. Every row carries an edit and a delete
// action; busy disables them.
func (t *Table) Descriptor(busy bool) *model.TableDescriptor {
	cols := t.def.TableColumns()
	td := &model.TableDescriptor{
		Columns: make([]model.ColumnDescriptor, len(cols)),
		Rows:    make([]model.RowDescriptor, len(t.rows)),
	}
	for i, c := range cols {
		td.Columns[i] = model.ColumnDescriptor{Field: c.Field, Label: c.Label}
	}

	var confirm *model.ConfirmationDescriptor
	if c := t.def.DeleteConfirmation; c != nil {
		confirm = &model.ConfirmationDescriptor{Title: c.Title, Message: c.Message, Confirm: c.Confirm, Cancel: c.Cancel}
	}
	for i := range t.rows {
		td.Rows[i] = model.RowDescriptor{
			Index: i,
			Cells: t.Cells(i),
			Actions: []model.ActionDescriptor{
				{ID: ActionEdit, Label: "Edit", Icon: "edit", Enabled: !busy},
				{ID: ActionDelete, Label: "Delete", Icon: "delete", Enabled: !busy, Confirmation: confirm},
			},
		}
	}
	return td
}
