package output

import (
	"io"

	"github.com/olekukonko/tablewriter"
)

// TableRenderer is implemented by list results that print as a table.
type TableRenderer interface {
	Headers() []string
	Rows() [][]string
}

// Table renders r as a borderless, left-aligned table.
func Table(w io.Writer, r TableRenderer) error {
	t := plainTable(w, "")
	t.SetHeader(r.Headers())
	t.SetAutoFormatHeaders(true)
	t.AppendBulk(r.Rows())
	t.Render()
	return nil
}

// TableOf adapts r to the table argument of Print.
func TableOf(r TableRenderer) func(io.Writer) error {
	return func(w io.Writer) error { return Table(w, r) }
}

// KeyValue renders label/value pairs as two aligned columns, each label
// followed by a colon, for single-object views such as server status.
func KeyValue(w io.Writer, pairs [][2]string) error {
	t := plainTable(w, "")
	t.SetAutoFormatHeaders(false)
	for _, p := range pairs {
		t.Append([]string{p[0] + ":", p[1]})
	}
	t.Render()
	return nil
}

func plainTable(w io.Writer, columnSep string) *tablewriter.Table {
	t := tablewriter.NewWriter(w)
	t.SetAutoWrapText(false)
	t.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	t.SetCenterSeparator("")
	t.SetColumnSeparator(columnSep)
	t.SetRowSeparator("")
	t.SetHeaderLine(false)
	t.SetBorder(false)
	t.SetTablePadding("  ")
	t.SetNoWhiteSpace(true)
	return t
}
