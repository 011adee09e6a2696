package export

import "fmt"

// Section is one titled table of an export.
type Section struct {
	Title   string
	Headers []string
	Rows    [][]string
}

// Document is the tabular content rendered into CSV or PDF.
type Document struct {
	Title    string
	Subtitle string
	Sections []Section
}

// AddSection appends a table, padding or truncating rows to the header width.
func (d *Document) AddSection(title string, headers []string, rows [][]string) {
	normalized := make([][]string, 0, len(rows))
	for _, row := range rows {
		cells := make([]string, len(headers))
		copy(cells, row)
		normalized = append(normalized, cells)
	}
	d.Sections = append(d.Sections, Section{Title: title, Headers: headers, Rows: normalized})
}

func (d Document) validate() error {
	if len(d.Sections) == 0 {
		return fmt.Errorf("document has no sections")
	}
	for _, s := range d.Sections {
		if len(s.Headers) == 0 {
			return fmt.Errorf("section %q requires at least one header", s.Title)
		}
	}
	return nil
}
