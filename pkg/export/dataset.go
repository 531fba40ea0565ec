package export

// Field is a labelled scalar printed above the tables.
type Field struct {
	Label string
	Value string
}

// Table is a titled block of rows keyed by header.
type Table struct {
	Title   string
	Headers []string
	Rows    []map[string]string
}

// Dataset defines export content: a title, summary fields and one or more tables.
type Dataset struct {
	Title   string
	Summary []Field
	Tables  []Table
}

// Renderer turns a dataset into a downloadable document.
type Renderer interface {
	Render(data Dataset) ([]byte, error)
	ContentType() string
	Extension() string
}

func (d Dataset) hasContent() bool {
	if len(d.Summary) > 0 {
		return true
	}
	for _, t := range d.Tables {
		if len(t.Headers) > 0 {
			return true
		}
	}
	return false
}
