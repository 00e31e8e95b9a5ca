package tables

// Row is one raw table row keyed by column name.
type Row map[string]any

// TableInfo describes a table exposed to the admin browser.
type TableInfo struct {
	Name      string `json:"name"`
	Key       string `json:"key"`
	RowCount  int64  `json:"rowCount"`
	Editable  bool   `json:"editable"`
	Deletable bool   `json:"deletable"`
}

// RowsPage is an offset page of raw rows.
type RowsPage struct {
	Table      string `json:"table"`
	Rows       []Row  `json:"rows"`
	NextOffset *int   `json:"nextOffset,omitempty"`
}
