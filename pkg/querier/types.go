package querier

// Row is a single result row keyed by column name.
type Row map[string]any

// ResultSet is the outcome of one executed query. Count always equals
// len(Rows); it is carried so serialized results keep the row count even
// when rows are truncated for display.
type ResultSet struct {
	SQL     string   `json:"sql"`
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
	Count   int      `json:"count"`
}

// Empty reports whether the query returned no rows.
func (r *ResultSet) Empty() bool {
	return r == nil || len(r.Rows) == 0
}
