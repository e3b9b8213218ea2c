package security

import (
	"fmt"
	"strings"
)

// DataMasker hides identifying columns (account names by default) from
// callers who do not own the flip history. Masked values are stable aliases,
// so grouping by the column still works.
type DataMasker struct {
	sensitiveColumns []string
}

func NewDataMasker(sensitiveColumns []string) *DataMasker {
	lower := make([]string, len(sensitiveColumns))
	for i, c := range sensitiveColumns {
		lower[i] = strings.ToLower(c)
	}
	return &DataMasker{sensitiveColumns: lower}
}

// MaskRows returns a copy of rows with sensitive columns aliased. Owners see
// the original rows.
func (m *DataMasker) MaskRows(columns []string, rows [][]any, isOwner bool) [][]any {
	if isOwner {
		return rows
	}
	sensitive := make([]bool, len(columns))
	found := false
	for i, col := range columns {
		sensitive[i] = m.isSensitive(col)
		found = found || sensitive[i]
	}
	if !found {
		return rows
	}

	masked := make([][]any, len(rows))
	for i, row := range rows {
		out := make([]any, len(row))
		for j, val := range row {
			if j < len(sensitive) && sensitive[j] && val != nil {
				out[j] = alias(columns[j], fmt.Sprintf("%v", val))
			} else {
				out[j] = val
			}
		}
		masked[i] = out
	}
	return masked
}

func (m *DataMasker) isSensitive(col string) bool {
	lower := strings.ToLower(col)
	for _, s := range m.sensitiveColumns {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// alias: ("account", "Zezima") → "account-1a2b3c"
func alias(col, val string) string {
	prefix := strings.ToLower(col)
	if i := strings.IndexAny(prefix, " _"); i > 0 {
		prefix = prefix[:i]
	}
	return fmt.Sprintf("%s-%s", prefix, hashStr(val)[:6])
}
