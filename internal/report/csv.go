package report

import (
	"fmt"
	"strings"
)

// RenderCSV renders the metric rows as CSV string.
func RenderCSV(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("run_id,metric,token,tag,amount\n")

	// Rows
	for _, row := range r.Rows {
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%s,%s\n",
			row.RunID,
			row.Metric,
			row.Token,
			row.Tag,
			row.Amount,
		))
	}

	return sb.String()
}
