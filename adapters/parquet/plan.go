package parquet

import "github.com/magpierre/rowwindow/datatable"

// groupPlan is a row selection mapped onto the row groups of a file.
type groupPlan struct {
	// RowGroups lists, in file order, the only row groups that are read.
	RowGroups []int
	// Skip is the number of decoded rows to drop from the first group.
	Skip int64
	// Take is the number of rows to keep after Skip.
	Take int64
}

// planRowGroups maps a contiguous selection onto row groups using their
// stored row counts. Groups wholly inside the skipped prefix, or wholly past
// the selected run, are left out, so they are never fetched nor decoded.
func planRowGroups(sel datatable.RowSelection, groupRows []int64) groupPlan {
	start, end, ok := sel.Span()
	if !ok {
		return groupPlan{}
	}
	p := groupPlan{Take: end - start}
	var pos int64
	for i, n := range groupRows {
		gStart, gEnd := pos, pos+n
		pos = gEnd
		if n == 0 || gEnd <= start {
			continue
		}
		if gStart >= end {
			break
		}
		if len(p.RowGroups) == 0 {
			p.Skip = start - gStart
		}
		p.RowGroups = append(p.RowGroups, i)
	}
	return p
}
