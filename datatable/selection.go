package datatable

// RowSelector is one step of a decode-time row selection: either skip Count
// rows without materializing them, or decode the next Count rows.
type RowSelector struct {
	Count int64
	Skip  bool
}

// RowSelection is an ordered plan of selectors applied from row 0.
type RowSelection []RowSelector

// SkipTake returns the two-step plan that skips the first offset rows and
// then selects the next n.
func SkipTake(offset, n int) RowSelection {
	sel := make(RowSelection, 0, 2)
	if offset > 0 {
		sel = append(sel, RowSelector{Count: int64(offset), Skip: true})
	}
	if n > 0 {
		sel = append(sel, RowSelector{Count: int64(n)})
	}
	return sel
}

// Skipped returns the number of rows the plan skips.
func (s RowSelection) Skipped() int64 {
	var total int64
	for _, r := range s {
		if r.Skip {
			total += r.Count
		}
	}
	return total
}

// Selected returns the number of rows the plan decodes.
func (s RowSelection) Selected() int64 {
	var total int64
	for _, r := range s {
		if !r.Skip {
			total += r.Count
		}
	}
	return total
}

// Span returns the first selected row and one past the last selected row.
// ok is false when the plan selects nothing.
func (s RowSelection) Span() (start, end int64, ok bool) {
	var pos int64
	start = -1
	for _, r := range s {
		if !r.Skip && r.Count > 0 {
			if start < 0 {
				start = pos
			}
			end = pos + r.Count
		}
		pos += r.Count
	}
	if start < 0 {
		return 0, 0, false
	}
	return start, end, true
}
