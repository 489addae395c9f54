package mcpservice

import "strconv"

// Page is one slice of a listing. NextCursor is nil on the last page.
type Page[T any] struct {
	Items      []T
	NextCursor *string
}

// paginate cuts the page that starts at the offset carried by cursor. Cursors
// are decimal offsets; anything unparseable or out of range restarts the
// listing from the beginning.
func paginate[T any](all []T, size int, cursor *string) Page[T] {
	start := 0
	if cursor != nil {
		if n, err := strconv.Atoi(*cursor); err == nil && n >= 0 && n <= len(all) {
			start = n
		}
	}
	end := len(all)
	if size > 0 && start+size < end {
		end = start + size
	}
	p := Page[T]{Items: append(make([]T, 0, end-start), all[start:end]...)}
	if end < len(all) {
		next := strconv.Itoa(end)
		p.NextCursor = &next
	}
	return p
}
