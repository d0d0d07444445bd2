package types

import (
	"strconv"

	"github.com/samber/lo"
)

const (
	DefaultPageSize       = 5
	MaxPageSize           = 100
	DefaultAuthorPageSize = 20
	MaxAuthorPageSize     = 10000
)

// Page is a 1-based page request.
type Page struct {
	Number int
	Size   int
}

// NewPage parses page/size query values, falling back to def and clamping to max.
func NewPage(page, size string, def, max int) Page {
	p := Page{Number: 1, Size: def}
	if n, err := strconv.Atoi(page); err == nil && n > 0 {
		p.Number = n
	}
	if n, err := strconv.Atoi(size); err == nil && n > 0 {
		p.Size = n
	}
	if p.Size > max {
		p.Size = max
	}
	return p
}

func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

// Paginate slices an in-memory list.
func Paginate[T any](items []T, p Page) []T {
	if p.Size <= 0 {
		return items
	}
	return lo.Slice(items, p.Offset(), p.Offset()+p.Size)
}
