package models

import "math"

// PageRequest selects a 1-based page of a fixed size.
type PageRequest struct {
	Page int
	Size int
}

// Offset saturates at math.MaxInt instead of wrapping.
func (r PageRequest) Offset() int {
	if r.Page < 1 || r.Size < 1 {
		return 0
	}
	if r.Page-1 > math.MaxInt/r.Size {
		return math.MaxInt
	}
	return (r.Page - 1) * r.Size
}

// Normalize fills in defaults and caps the size, and the page so that its
// offset fits in an int.
func (r PageRequest) Normalize(defaultSize, maxSize int) PageRequest {
	if r.Page < 1 {
		r.Page = 1
	}
	if r.Size < 1 {
		r.Size = defaultSize
	}
	if maxSize > 0 && r.Size > maxSize {
		r.Size = maxSize
	}
	if maxPage := math.MaxInt / r.Size; r.Page > maxPage {
		r.Page = maxPage
	}
	return r
}

type Page[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Size  int   `json:"size"`
}

// Slice pages an already filtered, ordered slice.
func Slice[T any](all []T, r PageRequest) Page[T] {
	p := Page[T]{Items: []T{}, Total: int64(len(all)), Page: r.Page, Size: r.Size}
	start := r.Offset()
	if start < 0 || start >= len(all) || r.Size < 1 {
		return p
	}
	end := len(all)
	if r.Size < end-start {
		end = start + r.Size
	}
	p.Items = append(p.Items, all[start:end]...)
	return p
}
