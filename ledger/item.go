package ledger

import (
	"errors"
)

var ErrInvalidCopyCounts = errors.New("available copies must be between zero and total copies")

// Item is a catalog entry with a finite copy count.
//
// AvailableCopies is only ever mutated through a conditional write keyed on
// Version; TotalCopies is immutable after creation. The invariant
// 0 <= AvailableCopies <= TotalCopies holds for every persisted row.
type Item struct {
	ID              int64
	Title           string
	Author          string
	ISBN            string
	Genre           string
	TotalCopies     int
	AvailableCopies int
	Version         uint64
}

// BuildItem is a factory method for a new Item with all copies available.
// Returns an error for a negative total copy count.
func BuildItem(title string, author string, isbn string, genre string, totalCopies int) (Item, error) {
	if totalCopies < 0 {
		return Item{}, ErrInvalidCopyCounts
	}

	return Item{
		Title:           title,
		Author:          author,
		ISBN:            isbn,
		Genre:           genre,
		TotalCopies:     totalCopies,
		AvailableCopies: totalCopies,
	}, nil
}

// ValidateCopyCounts reports whether the item's copy counts satisfy the
// ledger invariant.
func (i Item) ValidateCopyCounts() error {
	if i.AvailableCopies < 0 || i.AvailableCopies > i.TotalCopies {
		return ErrInvalidCopyCounts
	}

	return nil
}
