package lob

import (
	"fmt"

	"github.com/quantech-io/tickcore/pkg/fixed"
)

// CrossedBookError reports that an update would leave best bid >= best ask.
// Under CrossReject the book is unchanged when this is returned.
type CrossedBookError struct {
	Bid fixed.Px
	Ask fixed.Px
}

func (e *CrossedBookError) Error() string {
	return fmt.Sprintf("crossed book: bid=%s >= ask=%s", e.Bid, e.Ask)
}

// InvalidLevelError reports a level index outside the book depth.
type InvalidLevelError struct {
	Level int
}

func (e *InvalidLevelError) Error() string {
	return fmt.Sprintf("invalid level: %d >= %d", e.Level, Depth)
}
