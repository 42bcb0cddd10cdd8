package notebook

import (
	"fmt"

	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
)

// Merge copies the outputs and execution count of the executed fragment's
// last cell into cell targetIndex of a copy of original. Every other field
// of original, including unrelated cells' stored outputs, passes through
// unchanged. Pure: neither argument is mutated.
func Merge(original, fragment *Document, targetIndex int) (*Document, error) {
	if targetIndex < 0 || targetIndex >= len(original.Cells) {
		return nil, fmt.Errorf("%w: %d (document has %d cells)",
			sdkerrors.ErrInvalidCellIndex, targetIndex, len(original.Cells))
	}
	if len(fragment.Cells) == 0 {
		return nil, fmt.Errorf("executed fragment has no cells")
	}

	executed := fragment.Cells[len(fragment.Cells)-1].Clone()

	merged := original.Clone()
	merged.Cells[targetIndex].Outputs = executed.Outputs
	merged.Cells[targetIndex].ExecutionCount = executed.ExecutionCount
	return merged, nil
}
