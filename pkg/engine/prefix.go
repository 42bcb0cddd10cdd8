package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/notebook"
)

// RunSingleCell executes cell targetIndex of doc by replaying the prefix
// [0..targetIndex] in one fresh session, reconstructing the interpreter state
// the cell depends on. Only the target cell's resulting outputs and execution
// count are merged into a copy of doc; every other cell, including its stored
// outputs, passes through byte-identical.
//
// Every call pays the full cost of re-executing the prefix from scratch: no
// session state is cached between calls, trading startup work for faithful
// state reconstruction.
//
// An index outside [0, len(cells)) fails with ErrInvalidCellIndex and doc is
// untouched. A startup failure propagates with doc untouched. A budget
// exhausted mid-replay leaves the target cell unexecuted in the merged
// result (degraded success).
func (e *Engine) RunSingleCell(ctx context.Context, doc *notebook.Document, targetIndex int, budget time.Duration) (*notebook.Document, *notebook.Cell, error) {
	if targetIndex < 0 || targetIndex >= len(doc.Cells) {
		return nil, nil, fmt.Errorf("%w: %d (document has %d cells)",
			sdkerrors.ErrInvalidCellIndex, targetIndex, len(doc.Cells))
	}

	// Ephemeral prefix document: same metadata, prior outputs discarded.
	ephemeral := &notebook.Document{
		Metadata:      append(json.RawMessage(nil), doc.Metadata...),
		NBFormat:      doc.NBFormat,
		NBFormatMinor: doc.NBFormatMinor,
		Cells:         make([]notebook.Cell, 0, targetIndex+1),
	}
	for i := 0; i <= targetIndex; i++ {
		ephemeral.Cells = append(ephemeral.Cells, doc.Cells[i].Clone())
	}
	clearCodeOutputs(ephemeral)

	executed, err := e.Execute(ctx, ephemeral, budget)
	if err != nil {
		return nil, nil, err
	}

	merged, err := notebook.Merge(doc, executed, targetIndex)
	if err != nil {
		return nil, nil, err
	}

	cell := merged.Cells[targetIndex].Clone()
	return merged, &cell, nil
}
