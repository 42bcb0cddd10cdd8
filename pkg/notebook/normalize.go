package notebook

import "strings"

// OutputsToText flattens a cell's output records into plain text for
// downstream summarization. Stream text is concatenated in order, errors
// emit "name: message" followed by their traceback lines, and display
// records contribute their text/plain representation when one is present.
// Deterministic and order-preserving.
func OutputsToText(outputs []Output) string {
	var lines []string
	var stream strings.Builder

	// Consecutive stream records form one run of text; the run closes when a
	// non-stream record interrupts it.
	flush := func() {
		if stream.Len() > 0 {
			lines = append(lines, stream.String())
			stream.Reset()
		}
	}

	for _, o := range outputs {
		switch o.Type {
		case OutputTypeStream:
			stream.WriteString(o.Text)

		case OutputTypeError:
			flush()
			lines = append(lines, o.Ename+": "+o.Evalue)
			lines = append(lines, o.Traceback...)

		case OutputTypeDisplayData, OutputTypeExecuteResult:
			flush()
			if text, ok := o.Data.PlainText(); ok {
				lines = append(lines, text)
			}

		default:
			// Unknown record kinds carry nothing textual; skip.
		}
	}
	flush()

	return strings.TrimSpace(strings.Join(lines, "\n"))
}
