package report

import (
	"time"

	"github.com/tonylturner/tlvscope/internal/dissector"
	"github.com/tonylturner/tlvscope/internal/engine"
	"github.com/tonylturner/tlvscope/internal/field"
)

func sampleResult(number int, data []byte, withExpert bool) engine.Result {
	root := field.NewTree("frame", "Frame", field.Range{Start: 0, Length: len(data)})
	root.Add(field.Field{Label: "Frame Number", Kind: field.KindUint, Value: uint64(number), Display: "1"})
	demo := root.AddTree("demo", "Demo Protocol", field.Range{Start: 0, Length: len(data)})
	demo.Add(field.Field{
		Label:   "Type",
		Kind:    field.KindUint,
		Range:   field.Range{Start: 0, Length: 1},
		Value:   uint64(data[0]),
		Display: "Hello (1)",
	})
	if withExpert {
		demo.AddExpert(field.Expert{
			Reason:   field.ReasonLengthMismatch,
			Severity: field.SeverityWarn,
			Offset:   1,
			Message:  "declared 9 bytes",
		})
	}
	root.Freeze()
	return engine.Result{
		Frame: dissector.Frame{
			Number:    number,
			Timestamp: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
			LinkType:  1,
			Data:      data,
		},
		Tree:        root,
		Protocol:    "DEMO",
		Info:        "Hello",
		Diagnostics: root.Experts(),
	}
}
