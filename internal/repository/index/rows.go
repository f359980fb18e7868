package index

import (
	domdoc "github.com/kailas-cloud/jsonstore/internal/domain/document"
	"github.com/kailas-cloud/jsonstore/internal/domain/flatten"
	"github.com/kailas-cloud/jsonstore/internal/domain/search/operator"
)

// row is one flattened leaf as stored in the flat table.
type row struct {
	path string
	kind string
	leaf any
	text string
}

// rowsFor flattens the indexed form of e, timestamp included.
func rowsFor(e *domdoc.Entry) []row {
	var rows []row
	for p := range flatten.Flatten(e.Indexed()) {
		kind, val, ok := kindOf(p.Leaf)
		if !ok {
			continue
		}
		text, _ := operator.StringForm(p.Leaf)
		rows = append(rows, row{path: p.Path, kind: kind, leaf: val, text: text})
	}
	return rows
}
