// Package query serves one-shot and subscription queries over the summary
// read model.
package query

import "github.com/ripkitten-co/giftcard/readmodel"

// Query is a read request. The set of implementations is closed.
type Query interface {
	isQuery()
}

// Fetch returns summaries matching Filter ordered by id, paginated.
type Fetch struct {
	Filter readmodel.Filter `json:"filter"`
	Offset int              `json:"offset"`
	Limit  int              `json:"limit"`
}

// Count returns how many summaries match Filter.
type Count struct {
	Filter readmodel.Filter `json:"filter"`
}

func (Fetch) isQuery() {}
func (Count) isQuery() {}
