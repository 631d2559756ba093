package plan

import (
	"go.mongodb.org/mongo-driver/v2/bson"
)

// FilterNode keeps the documents matching a query filter
type FilterNode struct {
	Input  Node
	Filter bson.D
}

func (n *FilterNode) Children() []Node {
	return []Node{n.Input}
}

func (n *FilterNode) Explain() string {
	if n.Filter == nil {
		return "Filter(filter: null)"
	}
	return "Filter(filter: " + compact(n.Filter) + ")"
}
