package plan

import (
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// ProjectNode reshapes documents with a projection
type ProjectNode struct {
	Input      Node
	Projection bson.D
}

func (n *ProjectNode) Children() []Node {
	return []Node{n.Input}
}

func (n *ProjectNode) Explain() string {
	return "Project(projection: " + compact(n.Projection) + ")"
}

// SortNode orders documents
type SortNode struct {
	Input Node
	Sort  bson.D
}

func (n *SortNode) Children() []Node {
	return []Node{n.Input}
}

func (n *SortNode) Explain() string {
	return "Sort(keys: " + compact(n.Sort) + ")"
}

// SkipNode drops the first N documents
type SkipNode struct {
	Input Node
	N     int64
}

func (n *SkipNode) Children() []Node {
	return []Node{n.Input}
}

func (n *SkipNode) Explain() string {
	return fmt.Sprintf("Skip(n: %d)", n.N)
}

// LimitNode stops after N documents
type LimitNode struct {
	Input Node
	N     int64
}

func (n *LimitNode) Children() []Node {
	return []Node{n.Input}
}

func (n *LimitNode) Explain() string {
	return fmt.Sprintf("Limit(n: %d)", n.N)
}

// FindNode is the root of a find command
type FindNode struct {
	Input     Node
	BatchSize *int32
}

func (n *FindNode) Children() []Node {
	return []Node{n.Input}
}

func (n *FindNode) Explain() string {
	if n.BatchSize != nil {
		return fmt.Sprintf("Find(batchSize: %d)", *n.BatchSize)
	}
	return "Find"
}
