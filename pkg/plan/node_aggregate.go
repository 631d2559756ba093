package plan

import (
	"fmt"
)

// StageNode is one aggregation pipeline stage
type StageNode struct {
	Input Node
	Name  string
	Spec  any
}

func (n *StageNode) Children() []Node {
	return []Node{n.Input}
}

func (n *StageNode) Explain() string {
	return fmt.Sprintf("Stage(%s: %s)", n.Name, compact(n.Spec))
}

// AggregateNode is the root of an aggreg command
type AggregateNode struct {
	Input     Node
	Stages    int
	BatchSize *int32
}

func (n *AggregateNode) Children() []Node {
	return []Node{n.Input}
}

func (n *AggregateNode) Explain() string {
	s := fmt.Sprintf("Aggregate(stages: %d, allowDiskUse: true", n.Stages)
	if n.BatchSize != nil {
		s += fmt.Sprintf(", batchSize: %d", *n.BatchSize)
	}
	return s + ")"
}
