package plan

import (
	"fmt"
)

// CollectionNode reads a collection
type CollectionNode struct {
	// Name is empty when the connection default applies.
	Name string
}

func (n *CollectionNode) Children() []Node {
	return nil
}

func (n *CollectionNode) Explain() string {
	name := n.Name
	if name == "" {
		name = "<default>"
	}
	return fmt.Sprintf("Collection(name: %s)", name)
}
