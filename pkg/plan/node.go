// Package plan describes how a command document will run, as a tree of
// nodes printed by the explain commands. Nodes are descriptive only; the
// store executes the command.
package plan

import (
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Node represents a step in the plan of a command
type Node interface {
	Children() []Node
	Explain() string
}

// compact renders v as relaxed Extended JSON on one line.
func compact(v any) string {
	out, err := bson.MarshalExtJSON(bson.D{{Key: "v", Value: v}}, false, false)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	s := string(out)
	return s[len(`{"v":`) : len(s)-1]
}
