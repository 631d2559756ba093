// Package planner turns a validated command into an explain plan.
package planner

import (
	"github.com/bisegni/docsql/pkg/engine"
	"github.com/bisegni/docsql/pkg/plan"
)

// CreatePlan converts a command into a plan tree. Find modifiers are applied
// in the order the server applies them: filter, sort, skip, limit, then
// projection.
func CreatePlan(cmd *engine.Command) plan.Node {
	var current plan.Node = &plan.CollectionNode{Name: cmd.Collection}

	if cmd.Kind == engine.KindAggregate {
		for _, stage := range cmd.Pipeline {
			for _, e := range stage {
				current = &plan.StageNode{Input: current, Name: e.Key, Spec: e.Value}
			}
		}
		return &plan.AggregateNode{Input: current, Stages: len(cmd.Pipeline), BatchSize: cmd.BatchSize}
	}

	current = &plan.FilterNode{Input: current, Filter: cmd.Filter}
	if len(cmd.Sort) > 0 {
		current = &plan.SortNode{Input: current, Sort: cmd.Sort}
	}
	if cmd.Skip != nil {
		current = &plan.SkipNode{Input: current, N: *cmd.Skip}
	}
	if cmd.Limit != nil {
		current = &plan.LimitNode{Input: current, N: *cmd.Limit}
	}
	if len(cmd.Projection) > 0 {
		current = &plan.ProjectNode{Input: current, Projection: cmd.Projection}
	}
	return &plan.FindNode{Input: current, BatchSize: cmd.BatchSize}
}
