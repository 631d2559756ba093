package planner_test

import (
	"testing"

	"github.com/bisegni/docsql/pkg/engine"
	"github.com/bisegni/docsql/pkg/plan"
	"github.com/bisegni/docsql/pkg/planner"
)

func TestCreatePlan(t *testing.T) {
	tests := []struct {
		name     string
		command  string
		expected string
	}{
		{
			name:    "Empty command",
			command: ``,
			expected: "" +
				"└─ Find\n" +
				"   └─ Filter(filter: {})\n" +
				"      └─ Collection(name: <default>)\n",
		},
		{
			name:    "Find with modifiers",
			command: `{"find": "people", "filter": {"age": {"$gt": 30}}, "limit": 5, "projection": {"name": 1}, "sort": {"age": -1}, "skip": 2, "batchSize": 10}`,
			expected: "" +
				"└─ Find(batchSize: 10)\n" +
				"   └─ Project(projection: {\"name\":1})\n" +
				"      └─ Limit(n: 5)\n" +
				"         └─ Skip(n: 2)\n" +
				"            └─ Sort(keys: {\"age\":-1})\n" +
				"               └─ Filter(filter: {\"age\":{\"$gt\":30}})\n" +
				"                  └─ Collection(name: people)\n",
		},
		{
			name:    "Null filter",
			command: `{"find": "people", "filter": null}`,
			expected: "" +
				"└─ Find\n" +
				"   └─ Filter(filter: null)\n" +
				"      └─ Collection(name: people)\n",
		},
		{
			name:    "Aggregate",
			command: `{"find": "sales", "aggreg": [{"$match": {"qty": {"$gt": 0}}}, {"$group": {"_id": "$item"}}, {"$limit": 3}]}`,
			expected: "" +
				"└─ Aggregate(stages: 3, allowDiskUse: true)\n" +
				"   └─ Stage($limit: 3)\n" +
				"      └─ Stage($group: {\"_id\":\"$item\"})\n" +
				"         └─ Stage($match: {\"qty\":{\"$gt\":0}})\n" +
				"            └─ Collection(name: sales)\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := engine.ParseCommand(tt.command)
			if err != nil {
				t.Fatalf("ParseCommand failed: %v", err)
			}
			got := plan.FormatPlan(planner.CreatePlan(cmd))
			if got != tt.expected {
				t.Errorf("plan mismatch\n got:\n%s\nwant:\n%s", got, tt.expected)
			}
		})
	}
}
