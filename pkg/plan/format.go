package plan

import (
	"strings"
)

// FormatPlan draws the plan tree, root first, one node per line
func FormatPlan(n Node) string {
	var sb strings.Builder
	formatRecursive(n, "", true, &sb)
	return sb.String()
}

func formatRecursive(n Node, prefix string, last bool, sb *strings.Builder) {
	sb.WriteString(prefix)
	if last {
		sb.WriteString("└─ ")
		prefix += "   "
	} else {
		sb.WriteString("├─ ")
		prefix += "│  "
	}
	sb.WriteString(n.Explain())
	sb.WriteString("\n")

	children := n.Children()
	for i, child := range children {
		formatRecursive(child, prefix, i == len(children)-1, sb)
	}
}
