package approval

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/limspace/be-lims-approvals/internal/apperrors"
)

// NodeType discriminates who must act at a flow position.
type NodeType string

const (
	NodeTypeRole       NodeType = "role"
	NodeTypeUser       NodeType = "user"
	NodeTypeDepartment NodeType = "department"
)

// NodeTarget is an entry in the legacy targets array some stored flows carry.
type NodeTarget struct {
	TargetID   string `json:"targetId,omitempty"`
	TargetName string `json:"targetName,omitempty"`
	Name       string `json:"name,omitempty"`
}

// Node is one position in an approval flow. Flow node data has gone through
// several incompatible shapes over the system's life, so the struct keeps the
// legacy fields alongside the current ones and the accessors paper over the
// differences.
type Node struct {
	Step       int      `json:"step"`
	Order      int      `json:"order,omitempty"` // legacy alias for Step
	Name       string   `json:"name"`
	Type       NodeType `json:"type"`
	TargetID   string   `json:"targetId"`
	TargetName string   `json:"targetName"`
	Required   bool     `json:"required,omitempty"`

	// Legacy approver-name fields, oldest last.
	ApproverName  string       `json:"approverName,omitempty"`
	UserName      string       `json:"userName,omitempty"`
	AssigneeName  string       `json:"assigneeName,omitempty"`
	AssigneeNames []string     `json:"assigneeNames,omitempty"`
	Targets       []NodeTarget `json:"targets,omitempty"`
}

// ParseNodes deserializes a stored node list, normalizes step numbers
// (step, then the legacy order field, then the array position) and validates
// that steps are unique and contiguous from 1. The stored shape is never
// trusted as-is.
func ParseNodes(raw []byte) ([]Node, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var nodes []Node
	if err := json.Unmarshal(raw, &nodes); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInvalidInput, "malformed approval flow nodes")
	}

	for i := range nodes {
		if nodes[i].Step == 0 {
			nodes[i].Step = nodes[i].Order
		}
		if nodes[i].Step == 0 {
			nodes[i].Step = i + 1
		}
	}

	sort.SliceStable(nodes, func(i, j int) bool { return nodes[i].Step < nodes[j].Step })

	for i, n := range nodes {
		if n.Step != i+1 {
			return nil, apperrors.New(apperrors.CodeInvalidInput,
				fmt.Sprintf("approval flow steps must be unique and contiguous from 1, got step %d at position %d", n.Step, i+1))
		}
	}

	return nodes, nil
}

// MarshalNodes serializes a node list for storage.
func MarshalNodes(nodes []Node) ([]byte, error) {
	if nodes == nil {
		nodes = []Node{}
	}
	return json.Marshal(nodes)
}

// NodeAt returns the node for a 1-based step.
func NodeAt(nodes []Node, step int) (Node, bool) {
	for _, n := range nodes {
		if n.Step == step {
			return n, true
		}
	}
	return Node{}, false
}

// ExtractApproverName resolves a display name for a node's approver through
// an ordered fallback chain. Each tier exists to cover a legacy data shape
// the earlier tiers cannot parse; the order is load-bearing and must not be
// collapsed into "first non-empty field". Returns "" when nothing resolves.
func ExtractApproverName(node Node) string {
	// Standard format: "张馨 (15952575002)" — name plus contact phone.
	if node.TargetName != "" {
		return stripPhoneSuffix(node.TargetName)
	}

	if node.ApproverName != "" {
		return node.ApproverName
	}
	if node.UserName != "" {
		return node.UserName
	}
	if node.AssigneeName != "" {
		return node.AssigneeName
	}
	if len(node.AssigneeNames) > 0 {
		return node.AssigneeNames[0]
	}

	if len(node.Targets) > 0 {
		target := node.Targets[0]
		if target.TargetName != "" {
			return stripPhoneSuffix(target.TargetName)
		}
		if target.Name != "" {
			return target.Name
		}
	}

	// Last resort: the node's own name, typically a role label.
	return node.Name
}

func stripPhoneSuffix(name string) string {
	if i := strings.Index(name, " ("); i >= 0 {
		return name[:i]
	}
	return name
}

// NodeView is the display row dashboards render for one flow position.
type NodeView struct {
	Step int    `json:"step"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// FormatNodes produces display rows, substituting placeholders for nodes
// with no resolvable name.
func FormatNodes(nodes []Node) []NodeView {
	views := make([]NodeView, 0, len(nodes))
	for i, n := range nodes {
		name := n.Name
		if name == "" {
			name = fmt.Sprintf("审批节点%d", i+1)
		}
		role := ExtractApproverName(n)
		if role == "" {
			role = "审批人"
		}
		views = append(views, NodeView{Step: i + 1, Name: name, Role: role})
	}
	return views
}
