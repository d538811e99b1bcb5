package approval

import "strings"

// User is the resolved actor shape supplied by the identity layer. The
// engine and the visibility rules treat it as opaque input.
type User struct {
	ID        string
	Username  string
	Name      string
	RoleCodes []string
	DeptID    string
}

// HasRole reports whether the user holds a role code.
func (u User) HasRole(code string) bool {
	for _, c := range u.RoleCodes {
		if c == code {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the user is exempt from node targeting.
func (u User) IsAdmin() bool {
	return u.Username == "admin" || u.HasRole("admin")
}

// Roles that qualify a department member as its responsible manager.
var departmentManagerRoles = map[string]bool{
	"admin":         true,
	"manager":       true,
	"dept_manager":  true,
	"sales_manager": true,
	"lab_director":  true,
}

// HasNodePermission reports whether a user may act on a node. Admins always
// may; otherwise the node's type decides: role membership, exact user id, or
// department membership plus a managing role.
func HasNodePermission(node Node, user User) bool {
	if user.IsAdmin() {
		return true
	}

	switch node.Type {
	case NodeTypeRole:
		return user.HasRole(node.TargetID)
	case NodeTypeUser:
		return user.ID == node.TargetID
	case NodeTypeDepartment:
		if user.DeptID != node.TargetID {
			return false
		}
		for _, code := range user.RoleCodes {
			if departmentManagerRoles[code] {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// CanView reports whether a user may see an instance on their dashboard.
// Pending instances are visible only to the current step's approver (and
// admins); terminal instances are not listed here at all — completed work
// is reached through the owning document.
func CanView(status Status, currentStep int, nodes []Node, user User) bool {
	if user.IsAdmin() {
		return true
	}

	if status == StatusPending {
		node, ok := NodeAt(nodes, currentStep)
		if !ok {
			return false
		}
		return HasNodePermission(node, user)
	}

	return false
}

// NodesForFlow looks up a flow's nodes by code, falling back to upper- and
// lower-case variants. Stored instances and stored flows disagree on code
// casing in legacy data.
func NodesForFlow(nodesByFlow map[string][]Node, code string) []Node {
	if nodes, ok := nodesByFlow[code]; ok {
		return nodes
	}
	if nodes, ok := nodesByFlow[strings.ToUpper(code)]; ok {
		return nodes
	}
	if nodes, ok := nodesByFlow[strings.ToLower(code)]; ok {
		return nodes
	}
	return nil
}
