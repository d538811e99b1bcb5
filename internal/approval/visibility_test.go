package approval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasNodePermission(t *testing.T) {
	salesNode := Node{Step: 1, Type: NodeTypeRole, TargetID: "sales_manager"}
	financeNode := Node{Step: 2, Type: NodeTypeRole, TargetID: "finance"}
	userNode := Node{Step: 1, Type: NodeTypeUser, TargetID: "u-1"}
	deptNode := Node{Step: 1, Type: NodeTypeDepartment, TargetID: "dept-7"}

	sales := User{ID: "u-1", Username: "sales1", RoleCodes: []string{"sales_manager"}}
	admin := User{ID: "u-2", Username: "ops", RoleCodes: []string{"admin"}}
	adminByName := User{ID: "u-3", Username: "admin"}

	t.Run("role match", func(t *testing.T) {
		assert.True(t, HasNodePermission(salesNode, sales))
	})

	t.Run("role mismatch", func(t *testing.T) {
		assert.False(t, HasNodePermission(financeNode, sales))
	})

	t.Run("admin role overrides any target", func(t *testing.T) {
		assert.True(t, HasNodePermission(financeNode, admin))
		assert.True(t, HasNodePermission(userNode, admin))
	})

	t.Run("admin username overrides any target", func(t *testing.T) {
		assert.True(t, HasNodePermission(financeNode, adminByName))
	})

	t.Run("user node matches only the exact user", func(t *testing.T) {
		assert.True(t, HasNodePermission(userNode, User{ID: "u-1"}))
		assert.False(t, HasNodePermission(userNode, User{ID: "u-9"}))
	})

	t.Run("department node needs membership and a managing role", func(t *testing.T) {
		head := User{ID: "u-4", DeptID: "dept-7", RoleCodes: []string{"dept_manager"}}
		member := User{ID: "u-5", DeptID: "dept-7", RoleCodes: []string{"technician"}}
		outsider := User{ID: "u-6", DeptID: "dept-9", RoleCodes: []string{"dept_manager"}}

		assert.True(t, HasNodePermission(deptNode, head))
		assert.False(t, HasNodePermission(deptNode, member))
		assert.False(t, HasNodePermission(deptNode, outsider))
	})

	t.Run("unknown node type denied", func(t *testing.T) {
		assert.False(t, HasNodePermission(Node{Type: "group", TargetID: "g-1"}, sales))
	})
}

func TestCanView(t *testing.T) {
	nodes := []Node{
		{Step: 1, Type: NodeTypeRole, TargetID: "sales_manager"},
		{Step: 2, Type: NodeTypeRole, TargetID: "finance"},
	}
	sales := User{ID: "u-1", RoleCodes: []string{"sales_manager"}}
	finance := User{ID: "u-2", RoleCodes: []string{"finance"}}
	admin := User{ID: "u-3", RoleCodes: []string{"admin"}}

	t.Run("current step approver sees the instance", func(t *testing.T) {
		assert.True(t, CanView(StatusPending, 1, nodes, sales))
		assert.False(t, CanView(StatusPending, 1, nodes, finance))
	})

	t.Run("filter follows the current step", func(t *testing.T) {
		assert.False(t, CanView(StatusPending, 2, nodes, sales))
		assert.True(t, CanView(StatusPending, 2, nodes, finance))
	})

	t.Run("admin sees everything", func(t *testing.T) {
		assert.True(t, CanView(StatusPending, 1, nodes, admin))
		assert.True(t, CanView(StatusApproved, 2, nodes, admin))
	})

	t.Run("missing node denies", func(t *testing.T) {
		assert.False(t, CanView(StatusPending, 5, nodes, sales))
		assert.False(t, CanView(StatusPending, 1, nil, sales))
	})

	t.Run("terminal instances are not dashboard items", func(t *testing.T) {
		assert.False(t, CanView(StatusApproved, 2, nodes, finance))
		assert.False(t, CanView(StatusRejected, 1, nodes, sales))
	})
}

func TestNodesForFlow(t *testing.T) {
	nodes := []Node{{Step: 1, Type: NodeTypeRole, TargetID: "finance"}}
	byFlow := map[string][]Node{"QUOTATION_APPROVAL": nodes}

	assert.Equal(t, nodes, NodesForFlow(byFlow, "QUOTATION_APPROVAL"))
	assert.Equal(t, nodes, NodesForFlow(byFlow, "quotation_approval"))
	assert.Nil(t, NodesForFlow(byFlow, "CONTRACT_APPROVAL"))

	lower := map[string][]Node{"contract_approval": nodes}
	assert.Equal(t, nodes, NodesForFlow(lower, "CONTRACT_APPROVAL"))
}
