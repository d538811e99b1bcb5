package approval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractApproverName(t *testing.T) {
	tests := []struct {
		name string
		node Node
		want string
	}{
		{
			name: "target name with phone suffix",
			node: Node{TargetName: "张馨 (15952575002)"},
			want: "张馨",
		},
		{
			name: "target name without phone suffix",
			node: Node{TargetName: "李雷"},
			want: "李雷",
		},
		{
			name: "target name wins over every other field",
			node: Node{
				TargetName:   "张馨 (15952575002)",
				ApproverName: "someone else",
				Name:         "业务负责人",
			},
			want: "张馨",
		},
		{
			name: "approver name",
			node: Node{ApproverName: "王芳"},
			want: "王芳",
		},
		{
			name: "user name",
			node: Node{UserName: "赵强"},
			want: "赵强",
		},
		{
			name: "assignee name",
			node: Node{AssigneeName: "钱montero"},
			want: "钱montero",
		},
		{
			name: "first of assignee names",
			node: Node{AssigneeNames: []string{"孙丽", "周平"}},
			want: "孙丽",
		},
		{
			name: "targets array target name with phone",
			node: Node{Targets: []NodeTarget{{TargetName: "吴超 (13800138000)"}}},
			want: "吴超",
		},
		{
			name: "targets array falls back to name",
			node: Node{Targets: []NodeTarget{{Name: "财务主管"}}},
			want: "财务主管",
		},
		{
			name: "empty targets entry falls through to node name",
			node: Node{Targets: []NodeTarget{{}}, Name: "业务负责人"},
			want: "业务负责人",
		},
		{
			name: "node name as last resort",
			node: Node{Name: "业务负责人"},
			want: "业务负责人",
		},
		{
			name: "approver name wins over user name",
			node: Node{ApproverName: "甲", UserName: "乙"},
			want: "甲",
		},
		{
			name: "assignee name wins over assignee names list",
			node: Node{AssigneeName: "甲", AssigneeNames: []string{"乙"}},
			want: "甲",
		},
		{
			name: "nothing resolves",
			node: Node{},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractApproverName(tt.node))
		})
	}
}

func TestParseNodes(t *testing.T) {
	t.Run("standard shape", func(t *testing.T) {
		raw := []byte(`[
			{"step":1,"type":"role","targetId":"sales_manager","name":"业务负责人"},
			{"step":2,"type":"role","targetId":"finance","name":"财务审核"},
			{"step":3,"type":"user","targetId":"u-9","targetName":"张馨 (15952575002)","name":"实验室主任"}
		]`)

		nodes, err := ParseNodes(raw)
		require.NoError(t, err)
		require.Len(t, nodes, 3)
		assert.Equal(t, 1, nodes[0].Step)
		assert.Equal(t, NodeTypeRole, nodes[0].Type)
		assert.Equal(t, "u-9", nodes[2].TargetID)
	})

	t.Run("legacy order field", func(t *testing.T) {
		raw := []byte(`[{"order":2,"type":"role","targetId":"b"},{"order":1,"type":"role","targetId":"a"}]`)

		nodes, err := ParseNodes(raw)
		require.NoError(t, err)
		require.Len(t, nodes, 2)
		assert.Equal(t, "a", nodes[0].TargetID)
		assert.Equal(t, 1, nodes[0].Step)
		assert.Equal(t, "b", nodes[1].TargetID)
	})

	t.Run("missing step numbers default to position", func(t *testing.T) {
		raw := []byte(`[{"type":"role","targetId":"a"},{"type":"role","targetId":"b"}]`)

		nodes, err := ParseNodes(raw)
		require.NoError(t, err)
		assert.Equal(t, 1, nodes[0].Step)
		assert.Equal(t, 2, nodes[1].Step)
	})

	t.Run("duplicate steps rejected", func(t *testing.T) {
		raw := []byte(`[{"step":1,"type":"role","targetId":"a"},{"step":1,"type":"role","targetId":"b"}]`)

		_, err := ParseNodes(raw)
		require.Error(t, err)
	})

	t.Run("gap in steps rejected", func(t *testing.T) {
		raw := []byte(`[{"step":1,"type":"role","targetId":"a"},{"step":3,"type":"role","targetId":"b"}]`)

		_, err := ParseNodes(raw)
		require.Error(t, err)
	})

	t.Run("malformed json rejected", func(t *testing.T) {
		_, err := ParseNodes([]byte(`{"not":"an array"}`))
		require.Error(t, err)
	})

	t.Run("empty input", func(t *testing.T) {
		nodes, err := ParseNodes(nil)
		require.NoError(t, err)
		assert.Empty(t, nodes)
	})
}

func TestNodeAt(t *testing.T) {
	nodes := []Node{{Step: 1, TargetID: "a"}, {Step: 2, TargetID: "b"}}

	node, ok := NodeAt(nodes, 2)
	require.True(t, ok)
	assert.Equal(t, "b", node.TargetID)

	_, ok = NodeAt(nodes, 3)
	assert.False(t, ok)
}

func TestFormatNodes(t *testing.T) {
	nodes := []Node{
		{Step: 1, Name: "业务负责人", TargetName: "张馨 (15952575002)"},
		{Step: 2},
	}

	views := FormatNodes(nodes)
	require.Len(t, views, 2)
	assert.Equal(t, NodeView{Step: 1, Name: "业务负责人", Role: "张馨"}, views[0])
	assert.Equal(t, NodeView{Step: 2, Name: "审批节点2", Role: "审批人"}, views[1])
}
