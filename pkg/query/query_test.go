package query_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor/pkg/core"
	"github.com/aretw0/arbor/pkg/query"
)

func TestFilter(t *testing.T) {
	now := time.Now()
	plan := core.NewLeaf("o", "Project plan", nil, "ship it")
	plan.ID, plan.UpdatedAt, plan.Tags = "1", now, []string{"work"}
	old := core.NewLeaf("o", "old plan", nil, "")
	old.ID, old.UpdatedAt = "2", now.Add(-30*24*time.Hour)
	dir := core.NewFolder("o", "plans", nil)
	dir.ID, dir.UpdatedAt = "3", now
	nodes := []core.Node{plan, old, dir}

	tests := []struct {
		expr string
		want []string
	}{
		{`!isFolder`, []string{"1", "2"}},
		{`name contains "plan" && ageDays < 7`, []string{"1", "3"}},
		{`"work" in tags`, []string{"1"}},
		{`content startsWith "ship"`, []string{"1"}},
		{`root && isFolder`, []string{"3"}},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			f, err := query.Compile(tt.expr)
			require.NoError(t, err)
			got, err := f.Apply(nodes)
			require.NoError(t, err)
			var ids []string
			for _, n := range got {
				ids = append(ids, n.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestCompileErrors(t *testing.T) {
	_, err := query.Compile("  ")
	assert.Error(t, err)

	_, err = query.Compile("name ==")
	assert.Error(t, err)
}
