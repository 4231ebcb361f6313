package parser

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTranslateConditions(t *testing.T) {
	cases := []struct {
		name string
		tree ConditionTree
		want string
	}{
		{
			name: "empty tree",
			tree: ConditionTree{},
			want: "",
		},
		{
			name: "single string predicate",
			tree: ConditionTree{Conditions: []Condition{{Key: "status", Value: "done", Condition: "equal"}}},
			want: `status == "done"`,
		},
		{
			name: "and keeps order",
			tree: ConditionTree{
				Conditions: []Condition{
					{Key: "b", Value: 2, Condition: "less"},
					{Key: "a", Value: 1, Condition: "greater_equal"},
				},
				ConditionRelation: "AND",
			},
			want: "b < 2 && a >= 1",
		},
		{
			name: "or joins every pair",
			tree: ConditionTree{
				Conditions: []Condition{
					{Key: "x", Value: 1, Condition: "equal"},
					{Key: "y", Value: 2, Condition: "not_equal"},
					{Key: "z", Value: 3, Condition: "less_equal"},
				},
				ConditionRelation: "or",
			},
			want: "x == 1 || y != 2 || z <= 3",
		},
		{
			name: "nested path and quoted key",
			tree: ConditionTree{
				Conditions: []Condition{
					{Key: "order.amount", Value: 10.5, Condition: "greater"},
					{Key: "first-name", Value: "ann", Condition: "contains"},
				},
			},
			want: `order.amount > 10.5 && String($["first-name"]).indexOf("ann") >= 0`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := TranslateConditions(tc.tree)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestTranslateConditionsRejectsUnknownRelation(t *testing.T) {
	_, err := TranslateConditions(ConditionTree{
		Conditions:        []Condition{{Key: "a", Value: 1, Condition: "equal"}},
		ConditionRelation: "xor",
	})
	require.Error(t, err)
}
