package commands

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/rbtree/pkg/rbtree"
)

func TestParseScript(t *testing.T) {
	t.Parallel()

	ops, err := ParseScript(strings.NewReader(`
# comment only
INSERT 1 -2 3
  erase 1   # trailing comment

min
`))
	require.NoError(t, err)

	assert.Equal(t, []ScriptOp{
		{Name: opInsert, Keys: []int64{1, -2, 3}, Line: 3},
		{Name: opErase, Keys: []int64{1}, Line: 4},
		{Name: opMin, Keys: []int64{}, Line: 6},
	}, ops)
}

func TestParseScriptErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		script string
		want   string
	}{
		{"unknown op", "insert 1\npush 2\n", `line 2: unknown operation "push"`},
		{"missing key", "erase\n", "line 1: erase takes 1 key(s), got 0"},
		{"extra key", "find 1 2\n", "line 1: find takes 1 key(s), got 2"},
		{"unexpected key", "min 4\n", "line 1: min takes no keys, got 1"},
		{"insert without keys", "insert\n", "line 1: insert takes at least 1 key(s), got 0"},
		{"bad key", "\n\ninsert 1 two\n", `line 3: invalid key: "two"`},
		{"overflow", "insert 9223372036854775808\n", "line 1: invalid key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := ParseScript(strings.NewReader(tt.script))
			require.ErrorIs(t, err, ErrScriptSyntax)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestExecuteOp(t *testing.T) {
	t.Parallel()

	tree := rbtree.New(rbtree.WithMaxNodes(3))

	run := func(name string, keys ...int64) (string, error) {
		return executeOp(tree, ScriptOp{Name: name, Keys: keys})
	}

	result, err := run(opMin)
	require.NoError(t, err)
	assert.Equal(t, resultEmpty, result)

	result, err = run(opInsert, 4, 4, 1, 9)
	require.ErrorIs(t, err, rbtree.ErrAllocation)
	assert.Equal(t, "inserted 3", result)

	result, err = run(opSorted)
	require.NoError(t, err)
	assert.Equal(t, "1 4 4", result)

	result, err = run(opMax)
	require.NoError(t, err)
	assert.Equal(t, "4", result)

	result, err = run(opErase, 7)
	require.NoError(t, err)
	assert.Equal(t, resultNotFound, result)

	result, err = run(opHeight)
	require.NoError(t, err)
	assert.Equal(t, "2", result)

	result, err = run(opDestroy)
	require.NoError(t, err)
	assert.Equal(t, "released 3", result)

	_, err = run(opSorted)
	require.ErrorIs(t, err, rbtree.ErrEmptyTree)

	result, err = run(opCheck)
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
}

func TestExecuteOpHibernation(t *testing.T) {
	t.Parallel()

	tree := rbtree.New()

	_, err := executeOp(tree, ScriptOp{Name: opInsert, Keys: []int64{1, 2}})
	require.NoError(t, err)

	result, err := executeOp(tree, ScriptOp{Name: opHibernate})
	require.NoError(t, err)
	assert.Contains(t, result, "hibernated to")

	for _, name := range []string{opLen, opFind, opHibernate, opDestroy} {
		_, err = executeOp(tree, ScriptOp{Name: name, Keys: []int64{1}})
		require.ErrorIs(t, err, ErrTreeHibernated, name)
	}

	result, err = executeOp(tree, ScriptOp{Name: opBoot})
	require.NoError(t, err)
	assert.Equal(t, "booted", result)

	result, err = executeOp(tree, ScriptOp{Name: opLen})
	require.NoError(t, err)
	assert.Equal(t, "2", result)
}

func TestReadKeys(t *testing.T) {
	t.Parallel()

	keys, err := readKeys([]string{"3", "-1"}, strings.NewReader("ignored"))
	require.NoError(t, err)
	assert.Equal(t, []int64{3, -1}, keys)

	keys, err = readKeys(nil, strings.NewReader(" 10\n\t20  30\n"))
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 20, 30}, keys)

	_, err = readKeys(nil, strings.NewReader("1 2.5"))
	require.ErrorIs(t, err, ErrInvalidKey)

	assert.Equal(t, "-1 0 7", formatKeys([]int64{-1, 0, 7}))
	assert.Empty(t, formatKeys(nil))
}
