package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/Sumatoshi-tech/rbtree/pkg/rbtree"
)

// Script errors.
var (
	ErrScriptSyntax   = errors.New("script syntax error")
	ErrTreeHibernated = errors.New("tree is hibernated, boot it first")
)

// Script operations.
const (
	opInsert    = "insert"
	opErase     = "erase"
	opFind      = "find"
	opMin       = "min"
	opMax       = "max"
	opLen       = "len"
	opHeight    = "height"
	opSorted    = "sorted"
	opCheck     = "check"
	opDestroy   = "destroy"
	opHibernate = "hibernate"
	opBoot      = "boot"

	resultNotFound = "not found"
	resultEmpty    = "empty"
	commentMarker  = "#"
	unboundedArity = -1
)

type arity struct {
	min, max int
}

var scriptOps = map[string]arity{
	opInsert:    {1, unboundedArity},
	opErase:     {1, 1},
	opFind:      {1, 1},
	opMin:       {0, 0},
	opMax:       {0, 0},
	opLen:       {0, 0},
	opHeight:    {0, 0},
	opSorted:    {0, 0},
	opCheck:     {0, 0},
	opDestroy:   {0, 0},
	opHibernate: {0, 0},
	opBoot:      {0, 0},
}

// ScriptOp is one parsed line of an operation script.
type ScriptOp struct {
	Name string
	Keys []int64
	Line int
}

// ParseScript reads one operation per line. Blank lines and text after '#'
// are ignored. Operation names are case-insensitive.
func ParseScript(r io.Reader) ([]ScriptOp, error) {
	var ops []ScriptOp

	scanner := bufio.NewScanner(r)
	lineNo := 0

	for scanner.Scan() {
		lineNo++

		line, _, _ := strings.Cut(scanner.Text(), commentMarker)

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		name := strings.ToLower(fields[0])

		bounds, known := scriptOps[name]
		if !known {
			return nil, fmt.Errorf("%w: line %d: unknown operation %q", ErrScriptSyntax, lineNo, fields[0])
		}

		args := fields[1:]
		if len(args) < bounds.min || (bounds.max != unboundedArity && len(args) > bounds.max) {
			return nil, fmt.Errorf("%w: line %d: %s takes %s, got %d",
				ErrScriptSyntax, lineNo, name, describeArity(bounds), len(args))
		}

		keys, err := parseKeys(args)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrScriptSyntax, lineNo, err)
		}

		ops = append(ops, ScriptOp{Name: name, Keys: keys, Line: lineNo})
	}

	err := scanner.Err()
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}

	return ops, nil
}

func describeArity(bounds arity) string {
	switch {
	case bounds.max == 0:
		return "no keys"
	case bounds.max == unboundedArity:
		return fmt.Sprintf("at least %d key(s)", bounds.min)
	default:
		return fmt.Sprintf("%d key(s)", bounds.max)
	}
}

// executeOp applies op to tree and describes the outcome.
func executeOp(tree *rbtree.Tree, op ScriptOp) (string, error) {
	alloc := tree.Allocator()

	if alloc.Hibernated() && op.Name != opBoot {
		return "", ErrTreeHibernated
	}

	switch op.Name {
	case opInsert:
		for idx, key := range op.Keys {
			_, err := tree.Insert(key)
			if err != nil {
				return fmt.Sprintf("inserted %d", idx), err
			}
		}

		return fmt.Sprintf("inserted %d", len(op.Keys)), nil
	case opErase:
		if tree.EraseKey(op.Keys[0]) {
			return "erased", nil
		}

		return resultNotFound, nil
	case opFind:
		if _, found := tree.Find(op.Keys[0]); found {
			return "found", nil
		}

		return resultNotFound, nil
	case opMin, opMax:
		lookup := tree.Min
		if op.Name == opMax {
			lookup = tree.Max
		}

		handle, found := lookup()
		if !found {
			return resultEmpty, nil
		}

		return strconv.FormatInt(handle.Key(), 10), nil
	case opLen:
		return strconv.Itoa(tree.Len()), nil
	case opHeight:
		return strconv.Itoa(tree.Height()), nil
	case opSorted:
		keys, err := tree.SortedKeys()
		if err != nil {
			return "", err
		}

		return formatKeys(keys), nil
	case opCheck:
		err := tree.Verify()
		if err != nil {
			return "", err
		}

		return "ok", nil
	case opDestroy:
		return fmt.Sprintf("released %d", tree.Destroy()), nil
	case opHibernate:
		err := alloc.Hibernate()
		if err != nil {
			return "", err
		}

		if !alloc.Hibernated() {
			return "below threshold", nil
		}

		return "hibernated to " + humanize.Bytes(alloc.Footprint()), nil
	case opBoot:
		err := alloc.Boot()
		if err != nil {
			return "", err
		}

		return "booted", nil
	}

	return "", fmt.Errorf("%w: unknown operation %q", ErrScriptSyntax, op.Name)
}
