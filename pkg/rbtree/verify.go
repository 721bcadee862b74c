package rbtree

import "fmt"

// Node colors as reported by Shape.
const (
	ColorRed   = "red"
	ColorBlack = "black"
)

// Shape is a structural snapshot of a subtree.
type Shape struct {
	Key   int64  `json:"key"             yaml:"key"`
	Color string `json:"color"           yaml:"color"`
	Left  *Shape `json:"left,omitempty"  yaml:"left,omitempty"`
	Right *Shape `json:"right,omitempty" yaml:"right,omitempty"`
}

// Shape returns a snapshot of the whole tree, or nil if it is empty.
func (tree *Tree) Shape() *Shape {
	return buildShape(tree.root, tree.storage())
}

func buildShape(nodeIdx uint32, alloc []node) *Shape {
	if nodeIdx == 0 {
		return nil
	}

	shape := &Shape{
		Key:   alloc[nodeIdx].key,
		Color: ColorRed,
		Left:  buildShape(alloc[nodeIdx].left, alloc),
		Right: buildShape(alloc[nodeIdx].right, alloc),
	}

	if alloc[nodeIdx].color == black {
		shape.Color = ColorBlack
	}

	return shape
}

// Height returns the number of nodes on the longest root-to-leaf path.
func (tree *Tree) Height() int {
	return subtreeHeight(tree.root, tree.storage())
}

func subtreeHeight(nodeIdx uint32, alloc []node) int {
	if nodeIdx == 0 {
		return 0
	}

	return 1 + max(subtreeHeight(alloc[nodeIdx].left, alloc), subtreeHeight(alloc[nodeIdx].right, alloc))
}

// BlackHeight returns the number of black nodes on a path from the root,
// the root excluded, down to the sentinel, the sentinel included. An empty
// tree has black-height 0.
func (tree *Tree) BlackHeight() int {
	if tree.root == 0 {
		return 0
	}

	alloc := tree.storage()
	height := 1

	for cursor := alloc[tree.root].left; cursor != 0; cursor = alloc[cursor].left {
		if alloc[cursor].color == black {
			height++
		}
	}

	return height
}

// Verify checks every red-black property and the link structure of the
// tree. It returns an error wrapping ErrInvariant for the first violation found.
func (tree *Tree) Verify() error {
	alloc := tree.storage()

	if tree.root == 0 {
		if tree.count != 0 {
			return fmt.Errorf("%w: empty tree counts %d nodes", ErrInvariant, tree.count)
		}

		return nil
	}

	if alloc[tree.root].color != black {
		return fmt.Errorf("%w: root %d is red", ErrInvariant, alloc[tree.root].key)
	}

	if alloc[tree.root].parent != 0 {
		return fmt.Errorf("%w: root %d has a parent", ErrInvariant, alloc[tree.root].key)
	}

	size, _, err := verifySubtree(tree.root, alloc)
	if err != nil {
		return err
	}

	if size != tree.count {
		return fmt.Errorf("%w: %d reachable nodes, %d counted", ErrInvariant, size, tree.count)
	}

	var (
		prev  int64
		first = true
	)

	for cursor := subtreeMin(tree.root, alloc); cursor != 0; cursor = doNext(cursor, alloc) {
		if !first && alloc[cursor].key < prev {
			return fmt.Errorf("%w: key %d follows %d in order", ErrInvariant, alloc[cursor].key, prev)
		}

		prev = alloc[cursor].key
		first = false
	}

	return nil
}

// verifySubtree returns the size of the subtree and the number of black
// nodes on its paths, the sentinel included.
func verifySubtree(nodeIdx uint32, alloc []node) (int, int, error) {
	if nodeIdx == 0 {
		return 0, 1, nil
	}

	nd := alloc[nodeIdx]

	if !nd.live() {
		return 0, 0, fmt.Errorf("%w: slot %d is linked but free", ErrInvariant, nodeIdx)
	}

	for _, child := range [2]uint32{nd.left, nd.right} {
		if child == 0 {
			continue
		}

		if alloc[child].parent != nodeIdx {
			return 0, 0, fmt.Errorf("%w: node %d does not point back to parent %d",
				ErrInvariant, alloc[child].key, nd.key)
		}

		if nd.color == red && alloc[child].color == red {
			return 0, 0, fmt.Errorf("%w: red node %d has red child %d", ErrInvariant, nd.key, alloc[child].key)
		}
	}

	leftSize, leftBlack, err := verifySubtree(nd.left, alloc)
	if err != nil {
		return 0, 0, err
	}

	rightSize, rightBlack, err := verifySubtree(nd.right, alloc)
	if err != nil {
		return 0, 0, err
	}

	if leftBlack != rightBlack {
		return 0, 0, fmt.Errorf("%w: node %d has black-heights %d and %d",
			ErrInvariant, nd.key, leftBlack, rightBlack)
	}

	if nd.color == black {
		leftBlack++
	}

	return leftSize + rightSize + 1, leftBlack, nil
}
