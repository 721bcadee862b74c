package rbtree

import "fmt"

// Insert adds key to the tree and returns a handle to the new node. Keys
// equal to existing ones are placed to their right.
//
// The only failure is ErrAllocation, when the node cap or the arena index
// space is exhausted; the tree is left unchanged in that case.
func (tree *Tree) Insert(key int64) (Handle, error) {
	if tree.maxNodes > 0 && tree.count >= tree.maxNodes {
		return Handle{}, fmt.Errorf("insert %d: %w: node limit %d reached", key, ErrAllocation, tree.maxNodes)
	}

	var parent uint32

	alloc := tree.storage()

	for cursor := tree.root; cursor != 0; {
		parent = cursor

		if key < alloc[cursor].key {
			cursor = alloc[cursor].left
		} else {
			cursor = alloc[cursor].right
		}
	}

	nodeIdx, err := tree.allocator.malloc()
	if err != nil {
		return Handle{}, fmt.Errorf("insert %d: %w", key, err)
	}

	// The arena may have grown.
	alloc = tree.storage()
	newNode := &alloc[nodeIdx]
	newNode.key = key
	newNode.parent = parent
	newNode.color = red

	switch {
	case parent == 0:
		tree.root = nodeIdx
	case key < alloc[parent].key:
		alloc[parent].left = nodeIdx
	default:
		alloc[parent].right = nodeIdx
	}

	tree.count++
	tree.stats.Inserts++
	tree.insertFixup(nodeIdx)

	return tree.handle(nodeIdx), nil
}

// insertFixup restores the red-black properties after nodeIdx was linked as a
// red leaf. The only possible violation is a red parent.
func (tree *Tree) insertFixup(nodeIdx uint32) {
	alloc := tree.storage()

	for getColor(alloc[nodeIdx].parent, alloc) == red {
		parent := alloc[nodeIdx].parent
		// A red parent is never the root, so the grandparent is a real node.
		grandparent := alloc[parent].parent
		parentIsLeft := parent == alloc[grandparent].left

		var uncle uint32
		if parentIsLeft {
			uncle = alloc[grandparent].right
		} else {
			uncle = alloc[grandparent].left
		}

		// Case 1: parent and uncle are both red.
		// Then paint both black and make grandparent red.
		if getColor(uncle, alloc) == red {
			paint(parent, black, alloc)
			paint(uncle, black, alloc)
			paint(grandparent, red, alloc)
			tree.stats.InsertRecolors++
			nodeIdx = grandparent

			continue
		}

		// Case 2: the node is an inner grandchild; straighten the line.
		if parentIsLeft == (nodeIdx == alloc[parent].right) {
			nodeIdx = parent
			tree.rotateDirection(nodeIdx, parentIsLeft)
			parent = alloc[nodeIdx].parent
			tree.stats.InsertZigZags++
		}

		// Case 3: outer grandchild; the loop terminates after this.
		paint(parent, black, alloc)
		paint(grandparent, red, alloc)
		tree.rotateDirection(grandparent, !parentIsLeft)
		tree.stats.InsertLines++
	}

	paint(tree.root, black, alloc)
}
