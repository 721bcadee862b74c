package rbtree

import "fmt"

// Erase removes the node named by handle. It fails with ErrInvalidHandle if
// the handle belongs to another tree or its node was already erased.
func (tree *Tree) Erase(handle Handle) error {
	if !tree.Contains(handle) {
		return fmt.Errorf("erase key %d: %w", handle.key, ErrInvalidHandle)
	}

	tree.erase(handle.node)

	return nil
}

// EraseKey removes one node holding key. Returns true iff such a node was found.
func (tree *Tree) EraseKey(key int64) bool {
	handle, found := tree.Find(key)
	if !found {
		return false
	}

	tree.erase(handle.node)

	return true
}

// erase unlinks target and releases it.
//
// The sentinel cannot record a parent, so the parent of the node that moves
// into the spliced position is tracked in childParent instead.
func (tree *Tree) erase(target uint32) {
	alloc := tree.storage()
	spliced := target
	splicedColor := alloc[spliced].color

	var child, childParent uint32

	switch {
	case alloc[target].left == 0:
		child = alloc[target].right
		childParent = alloc[target].parent
		tree.transplant(target, child)
	case alloc[target].right == 0:
		child = alloc[target].left
		childParent = alloc[target].parent
		tree.transplant(target, child)
	default:
		// Two children: the in-order successor takes the target's place.
		spliced = subtreeMin(alloc[target].right, alloc)
		splicedColor = alloc[spliced].color
		child = alloc[spliced].right

		if alloc[spliced].parent == target {
			childParent = spliced
		} else {
			childParent = alloc[spliced].parent
			tree.transplant(spliced, child)
			alloc[spliced].right = alloc[target].right
			alloc[alloc[spliced].right].parent = spliced
		}

		tree.transplant(target, spliced)
		alloc[spliced].left = alloc[target].left
		alloc[alloc[spliced].left].parent = spliced
		alloc[spliced].color = alloc[target].color
	}

	if splicedColor == black {
		tree.eraseFixup(child, childParent)
	}

	tree.release(target)
	tree.count--
	tree.stats.Erases++
}

// transplant replaces the subtree rooted at oldn with the one rooted at newn
// from the point of view of oldn's parent. The children of newn are kept.
func (tree *Tree) transplant(oldn, newn uint32) {
	alloc := tree.storage()
	parent := alloc[oldn].parent

	switch {
	case parent == 0:
		tree.root = newn
	case oldn == alloc[parent].left:
		alloc[parent].left = newn
	default:
		alloc[parent].right = newn
	}

	if newn != 0 {
		alloc[newn].parent = parent
	}
}

// eraseFixup pushes the missing black unit carried by nodeIdx up the tree
// until it can be absorbed. nodeIdx may be the sentinel; parentIdx is its parent.
//
//nolint:gocognit // Mirrored red-black deletion cases.
func (tree *Tree) eraseFixup(nodeIdx, parentIdx uint32) {
	alloc := tree.storage()

	for nodeIdx != tree.root && getColor(nodeIdx, alloc) == black {
		// The sibling subtree carries at least one black node, so it is never the sentinel.
		if nodeIdx == alloc[parentIdx].left {
			sibling := alloc[parentIdx].right

			if getColor(sibling, alloc) == red {
				paint(sibling, black, alloc)
				paint(parentIdx, red, alloc)
				tree.rotateLeft(parentIdx)
				sibling = alloc[parentIdx].right
				tree.stats.EraseRedSiblings++
			}

			if getColor(alloc[sibling].left, alloc) == black && getColor(alloc[sibling].right, alloc) == black {
				paint(sibling, red, alloc)
				tree.stats.EraseBlackNephews++
				nodeIdx = parentIdx
				parentIdx = alloc[nodeIdx].parent

				continue
			}

			if getColor(alloc[sibling].right, alloc) == black {
				paint(alloc[sibling].left, black, alloc)
				paint(sibling, red, alloc)
				tree.rotateRight(sibling)
				sibling = alloc[parentIdx].right
				tree.stats.EraseNearNephews++
			}

			paint(sibling, alloc[parentIdx].color, alloc)
			paint(parentIdx, black, alloc)
			paint(alloc[sibling].right, black, alloc)
			tree.rotateLeft(parentIdx)
		} else {
			sibling := alloc[parentIdx].left

			if getColor(sibling, alloc) == red {
				paint(sibling, black, alloc)
				paint(parentIdx, red, alloc)
				tree.rotateRight(parentIdx)
				sibling = alloc[parentIdx].left
				tree.stats.EraseRedSiblings++
			}

			if getColor(alloc[sibling].left, alloc) == black && getColor(alloc[sibling].right, alloc) == black {
				paint(sibling, red, alloc)
				tree.stats.EraseBlackNephews++
				nodeIdx = parentIdx
				parentIdx = alloc[nodeIdx].parent

				continue
			}

			if getColor(alloc[sibling].left, alloc) == black {
				paint(alloc[sibling].right, black, alloc)
				paint(sibling, red, alloc)
				tree.rotateLeft(sibling)
				sibling = alloc[parentIdx].left
				tree.stats.EraseNearNephews++
			}

			paint(sibling, alloc[parentIdx].color, alloc)
			paint(parentIdx, black, alloc)
			paint(alloc[sibling].left, black, alloc)
			tree.rotateRight(parentIdx)
		}

		tree.stats.EraseFarNephews++
		nodeIdx = tree.root
	}

	if nodeIdx != 0 {
		paint(nodeIdx, black, alloc)
	}
}
