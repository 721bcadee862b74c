package rbtree

// Stats counts the structural work done by a tree.
type Stats struct {
	Inserts   uint64 `json:"inserts"   yaml:"inserts"`
	Erases    uint64 `json:"erases"    yaml:"erases"`
	Rotations uint64 `json:"rotations" yaml:"rotations"`

	// Insert rebalancing cases.
	InsertRecolors uint64 `json:"insert_recolors" yaml:"insert_recolors"` // Red uncle: recolor and move up.
	InsertZigZags  uint64 `json:"insert_zigzags"  yaml:"insert_zigzags"`  // Black uncle, inner grandchild: rotate the parent.
	InsertLines    uint64 `json:"insert_lines"    yaml:"insert_lines"`    // Black uncle, outer grandchild: rotate the grandparent.

	// Erase rebalancing cases.
	EraseRedSiblings  uint64 `json:"erase_red_siblings"  yaml:"erase_red_siblings"`  // Red sibling turned black by a rotation.
	EraseBlackNephews uint64 `json:"erase_black_nephews" yaml:"erase_black_nephews"` // Both nephews black: the deficit moves up.
	EraseNearNephews  uint64 `json:"erase_near_nephews"  yaml:"erase_near_nephews"`  // Only the near nephew red: rotate the sibling.
	EraseFarNephews   uint64 `json:"erase_far_nephews"   yaml:"erase_far_nephews"`   // Far nephew red: final rotation.
}

// Add accumulates other into stats.
func (stats *Stats) Add(other Stats) {
	stats.Inserts += other.Inserts
	stats.Erases += other.Erases
	stats.Rotations += other.Rotations
	stats.InsertRecolors += other.InsertRecolors
	stats.InsertZigZags += other.InsertZigZags
	stats.InsertLines += other.InsertLines
	stats.EraseRedSiblings += other.EraseRedSiblings
	stats.EraseBlackNephews += other.EraseBlackNephews
	stats.EraseNearNephews += other.EraseNearNephews
	stats.EraseFarNephews += other.EraseFarNephews
}
