// Package toc projects an assembled document forest into table-of-contents
// listings. Projections are pure functions of the forest: calling them again
// reproduces identical output, and a shallower projection is always a subset
// of a deeper one.
package toc

import "github.com/palikit/canonpress/internal/doctree"

// NoLimit disables depth truncation.
const NoLimit = -1

// Project walks the forest in document order and returns one entry per
// structural node at depth maxDepth or shallower. Pannasaka nodes keep their
// distinct styling kind but are never excluded. Leaves carry no headings and
// never appear.
func Project(forest []*doctree.DocumentNode, maxDepth int) []doctree.TocEntry {
	var entries []doctree.TocEntry
	var walk func(nodes []*doctree.DocumentNode)
	walk = func(nodes []*doctree.DocumentNode) {
		for _, n := range nodes {
			if n.Segment.Kind == doctree.KindBranch && (maxDepth == NoLimit || n.Depth <= maxDepth) {
				entries = append(entries, doctree.TocEntry{
					NodeID:    n.Segment.ID,
					Title:     n.Segment.Title,
					Level:     n.HeadingLevel,
					Kind:      n.Kind,
					Collapsed: n.Collapsed,
				})
			}
			walk(n.Children)
		}
	}
	walk(forest)
	return entries
}
