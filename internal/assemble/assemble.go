// Package assemble merges a volume's flat segment stream with the published
// tree skeleton into a nested forest of document nodes.
package assemble

import (
	"github.com/palikit/canonpress/internal/depth"
	"github.com/palikit/canonpress/internal/doctree"
)

// DefaultMaxHeadingLevel matches HTML's conventional h1..h6 range, with level
// zero reserved for the root title.
const DefaultMaxHeadingLevel = 6

// Assembler builds document forests for one collection. It holds no mutable
// state across volumes: each Volume call runs on its own ancestor stack, so
// volumes of the same publication can be assembled in parallel.
type Assembler struct {
	resolver   *depth.Resolver
	maxHeading int
}

// New creates an Assembler. maxHeading is the deepest usable heading level of
// the target format; zero or negative selects DefaultMaxHeadingLevel.
func New(resolver *depth.Resolver, maxHeading int) *Assembler {
	if maxHeading <= 0 {
		maxHeading = DefaultMaxHeadingLevel
	}
	return &Assembler{resolver: resolver, maxHeading: maxHeading}
}

// Volume assembles one volume's segment stream into an ordered forest.
// Source order is authoritative: no segment is ever reordered, and leaves
// appear exactly once, in place. A branch segment whose id cannot be resolved
// against the skeleton aborts assembly with UnknownNodeError; leaves are not
// required to exist in the skeleton.
func (a *Assembler) Volume(collection, volume string, segments []doctree.Segment) ([]*doctree.DocumentNode, error) {
	var forest []*doctree.DocumentNode
	var stack []*doctree.DocumentNode

	attach := func(n *doctree.DocumentNode) {
		if len(stack) == 0 {
			forest = append(forest, n)
			return
		}
		top := stack[len(stack)-1]
		top.Children = append(top.Children, n)
	}

	for _, seg := range segments {
		switch seg.Kind {
		case doctree.KindBranch:
			res, err := a.resolver.Resolve(collection, volume, seg.ID)
			if err != nil {
				return nil, err
			}
			// Close finished subtrees: keep only ancestors strictly
			// shallower than the new node.
			for len(stack) > 0 && stack[len(stack)-1].Depth >= res.Depth {
				stack = stack[:len(stack)-1]
			}
			node := &doctree.DocumentNode{
				Segment:      seg,
				Depth:        res.Depth,
				Kind:         res.Kind,
				HeadingLevel: min(res.Depth, a.maxHeading),
				Collapsed:    res.Depth >= a.maxHeading,
			}
			attach(node)
			stack = append(stack, node)

		case doctree.KindLeaf:
			// Leaves never change the stack.
			node := &doctree.DocumentNode{Segment: seg, Kind: doctree.Branch}
			if len(stack) > 0 {
				node.Depth = stack[len(stack)-1].Depth + 1
			}
			attach(node)
		}
	}
	return forest, nil
}

// MaxHeadingLevel reports the configured clamp.
func (a *Assembler) MaxHeadingLevel() int {
	return a.maxHeading
}
