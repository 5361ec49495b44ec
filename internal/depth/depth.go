// Package depth maps structural identifiers to their canonical nesting depth,
// applying collection-specific overrides that cap or re-label depth before the
// assembler runs.
package depth

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/palikit/canonpress/internal/doctree"
	"github.com/palikit/canonpress/internal/treeindex"
)

// OverrideKind names one override category. Precedence between categories is
// policy, not a hardcoded rule: the configured order decides which one wins
// when both match the same id.
type OverrideKind string

const (
	OverrideChapter   OverrideKind = "chapter"
	OverridePannasaka OverrideKind = "pannasaka"
)

// InvalidOverrideConfigError reports override configuration that cannot be
// applied. Raised at startup, before any volume is assembled.
type InvalidOverrideConfigError struct {
	Reason string
}

func (e *InvalidOverrideConfigError) Error() string {
	return "invalid override config: " + e.Reason
}

// ForcedChapter forces matching nodes of one collection to render as
// top-level chapters regardless of their tree depth.
type ForcedChapter struct {
	// Volumes restricts the override to a subset of the collection's
	// volumes. Empty means every volume.
	Volumes []string `json:"volumes,omitempty"`
	// IDs lists the node ids to force. Empty means the collection's
	// deepest structural titles, i.e. tree nodes without children.
	IDs []string `json:"ids,omitempty"`
}

// Overrides is the depth-override configuration for a run.
type Overrides struct {
	// ForcedChapters is keyed by collection id.
	ForcedChapters map[string]ForcedChapter `json:"forced_chapters,omitempty"`
	// PannasakaSuffix marks fifty-sutta groupings by structural name.
	PannasakaSuffix string `json:"pannasaka_suffix,omitempty"`
	// PannasakaIDs adds ids that do not match the suffix but should be
	// treated the same way.
	PannasakaIDs []string `json:"pannasaka_ids,omitempty"`
	// Precedence orders the override categories; first match wins.
	// Defaults to chapter before pannasaka.
	Precedence []OverrideKind `json:"precedence,omitempty"`
}

// Validate checks the override configuration and fills in defaults.
func (o *Overrides) Validate() error {
	if o.PannasakaSuffix == "" {
		o.PannasakaSuffix = "pannasaka"
	}
	if len(o.Precedence) == 0 {
		o.Precedence = []OverrideKind{OverrideChapter, OverridePannasaka}
	}
	seen := make(map[OverrideKind]bool, len(o.Precedence))
	for _, k := range o.Precedence {
		switch k {
		case OverrideChapter, OverridePannasaka:
		default:
			return &InvalidOverrideConfigError{Reason: fmt.Sprintf("unknown override kind %q in precedence", k)}
		}
		if seen[k] {
			return &InvalidOverrideConfigError{Reason: fmt.Sprintf("override kind %q listed twice in precedence", k)}
		}
		seen[k] = true
	}
	for coll, fc := range o.ForcedChapters {
		if coll == "" {
			return &InvalidOverrideConfigError{Reason: "forced chapter entry with empty collection id"}
		}
		for _, id := range fc.IDs {
			if id == "" {
				return &InvalidOverrideConfigError{Reason: fmt.Sprintf("forced chapter entry for %q lists an empty id", coll)}
			}
		}
	}
	return nil
}

// Resolution is the resolved depth and classification of one structural id.
type Resolution struct {
	Depth int
	Kind  doctree.HeadingKind
}

// Resolver computes nesting depths against a loaded tree index. It never
// fabricates a depth: an id unknown to the index propagates UnknownNodeError.
type Resolver struct {
	index     *treeindex.Index
	overrides Overrides
	log       *slog.Logger
}

// NewResolver builds a Resolver. The overrides must have been validated.
func NewResolver(index *treeindex.Index, overrides Overrides, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{index: index, overrides: overrides, log: log}
}

// Resolve computes the depth and heading kind of id within one volume of a
// collection. Depth accumulates along the ancestor path, with overrides
// already applied to ancestors: a forced-chapter ancestor restarts the count.
// Container roots (object-form skeleton labels) do not count toward depth.
func (r *Resolver) Resolve(collection, volume, id string) (Resolution, error) {
	path, err := r.index.Path(collection, id)
	if err != nil {
		return Resolution{}, err
	}

	d := -1
	forcedAncestor := false
	last := len(path) - 1
	var final OverrideKind
	for i, node := range path {
		if node.Container {
			if i == last {
				// A root title renders at the top with no override applied.
				return Resolution{Depth: 0, Kind: doctree.Branch}, nil
			}
			continue
		}
		kind, conflict := r.matchOverride(collection, volume, node)
		if conflict != "" {
			r.log.Warn("multiple depth overrides match, applying configured precedence",
				"collection", collection, "node_id", node.ID, "applied", string(kind), "ignored", conflict)
		}
		switch kind {
		case OverrideChapter:
			d = 0
		default:
			d++
		}
		if i == last {
			final = kind
		} else if kind == OverrideChapter {
			forcedAncestor = true
		}
	}
	return Resolution{Depth: d, Kind: headingKind(final, forcedAncestor)}, nil
}

// matchOverride evaluates the override categories in precedence order and
// returns the first match, plus the name of a lower-precedence category that
// also matched, if any.
func (r *Resolver) matchOverride(collection, volume string, node *treeindex.TreeNode) (OverrideKind, string) {
	var matched OverrideKind
	var conflict string
	for _, k := range r.overrides.Precedence {
		ok := false
		switch k {
		case OverrideChapter:
			ok = r.matchForced(collection, volume, node)
		case OverridePannasaka:
			ok = r.matchPannasaka(node.ID)
		}
		if !ok {
			continue
		}
		if matched == "" {
			matched = k
		} else {
			conflict = string(k)
			break
		}
	}
	return matched, conflict
}

func (r *Resolver) matchForced(collection, volume string, node *treeindex.TreeNode) bool {
	fc, ok := r.overrides.ForcedChapters[collection]
	if !ok {
		return false
	}
	if len(fc.Volumes) > 0 && !slices.Contains(fc.Volumes, volume) {
		return false
	}
	if len(fc.IDs) > 0 {
		return slices.Contains(fc.IDs, node.ID)
	}
	return len(node.Children) == 0
}

func (r *Resolver) matchPannasaka(id string) bool {
	if strings.HasSuffix(id, r.overrides.PannasakaSuffix) {
		return true
	}
	return slices.Contains(r.overrides.PannasakaIDs, id)
}

func headingKind(k OverrideKind, forcedAncestor bool) doctree.HeadingKind {
	switch k {
	case OverrideChapter:
		return doctree.Chapter
	case OverridePannasaka:
		return doctree.Pannasaka
	}
	if forcedAncestor {
		return doctree.Section
	}
	return doctree.Branch
}
