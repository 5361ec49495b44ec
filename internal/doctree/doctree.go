package doctree

import (
	"encoding/json"
	"fmt"
)

// SegmentKind discriminates structural segments from content-bearing ones.
// The set is closed: the publication API only ever emits branch and leaf nodes.
type SegmentKind uint8

const (
	KindBranch SegmentKind = iota // structural placeholder (book/chapter/section title)
	KindLeaf                      // content-bearing unit (verse, paragraph, note)
)

func (k SegmentKind) String() string {
	switch k {
	case KindBranch:
		return "branch"
	case KindLeaf:
		return "leaf"
	}
	return fmt.Sprintf("SegmentKind(%d)", uint8(k))
}

func (k SegmentKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *SegmentKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "branch":
		*k = KindBranch
	case "leaf":
		*k = KindLeaf
	default:
		return fmt.Errorf("unknown segment kind %q", s)
	}
	return nil
}

// Segment is one unit of a volume's mainmatter as delivered by the
// publication API. Branch segments carry only a title; leaf segments carry
// rendered HTML markup.
type Segment struct {
	ID    string      `json:"id"`
	Kind  SegmentKind `json:"kind"`
	Title string      `json:"title,omitempty"`
	Text  string      `json:"html_content,omitempty"`
}

// HeadingKind classifies a structural node after depth overrides have been
// applied. It selects the heading command and TOC styling downstream.
type HeadingKind uint8

const (
	Branch    HeadingKind = iota // ordinary structural branch
	Chapter                      // forced to render as a top-level chapter
	Section                      // branch nested under a forced chapter
	Pannasaka                    // fifty-sutta grouping with distinct styling
)

func (k HeadingKind) String() string {
	switch k {
	case Branch:
		return "branch"
	case Chapter:
		return "chapter"
	case Section:
		return "section"
	case Pannasaka:
		return "pannasaka"
	}
	return fmt.Sprintf("HeadingKind(%d)", uint8(k))
}

// DocumentNode is one assembled node of a volume. Branch-derived nodes own
// their children; leaf-derived nodes never have any.
type DocumentNode struct {
	Segment      Segment
	Depth        int
	Kind         HeadingKind
	HeadingLevel int
	Collapsed    bool // depth exceeded the format's usable heading range
	Children     []*DocumentNode
}

// TocEntry is a projection of one branch node into a table of contents.
// It is derived data: re-walking the assembled forest always reproduces it.
type TocEntry struct {
	NodeID    string      `json:"node_id"`
	Title     string      `json:"display_title"`
	Level     int         `json:"level"`
	Kind      HeadingKind `json:"-"`
	Collapsed bool        `json:"collapsed,omitempty"`
}
