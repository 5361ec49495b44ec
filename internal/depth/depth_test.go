package depth

import (
	"errors"
	"testing"

	"github.com/palikit/canonpress/internal/doctree"
	"github.com/palikit/canonpress/internal/treeindex"
)

func testIndex(t *testing.T, doc string) *treeindex.Index {
	t.Helper()
	idx, err := treeindex.New([]byte(`[]`), map[string][]byte{"bookA": []byte(doc)})
	if err != nil {
		t.Fatalf("treeindex.New: %v", err)
	}
	return idx
}

func validated(t *testing.T, o Overrides) Overrides {
	t.Helper()
	if err := o.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return o
}

const nestedTree = `{"bookA": {"children": [
	{"id":"ch1"},
	{"id":"ch2","children":[
		{"id":"ch2.1"},
		{"id":"an2-pannasaka","children":[{"id":"ch2.2"}]}
	]}
]}}`

func TestResolve_DefaultDepths(t *testing.T) {
	r := NewResolver(testIndex(t, nestedTree), validated(t, Overrides{}), nil)

	cases := []struct {
		id    string
		depth int
	}{
		{"bookA", 0}, // container root label
		{"ch1", 0},
		{"ch2", 0},
		{"ch2.1", 1},
		{"an2-pannasaka", 1},
		{"ch2.2", 2},
	}
	for _, tc := range cases {
		res, err := r.Resolve("bookA", "vol1", tc.id)
		if err != nil {
			t.Fatalf("Resolve(%s): %v", tc.id, err)
		}
		if res.Depth != tc.depth {
			t.Errorf("Resolve(%s): expected depth %d, got %d", tc.id, tc.depth, res.Depth)
		}
	}
}

func TestResolve_ForcedChapterByID(t *testing.T) {
	o := validated(t, Overrides{
		ForcedChapters: map[string]ForcedChapter{
			"bookA": {IDs: []string{"ch2.1"}},
		},
	})
	r := NewResolver(testIndex(t, nestedTree), o, nil)

	res, err := r.Resolve("bookA", "vol1", "ch2.1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Depth != 0 {
		t.Errorf("expected forced depth 0, got %d", res.Depth)
	}
	if res.Kind != doctree.Chapter {
		t.Errorf("expected chapter kind, got %s", res.Kind)
	}

	// Nodes outside the override keep their nominal depth.
	res, err = r.Resolve("bookA", "vol1", "ch2")
	if err != nil {
		t.Fatalf("Resolve ch2: %v", err)
	}
	if res.Depth != 0 || res.Kind != doctree.Branch {
		t.Errorf("ch2: expected depth 0 branch, got depth %d %s", res.Depth, res.Kind)
	}
}

func TestResolve_ForcedChapterVolumeSubset(t *testing.T) {
	o := validated(t, Overrides{
		ForcedChapters: map[string]ForcedChapter{
			"bookA": {Volumes: []string{"vol2"}, IDs: []string{"ch2.1"}},
		},
	})
	r := NewResolver(testIndex(t, nestedTree), o, nil)

	res, _ := r.Resolve("bookA", "vol1", "ch2.1")
	if res.Depth != 1 {
		t.Errorf("vol1 is outside the override, expected depth 1, got %d", res.Depth)
	}
	res, _ = r.Resolve("bookA", "vol2", "ch2.1")
	if res.Depth != 0 {
		t.Errorf("vol2 is inside the override, expected depth 0, got %d", res.Depth)
	}
}

func TestResolve_ForcedChapterDefaultsToChildlessNodes(t *testing.T) {
	o := validated(t, Overrides{
		ForcedChapters: map[string]ForcedChapter{"bookA": {}},
	})
	r := NewResolver(testIndex(t, nestedTree), o, nil)

	// ch2.2 has no children, so it is forced; ch2 has children and is not.
	res, _ := r.Resolve("bookA", "vol1", "ch2.2")
	if res.Depth != 0 || res.Kind != doctree.Chapter {
		t.Errorf("ch2.2: expected depth 0 chapter, got depth %d %s", res.Depth, res.Kind)
	}
	res, _ = r.Resolve("bookA", "vol1", "ch2")
	if res.Depth != 0 || res.Kind != doctree.Branch {
		t.Errorf("ch2 has children: expected depth 0 branch, got depth %d %s", res.Depth, res.Kind)
	}
}

func TestResolve_DepthAccumulatesBelowForcedAncestor(t *testing.T) {
	o := validated(t, Overrides{
		ForcedChapters: map[string]ForcedChapter{
			"bookA": {IDs: []string{"an2-pannasaka"}},
		},
	})
	r := NewResolver(testIndex(t, nestedTree), o, nil)

	res, err := r.Resolve("bookA", "vol1", "ch2.2")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Depth != 1 {
		t.Errorf("expected depth 1 below forced ancestor, got %d", res.Depth)
	}
	if res.Kind != doctree.Section {
		t.Errorf("expected section kind below forced chapter, got %s", res.Kind)
	}
}

func TestResolve_PannasakaSuffixAndAllowList(t *testing.T) {
	o := validated(t, Overrides{PannasakaIDs: []string{"ch2.1"}})
	r := NewResolver(testIndex(t, nestedTree), o, nil)

	res, _ := r.Resolve("bookA", "vol1", "an2-pannasaka")
	if res.Kind != doctree.Pannasaka {
		t.Errorf("suffix match: expected pannasaka kind, got %s", res.Kind)
	}
	if res.Depth != 1 {
		t.Errorf("pannasaka must not change depth, expected 1, got %d", res.Depth)
	}

	res, _ = r.Resolve("bookA", "vol1", "ch2.1")
	if res.Kind != doctree.Pannasaka {
		t.Errorf("allow-list match: expected pannasaka kind, got %s", res.Kind)
	}
}

func TestResolve_PrecedenceIsConfigurable(t *testing.T) {
	forced := map[string]ForcedChapter{"bookA": {IDs: []string{"an2-pannasaka"}}}

	o := validated(t, Overrides{ForcedChapters: forced})
	r := NewResolver(testIndex(t, nestedTree), o, nil)
	res, _ := r.Resolve("bookA", "vol1", "an2-pannasaka")
	if res.Kind != doctree.Chapter || res.Depth != 0 {
		t.Errorf("default precedence: expected depth 0 chapter, got depth %d %s", res.Depth, res.Kind)
	}

	o = validated(t, Overrides{
		ForcedChapters: forced,
		Precedence:     []OverrideKind{OverridePannasaka, OverrideChapter},
	})
	r = NewResolver(testIndex(t, nestedTree), o, nil)
	res, _ = r.Resolve("bookA", "vol1", "an2-pannasaka")
	if res.Kind != doctree.Pannasaka || res.Depth != 1 {
		t.Errorf("reversed precedence: expected depth 1 pannasaka, got depth %d %s", res.Depth, res.Kind)
	}
}

func TestResolve_UnknownNodePropagates(t *testing.T) {
	r := NewResolver(testIndex(t, nestedTree), validated(t, Overrides{}), nil)
	_, err := r.Resolve("bookA", "vol1", "ch99")
	var unknown *treeindex.UnknownNodeError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownNodeError, got %v", err)
	}
}

func TestOverrides_Validate(t *testing.T) {
	o := Overrides{Precedence: []OverrideKind{"bogus"}}
	err := o.Validate()
	var invalid *InvalidOverrideConfigError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidOverrideConfigError, got %v", err)
	}

	o = Overrides{Precedence: []OverrideKind{OverrideChapter, OverrideChapter}}
	if err := o.Validate(); err == nil {
		t.Error("expected error for duplicate precedence entry")
	}

	o = Overrides{ForcedChapters: map[string]ForcedChapter{"bookA": {IDs: []string{""}}}}
	if err := o.Validate(); err == nil {
		t.Error("expected error for empty forced id")
	}

	o = Overrides{}
	if err := o.Validate(); err != nil {
		t.Fatalf("empty overrides must validate: %v", err)
	}
	if o.PannasakaSuffix != "pannasaka" {
		t.Errorf("expected default suffix, got %q", o.PannasakaSuffix)
	}
	if len(o.Precedence) != 2 || o.Precedence[0] != OverrideChapter {
		t.Errorf("expected default precedence chapter,pannasaka, got %v", o.Precedence)
	}
}
