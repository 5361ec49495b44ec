// Package matter turns an assembled document forest into publication markup:
// the mainmatter HTML body, table-of-contents listings, and converted
// front/back matter. Binary rendering (PDF, EPUB) happens outside this
// service; the composer only produces the markup those tools consume.
package matter

import (
	"bytes"
	"fmt"
	"html"
	"html/template"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/palikit/canonpress/internal/doctree"
	"github.com/palikit/canonpress/internal/toc"
	"github.com/yuin/goldmark"
	xhtml "golang.org/x/net/html"
)

// Composer renders volumes for one publication run.
type Composer struct {
	mainTocDepth      int
	secondaryTocDepth int
	markdown          goldmark.Markdown
}

// NewComposer creates a Composer. mainTocDepth bounds the main TOC;
// secondaryTocDepth bounds the per-chapter secondary TOCs inserted into the
// mainmatter.
func NewComposer(mainTocDepth, secondaryTocDepth int) *Composer {
	return &Composer{
		mainTocDepth:      mainTocDepth,
		secondaryTocDepth: secondaryTocDepth,
		markdown:          goldmark.New(),
	}
}

// Volume is one composed volume, ready for the downstream typesetters.
type Volume struct {
	Number      int                `json:"number"`
	Title       string             `json:"title"`
	Mainmatter  string             `json:"mainmatter"`
	MainToc     string             `json:"main_toc"`
	FullToc     []doctree.TocEntry `json:"full_toc"`
	ShortToc    []doctree.TocEntry `json:"short_toc"`
	Frontmatter []string           `json:"frontmatter,omitempty"`
	Backmatter  []string           `json:"backmatter,omitempty"`
}

// MatterFile is one named front/back matter source. Order is publication
// order and must be preserved.
type MatterFile struct {
	Name    string
	Content string
}

// Compose renders one volume from its assembled forest. Front and back
// matter arrive as named files: Markdown is converted, HTML passes through.
func (c *Composer) Compose(number int, title string, forest []*doctree.DocumentNode, front, back []MatterFile) (*Volume, error) {
	full := toc.Project(forest, toc.NoLimit)
	short := toc.Project(forest, c.mainTocDepth)

	body := RenderMainmatter(forest)
	body, err := c.insertSecondaryTocs(body, forest)
	if err != nil {
		return nil, fmt.Errorf("insert secondary tocs: %w", err)
	}

	mainToc, err := renderTocHTML(short, false)
	if err != nil {
		return nil, fmt.Errorf("render main toc: %w", err)
	}

	vol := &Volume{
		Number:     number,
		Title:      title,
		Mainmatter: body,
		MainToc:    mainToc,
		FullToc:    full,
		ShortToc:   short,
	}
	for _, f := range front {
		converted, err := c.convertMatter(f.Name, f.Content)
		if err != nil {
			return nil, fmt.Errorf("frontmatter %s: %w", f.Name, err)
		}
		vol.Frontmatter = append(vol.Frontmatter, converted)
	}
	for _, f := range back {
		converted, err := c.convertMatter(f.Name, f.Content)
		if err != nil {
			return nil, fmt.Errorf("backmatter %s: %w", f.Name, err)
		}
		vol.Backmatter = append(vol.Backmatter, converted)
	}
	return vol, nil
}

// RenderMainmatter serializes the forest in document order. Branch nodes
// become heading tags clamped to h6, carrying their structural classes; leaf
// markup passes through untouched.
func RenderMainmatter(forest []*doctree.DocumentNode) string {
	var sb strings.Builder
	var walk func(nodes []*doctree.DocumentNode)
	walk = func(nodes []*doctree.DocumentNode) {
		for _, n := range nodes {
			switch n.Segment.Kind {
			case doctree.KindBranch:
				sb.WriteString(headingTag(n))
			case doctree.KindLeaf:
				sb.WriteString(n.Segment.Text)
			}
			walk(n.Children)
		}
	}
	walk(forest)
	return sb.String()
}

func headingTag(n *doctree.DocumentNode) string {
	h := n.HeadingLevel + 1
	if h > 6 {
		h = 6
	}
	classes := headingClasses(n.Kind, n.Collapsed)
	title := n.Segment.Title
	if title == "" {
		title = n.Segment.ID
	}
	if classes == "" {
		return fmt.Sprintf("<h%d id=%q>%s</h%d>", h, n.Segment.ID, html.EscapeString(title), h)
	}
	return fmt.Sprintf("<h%d id=%q class=%q>%s</h%d>", h, n.Segment.ID, classes, html.EscapeString(title), h)
}

func headingClasses(kind doctree.HeadingKind, collapsed bool) string {
	var classes []string
	if kind != doctree.Branch {
		classes = append(classes, kind.String())
	}
	if collapsed {
		// Depth exceeded the usable heading range: the stylesheet
		// distinguishes these with a secondary cue instead of a tag.
		classes = append(classes, "collapsed")
	}
	return strings.Join(classes, " ")
}

var tocTemplate = template.Must(template.New("toc").Parse(`<nav class="toc{{if .Secondary}} toc-secondary{{end}}">
<ul>
{{- range .Entries}}
<li class="toc-level-{{.Level}}{{if ne .Kind.String "branch"}} {{.Kind}}{{end}}{{if .Collapsed}} collapsed{{end}}"><a href="#{{.NodeID}}">{{.Title}}</a></li>
{{- end}}
</ul>
</nav>
`))

type tocData struct {
	Secondary bool
	Entries   []doctree.TocEntry
}

func renderTocHTML(entries []doctree.TocEntry, secondary bool) (string, error) {
	var buf bytes.Buffer
	if err := tocTemplate.Execute(&buf, tocData{Secondary: secondary, Entries: entries}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// insertSecondaryTocs places a shorter listing of each boundary chapter's
// subtree directly after its heading, mirroring how printed editions carry a
// per-chapter contents page.
func (c *Composer) insertSecondaryTocs(body string, forest []*doctree.DocumentNode) (string, error) {
	if c.secondaryTocDepth <= c.mainTocDepth {
		return body, nil
	}

	targets := collectTargets(forest, c.mainTocDepth)
	if len(targets) == 0 {
		return body, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse mainmatter: %w", err)
	}
	for _, target := range targets {
		entries := toc.Project(target.Children, c.secondaryTocDepth)
		if len(entries) == 0 {
			continue
		}
		tocHTML, err := renderTocHTML(entries, true)
		if err != nil {
			return "", err
		}
		doc.Find("#" + cssEscape(target.Segment.ID)).AfterHtml(tocHTML)
	}
	return doc.Find("body").Html()
}

// collectTargets returns the branch nodes sitting exactly at the main TOC
// boundary, in document order.
func collectTargets(forest []*doctree.DocumentNode, depth int) []*doctree.DocumentNode {
	var targets []*doctree.DocumentNode
	var walk func(nodes []*doctree.DocumentNode)
	walk = func(nodes []*doctree.DocumentNode) {
		for _, n := range nodes {
			if n.Segment.Kind == doctree.KindBranch && n.Depth == depth {
				targets = append(targets, n)
				continue
			}
			walk(n.Children)
		}
	}
	walk(forest)
	return targets
}

// cssEscape quotes the characters segment ids may carry that are meaningful
// in a selector (dots in particular: "ch2.1").
func cssEscape(id string) string {
	var sb strings.Builder
	for _, r := range id {
		switch r {
		case '.', ':', '[', ']', '#':
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// convertMatter renders one front/back matter file. Markdown sources are
// converted; anything else is assumed to be HTML already.
func (c *Composer) convertMatter(name, content string) (string, error) {
	if strings.HasSuffix(name, ".md") || strings.HasSuffix(name, ".markdown") {
		var buf bytes.Buffer
		if err := c.markdown.Convert([]byte(content), &buf); err != nil {
			return "", fmt.Errorf("convert markdown: %w", err)
		}
		return buf.String(), nil
	}
	return content, nil
}

// PlainTitle strips markup from a display title so TOC entries and running
// headers stay textual.
func PlainTitle(markup string) string {
	node, err := xhtml.Parse(strings.NewReader(markup))
	if err != nil {
		return markup
	}
	var sb strings.Builder
	var extract func(*xhtml.Node)
	extract = func(n *xhtml.Node) {
		if n.Type == xhtml.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(node)
	return strings.TrimSpace(sb.String())
}
