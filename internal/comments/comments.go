// Package comments holds the pure feedback-thread logic: rebuilding a
// comment forest from the flat relational rows, deriving visual pins per
// media type, and summarizing activity for the project listing.
package comments

import (
	"sort"
	"strings"
	"time"

	"markroom/api/internal/store"
)

const (
	TagToDo       = "To Do"
	TagInProgress = "In Progress"
	TagResolved   = "Resolved"
)

func ValidTag(tag string) bool {
	return tag == TagToDo || tag == TagInProgress || tag == TagResolved
}

// Unresolved reports whether a tag still needs attention.
func Unresolved(tag string) bool {
	return tag == TagToDo || tag == TagInProgress
}

// AnchorKind is the positional family a file's comments use, decided by the
// file's MIME type.
type AnchorKind string

const (
	AnchorNone  AnchorKind = "none"
	AnchorImage AnchorKind = "image"
	AnchorVideo AnchorKind = "video"
	AnchorPDF   AnchorKind = "pdf"
)

func AnchorKindForMime(mimeType string) AnchorKind {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return AnchorImage
	case strings.HasPrefix(mimeType, "video/"):
		return AnchorVideo
	case mimeType == "application/pdf":
		return AnchorPDF
	default:
		return AnchorNone
	}
}

// Anchor is the tagged variant derived from the flat nullable columns at
// read time. Exactly one family of fields is populated per kind; X and Y are
// percentages of the rendered dimension multiplied by 100.
type Anchor struct {
	Kind    AnchorKind `json:"kind"`
	X       *int       `json:"x,omitempty"`
	Y       *int       `json:"y,omitempty"`
	Seconds *int       `json:"seconds,omitempty"`
	Page    *int       `json:"page,omitempty"`
}

// AnchorOf extracts the renderable anchor of a comment under the given
// family. ok is false for general comments and for comments whose stored
// fields do not satisfy the family (for example an image comment missing one
// coordinate).
func AnchorOf(c store.Comment, kind AnchorKind) (Anchor, bool) {
	switch kind {
	case AnchorImage:
		if c.PositionX != nil && c.PositionY != nil {
			return Anchor{Kind: AnchorImage, X: c.PositionX, Y: c.PositionY}, true
		}
	case AnchorVideo:
		if c.Timestamp != nil {
			return Anchor{Kind: AnchorVideo, Seconds: c.Timestamp}, true
		}
	case AnchorPDF:
		// Page selects the surface; coordinates within it are optional for
		// sidebar listing but required for on-page rendering.
		if c.Page != nil {
			return Anchor{Kind: AnchorPDF, Page: c.Page, X: c.PositionX, Y: c.PositionY}, true
		}
	}
	return Anchor{Kind: AnchorNone}, false
}

// Node is one comment with its direct replies, ordered by creation time.
type Node struct {
	store.Comment
	Replies []Node
}

// BuildForest turns the flat comment rows of one file into an ordered forest.
// Parent pointers are advisory: a parent id that is missing from the set, or
// that points at the comment itself, is ignored and the comment becomes a
// root. Cycles are broken by promoting the earliest-created member to root,
// so every comment appears exactly once and the result has finite depth.
// Output order depends only on (createdAt, id), never on input order.
func BuildForest(list []store.Comment) []Node {
	ordered := make([]store.Comment, len(list))
	copy(ordered, list)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
		}
		return ordered[i].ID < ordered[j].ID
	})

	index := make(map[string]*treeNode, len(ordered))
	ids := make([]string, 0, len(ordered))
	for _, c := range ordered {
		if _, seen := index[c.ID]; seen {
			// Duplicate row ids cannot happen with a sane store, but the
			// builder must never emit a comment twice.
			continue
		}
		index[c.ID] = &treeNode{comment: c}
		ids = append(ids, c.ID)
	}

	// Resolve the effective parent of each comment: present in this set and
	// not the comment itself.
	parent := make(map[string]string, len(ids))
	for _, id := range ids {
		c := index[id].comment
		if c.ParentID == nil || *c.ParentID == id {
			continue
		}
		if _, ok := index[*c.ParentID]; !ok {
			continue
		}
		parent[id] = *c.ParentID
	}

	breakCycles(ids, index, parent)

	roots := make([]*treeNode, 0, len(ids))
	for _, id := range ids {
		n := index[id]
		if pid, ok := parent[id]; ok {
			index[pid].replies = append(index[pid].replies, n)
		} else {
			roots = append(roots, n)
		}
	}

	// ids were processed in (createdAt, id) order, so every replies slice and
	// the roots slice are already sorted.
	var convert func(n *treeNode) Node
	convert = func(n *treeNode) Node {
		out := Node{Comment: n.comment, Replies: make([]Node, 0, len(n.replies))}
		for _, reply := range n.replies {
			out.Replies = append(out.Replies, convert(reply))
		}
		return out
	}

	forest := make([]Node, 0, len(roots))
	for _, root := range roots {
		forest = append(forest, convert(root))
	}
	return forest
}

// breakCycles walks every parent chain and clears the parent of the
// earliest-created member of each cycle it finds. Chains are walked at most
// once per comment.
func breakCycles(ids []string, index map[string]*treeNode, parent map[string]string) {
	const (
		unvisited = 0
		onPath    = 1
		done      = 2
	)
	state := make(map[string]int, len(ids))

	for _, start := range ids {
		if state[start] != unvisited {
			continue
		}
		var path []string
		current := start
		for {
			if state[current] == onPath {
				clearCycleRoot(path, current, index, parent)
				break
			}
			if state[current] == done {
				break
			}
			state[current] = onPath
			path = append(path, current)
			next, ok := parent[current]
			if !ok {
				break
			}
			current = next
		}
		for _, id := range path {
			state[id] = done
		}
	}
}

// clearCycleRoot removes the parent link of the earliest-created comment in
// the cycle that closes at `meet` within `path`.
func clearCycleRoot(path []string, meet string, index map[string]*treeNode, parent map[string]string) {
	cycleStart := 0
	for i, id := range path {
		if id == meet {
			cycleStart = i
			break
		}
	}
	cycle := path[cycleStart:]
	rootID := cycle[0]
	for _, id := range cycle[1:] {
		a, b := index[id].comment, index[rootID].comment
		if a.CreatedAt.Before(b.CreatedAt) || (a.CreatedAt.Equal(b.CreatedAt) && a.ID < b.ID) {
			rootID = id
		}
	}
	delete(parent, rootID)
}

type treeNode struct {
	comment store.Comment
	replies []*treeNode
}

// Pin is a numbered visual marker for one root comment's anchor.
type Pin struct {
	Number  int
	Comment store.Comment
	Anchor  Anchor
}

// Pins derives the visual markers for a file: root comments only, anchor
// fields satisfied for the file's family, numbered 1..N by creation time
// across the whole file. PDF pins keep that file-wide numbering regardless of
// which page is displayed.
func Pins(list []store.Comment, kind AnchorKind) []Pin {
	if kind == AnchorNone {
		return []Pin{}
	}

	eligible := make([]store.Comment, 0, len(list))
	for _, c := range list {
		if c.ParentID != nil {
			continue
		}
		if _, ok := AnchorOf(c, kind); ok {
			eligible = append(eligible, c)
		}
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		if !eligible[i].CreatedAt.Equal(eligible[j].CreatedAt) {
			return eligible[i].CreatedAt.Before(eligible[j].CreatedAt)
		}
		return eligible[i].ID < eligible[j].ID
	})

	pins := make([]Pin, 0, len(eligible))
	for i, c := range eligible {
		anchor, _ := AnchorOf(c, kind)
		pins = append(pins, Pin{Number: i + 1, Comment: c, Anchor: anchor})
	}
	return pins
}

// PagePins narrows PDF pins to the page being displayed, keeping the
// file-wide numbers. Pins without in-page coordinates are dropped since they
// cannot be rendered on the surface.
func PagePins(pins []Pin, page int) []Pin {
	out := make([]Pin, 0, len(pins))
	for _, pin := range pins {
		if pin.Anchor.Page == nil || *pin.Anchor.Page != page {
			continue
		}
		if pin.Anchor.X == nil || pin.Anchor.Y == nil {
			continue
		}
		out = append(out, pin)
	}
	return out
}

// Summary is the per-project activity aggregate. LastCommentTime is nil when
// the project has no comments at all.
type Summary struct {
	TotalComments      int
	UnresolvedComments int
	LastCommentTime    *time.Time
}

// Summarize folds a project's flattened comment collection into counts and
// the most recent creation time.
func Summarize(list []store.Comment) Summary {
	summary := Summary{}
	for _, c := range list {
		summary.TotalComments++
		if Unresolved(c.Tag) {
			summary.UnresolvedComments++
		}
		if summary.LastCommentTime == nil || c.CreatedAt.After(*summary.LastCommentTime) {
			created := c.CreatedAt
			summary.LastCommentTime = &created
		}
	}
	return summary
}

// HasUnread reports whether any comment in the summary was created strictly
// after the user's last view. Callers with no view record pass the zero time,
// which makes every comment unread.
func (s Summary) HasUnread(lastViewedAt time.Time) bool {
	return s.LastCommentTime != nil && s.LastCommentTime.After(lastViewedAt)
}
