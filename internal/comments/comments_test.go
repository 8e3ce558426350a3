package comments

import (
	"testing"
	"time"

	"markroom/api/internal/store"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func comment(id string, parentID string, offsetSeconds int) store.Comment {
	c := store.Comment{
		ID:        id,
		FileID:    "fil_1",
		Name:      "Avery",
		Content:   "note " + id,
		Tag:       TagToDo,
		CreatedAt: base.Add(time.Duration(offsetSeconds) * time.Second),
	}
	if parentID != "" {
		c.ParentID = &parentID
	}
	return c
}

func intPtr(v int) *int { return &v }

func flatten(forest []Node) []string {
	var ids []string
	var walk func(nodes []Node)
	walk = func(nodes []Node) {
		for _, n := range nodes {
			ids = append(ids, n.ID)
			walk(n.Replies)
		}
	}
	walk(forest)
	return ids
}

func TestBuildForestNestsRepliesInCreationOrder(t *testing.T) {
	input := []store.Comment{
		comment("c3", "c1", 30),
		comment("c1", "", 10),
		comment("c4", "c2", 40),
		comment("c2", "", 20),
		comment("c5", "c1", 50),
	}

	forest := BuildForest(input)
	if len(forest) != 2 {
		t.Fatalf("expected 2 roots, got %d", len(forest))
	}
	if forest[0].ID != "c1" || forest[1].ID != "c2" {
		t.Fatalf("unexpected root order: %s, %s", forest[0].ID, forest[1].ID)
	}
	if len(forest[0].Replies) != 2 || forest[0].Replies[0].ID != "c3" || forest[0].Replies[1].ID != "c5" {
		t.Fatalf("unexpected replies under c1: %+v", forest[0].Replies)
	}
	if len(forest[1].Replies) != 1 || forest[1].Replies[0].ID != "c4" {
		t.Fatalf("unexpected replies under c2: %+v", forest[1].Replies)
	}
}

func TestBuildForestOrderIndependent(t *testing.T) {
	input := []store.Comment{
		comment("c1", "", 10),
		comment("c2", "c1", 20),
		comment("c3", "c2", 30),
		comment("c4", "", 40),
		comment("c5", "c4", 50),
	}

	permutations := [][]int{
		{0, 1, 2, 3, 4},
		{4, 3, 2, 1, 0},
		{2, 0, 4, 1, 3},
		{1, 4, 0, 3, 2},
	}

	want := flatten(BuildForest(input))
	for _, perm := range permutations {
		shuffled := make([]store.Comment, len(input))
		for i, j := range perm {
			shuffled[i] = input[j]
		}
		got := flatten(BuildForest(shuffled))
		if len(got) != len(want) {
			t.Fatalf("permutation %v: expected %d comments, got %d", perm, len(want), len(got))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("permutation %v: position %d = %s, want %s", perm, i, got[i], want[i])
			}
		}
	}
}

func TestBuildForestDanglingParentBecomesRoot(t *testing.T) {
	input := []store.Comment{
		comment("c1", "", 10),
		comment("c2", "deleted-elsewhere", 20),
	}

	forest := BuildForest(input)
	if len(forest) != 2 {
		t.Fatalf("expected 2 roots, got %d", len(forest))
	}
	if forest[1].ID != "c2" || len(forest[1].Replies) != 0 {
		t.Fatalf("orphan c2 should be a bare root, got %+v", forest[1])
	}
}

func TestBuildForestSelfParent(t *testing.T) {
	forest := BuildForest([]store.Comment{comment("c1", "c1", 10)})
	if len(forest) != 1 || forest[0].ID != "c1" || len(forest[0].Replies) != 0 {
		t.Fatalf("self-parented comment should be a single root, got %+v", forest)
	}
}

func TestBuildForestBreaksCycle(t *testing.T) {
	input := []store.Comment{
		comment("a", "b", 10),
		comment("b", "a", 20),
		comment("c", "b", 30),
	}

	forest := BuildForest(input)
	ids := flatten(forest)
	if len(ids) != 3 {
		t.Fatalf("expected every comment exactly once, got %v", ids)
	}
	seen := map[string]bool{}
	for _, id := range ids {
		if seen[id] {
			t.Fatalf("comment %s appears twice", id)
		}
		seen[id] = true
	}
	// The earlier-created member of the a<->b cycle is promoted to root.
	if len(forest) != 1 || forest[0].ID != "a" {
		t.Fatalf("expected single root a, got %d roots (first %s)", len(forest), forest[0].ID)
	}
}

func TestPinNumberingStability(t *testing.T) {
	c1 := comment("c1", "", 10)
	c1.PositionX, c1.PositionY = intPtr(2500), intPtr(7500)
	c2 := comment("c2", "", 20)
	c2.PositionX, c2.PositionY = intPtr(5000), intPtr(5000)
	c3 := comment("c3", "", 30) // general comment, never a pin

	orders := [][]store.Comment{
		{c1, c2, c3},
		{c3, c2, c1},
		{c2, c3, c1},
	}
	for _, input := range orders {
		pins := Pins(input, AnchorImage)
		if len(pins) != 2 {
			t.Fatalf("expected 2 pins, got %d", len(pins))
		}
		if pins[0].Comment.ID != "c1" || pins[0].Number != 1 {
			t.Fatalf("expected c1 as pin 1, got %s as %d", pins[0].Comment.ID, pins[0].Number)
		}
		if pins[1].Comment.ID != "c2" || pins[1].Number != 2 {
			t.Fatalf("expected c2 as pin 2, got %s as %d", pins[1].Comment.ID, pins[1].Number)
		}
	}
}

func TestPinsExcludeReplies(t *testing.T) {
	root := comment("c1", "", 10)
	root.PositionX, root.PositionY = intPtr(100), intPtr(200)
	reply := comment("c2", "c1", 20)
	reply.PositionX, reply.PositionY = intPtr(300), intPtr(400)

	pins := Pins([]store.Comment{root, reply}, AnchorImage)
	if len(pins) != 1 || pins[0].Comment.ID != "c1" {
		t.Fatalf("reply anchors must be ignored, got %+v", pins)
	}
}

func TestPagePinsKeepFileWideNumbers(t *testing.T) {
	p1 := comment("c1", "", 10)
	p1.Page, p1.PositionX, p1.PositionY = intPtr(1), intPtr(100), intPtr(100)
	p2 := comment("c2", "", 20)
	p2.Page, p2.PositionX, p2.PositionY = intPtr(2), intPtr(200), intPtr(200)
	p3 := comment("c3", "", 30)
	p3.Page, p3.PositionX, p3.PositionY = intPtr(2), intPtr(300), intPtr(300)

	pins := Pins([]store.Comment{p1, p2, p3}, AnchorPDF)
	if len(pins) != 3 {
		t.Fatalf("expected 3 pins, got %d", len(pins))
	}

	onPage := PagePins(pins, 2)
	if len(onPage) != 2 {
		t.Fatalf("expected 2 pins on page 2, got %d", len(onPage))
	}
	if onPage[0].Number != 2 || onPage[1].Number != 3 {
		t.Fatalf("page filtering must not renumber: got %d, %d", onPage[0].Number, onPage[1].Number)
	}
}

func TestAnchorKindForMime(t *testing.T) {
	cases := []struct {
		mime string
		want AnchorKind
	}{
		{"image/png", AnchorImage},
		{"image/jpeg", AnchorImage},
		{"video/mp4", AnchorVideo},
		{"application/pdf", AnchorPDF},
		{"text/plain", AnchorNone},
		{"", AnchorNone},
	}
	for _, c := range cases {
		if got := AnchorKindForMime(c.mime); got != c.want {
			t.Errorf("AnchorKindForMime(%q) = %s, want %s", c.mime, got, c.want)
		}
	}
}

func TestSummarizeCountsAndMaxTime(t *testing.T) {
	tags := []string{TagToDo, TagResolved, TagInProgress, TagResolved}
	offsets := []int{0, -5, -2, -8}
	input := make([]store.Comment, 0, len(tags))
	for i, tag := range tags {
		c := comment("c"+string(rune('1'+i)), "", offsets[i])
		c.Tag = tag
		input = append(input, c)
	}

	summary := Summarize(input)
	if summary.TotalComments != 4 {
		t.Fatalf("totalComments = %d, want 4", summary.TotalComments)
	}
	if summary.UnresolvedComments != 2 {
		t.Fatalf("unresolvedComments = %d, want 2", summary.UnresolvedComments)
	}
	if summary.LastCommentTime == nil || !summary.LastCommentTime.Equal(base) {
		t.Fatalf("lastCommentTime = %v, want %v", summary.LastCommentTime, base)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	summary := Summarize(nil)
	if summary.TotalComments != 0 || summary.UnresolvedComments != 0 || summary.LastCommentTime != nil {
		t.Fatalf("empty summary should be zero-valued, got %+v", summary)
	}
	if summary.HasUnread(time.Time{}) {
		t.Fatal("empty project can never have unread comments")
	}
}

func TestHasUnread(t *testing.T) {
	summary := Summarize([]store.Comment{comment("c1", "", 0)})

	if !summary.HasUnread(time.Time{}) {
		t.Fatal("missing view record must mean unread")
	}
	if summary.HasUnread(base.Add(time.Second)) {
		t.Fatal("viewing after the last comment must clear unread")
	}
	if summary.HasUnread(base) {
		t.Fatal("comparison is strictly greater: equal timestamps are read")
	}
}
