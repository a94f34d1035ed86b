package threads_test

import (
	"slices"
	"testing"
	"time"

	"codexmonitor/internal/threads"
	"codexmonitor/internal/types"
)

func reduceAll(s *threads.State, actions ...threads.Action) *threads.State {
	for _, a := range actions {
		s = threads.Reduce(s, a)
	}
	return s
}

func ids(list []threads.ThreadSummary) []string {
	out := make([]string, 0, len(list))
	for _, t := range list {
		out = append(out, t.ID)
	}
	return out
}

func equalIDs(t *testing.T, got []threads.ThreadSummary, want ...string) {
	t.Helper()
	g := ids(got)
	if len(g) != len(want) {
		t.Fatalf("expected ids %v, got %v", want, g)
	}
	for i := range want {
		if g[i] != want[i] {
			t.Fatalf("expected ids %v, got %v", want, g)
		}
	}
}

func TestHiddenThreadSurvivesServerSync(t *testing.T) {
	now := time.Now()
	s := reduceAll(threads.NewState(),
		threads.EnsureThread{WorkspaceID: "ws-1", ThreadID: "t-1", Timestamp: now},
		threads.HideThread{WorkspaceID: "ws-1", ThreadID: "t-1"},
		threads.SetThreads{WorkspaceID: "ws-1", Threads: []threads.ThreadSummary{
			{ID: "t-1", Name: "resurrected", UpdatedAt: now},
			{ID: "t-2", Name: "other", UpdatedAt: now},
		}},
	)
	equalIDs(t, s.Threads("ws-1"), "t-2")
	if !s.IsHidden("ws-1", "t-1") {
		t.Fatalf("expected t-1 to stay hidden")
	}

	// Ensure must not resurrect it either.
	after := threads.Reduce(s, threads.EnsureThread{WorkspaceID: "ws-1", ThreadID: "t-1", Timestamp: now})
	if after != s {
		t.Fatalf("expected ensureThread on hidden thread to be a no-op")
	}
}

func TestEnsureThreadSeedsStatusAndActive(t *testing.T) {
	s := threads.Reduce(threads.NewState(), threads.EnsureThread{WorkspaceID: "ws-1", ThreadID: "t-1"})
	equalIDs(t, s.Threads("ws-1"), "t-1")
	if s.Threads("ws-1")[0].Name != threads.PlaceholderThreadName {
		t.Fatalf("expected placeholder name, got %+v", s.Threads("ws-1")[0])
	}
	if _, ok := s.ThreadStatusByID["t-1"]; !ok {
		t.Fatalf("expected default status to be seeded")
	}
	if s.ActiveThreadID("ws-1") != "t-1" {
		t.Fatalf("expected first thread to become active")
	}

	s2 := threads.Reduce(s, threads.EnsureThread{WorkspaceID: "ws-1", ThreadID: "t-2"})
	if s2.ActiveThreadID("ws-1") != "t-1" {
		t.Fatalf("expected active thread to be kept, got %q", s2.ActiveThreadID("ws-1"))
	}
	if again := threads.Reduce(s2, threads.EnsureThread{WorkspaceID: "ws-1", ThreadID: "t-2"}); again != s2 {
		t.Fatalf("expected ensure of existing thread to return identical state")
	}
}

func TestSetActiveThreadClearsUnreadOnly(t *testing.T) {
	start := time.UnixMilli(5_000)
	s := reduceAll(threads.NewState(),
		threads.EnsureThread{WorkspaceID: "ws-1", ThreadID: "t-1"},
		threads.EnsureThread{WorkspaceID: "ws-1", ThreadID: "t-2"},
		threads.MarkProcessing{ThreadID: "t-2", IsProcessing: true, Timestamp: start},
		threads.MarkReviewing{ThreadID: "t-2", IsReviewing: true},
		threads.MarkUnread{ThreadID: "t-2", HasUnread: true},
		threads.SetActiveThreadID{WorkspaceID: "ws-1", ThreadID: "t-2"},
	)
	status := s.Status("t-2")
	if status.HasUnread {
		t.Fatalf("expected unread cleared on activation")
	}
	if !status.IsProcessing || !status.IsReviewing || !status.ProcessingStartedAt.Equal(start) {
		t.Fatalf("expected other status fields preserved, got %+v", status)
	}
	if again := threads.Reduce(s, threads.SetActiveThreadID{WorkspaceID: "ws-1", ThreadID: "t-2"}); again != s {
		t.Fatalf("expected re-selecting the same thread to be a no-op")
	}
}

func TestHideThreadRepointsActiveAndIsIdempotent(t *testing.T) {
	s := reduceAll(threads.NewState(),
		threads.SetThreads{WorkspaceID: "ws-1", Threads: []threads.ThreadSummary{{ID: "a"}, {ID: "b"}, {ID: "c"}}},
		threads.SetActiveThreadID{WorkspaceID: "ws-1", ThreadID: "a"},
		threads.HideThread{WorkspaceID: "ws-1", ThreadID: "a"},
	)
	equalIDs(t, s.Threads("ws-1"), "b", "c")
	if s.ActiveThreadID("ws-1") != "b" {
		t.Fatalf("expected active to move to next remaining thread, got %q", s.ActiveThreadID("ws-1"))
	}
	if again := threads.Reduce(s, threads.HideThread{WorkspaceID: "ws-1", ThreadID: "a"}); again != s {
		t.Fatalf("expected second hide to be a no-op")
	}

	s = reduceAll(s,
		threads.HideThread{WorkspaceID: "ws-1", ThreadID: "c"},
		threads.HideThread{WorkspaceID: "ws-1", ThreadID: "b"},
	)
	if s.ActiveThreadID("ws-1") != "" {
		t.Fatalf("expected no active thread after hiding all, got %q", s.ActiveThreadID("ws-1"))
	}
}

func TestRemoveThreadDropsDerivedState(t *testing.T) {
	now := time.UnixMilli(1_000)
	s := reduceAll(threads.NewState(),
		threads.SetThreads{WorkspaceID: "ws-1", Threads: []threads.ThreadSummary{{ID: "a"}, {ID: "b"}}},
		threads.SetActiveThreadID{WorkspaceID: "ws-1", ThreadID: "a"},
		threads.MarkProcessing{ThreadID: "a", IsProcessing: true, Timestamp: now},
		threads.UpsertItem{ThreadID: "a", Item: types.ConversationItem{ID: "i1", Kind: types.ItemKindMessage}},
		threads.SetActiveTurnID{ThreadID: "a", TurnID: "turn-1"},
		threads.SetTurnDiff{ThreadID: "a", Diff: "diff --git"},
		threads.SetThreadPlan{ThreadID: "a", Plan: &threads.TurnPlan{TurnID: "turn-1"}},
		threads.SetThreadParent{ThreadID: "a", ParentID: "b"},
		threads.MarkThreadActivity{ThreadID: "a", Timestamp: now},
	)
	before := s
	s = threads.Reduce(s, threads.RemoveThread{WorkspaceID: "ws-1", ThreadID: "a"})

	equalIDs(t, s.Threads("ws-1"), "b")
	if s.ActiveThreadID("ws-1") != "b" {
		t.Fatalf("expected active repointed to b, got %q", s.ActiveThreadID("ws-1"))
	}
	if _, ok := s.ThreadStatusByID["a"]; ok {
		t.Fatalf("expected status removed")
	}
	if _, ok := s.ItemsByThread["a"]; ok {
		t.Fatalf("expected items removed")
	}
	if _, ok := s.ActiveTurnIDByThread["a"]; ok {
		t.Fatalf("expected active turn removed")
	}
	if _, ok := s.TurnDiffByThread["a"]; ok {
		t.Fatalf("expected diff removed")
	}
	if _, ok := s.PlanByThread["a"]; ok {
		t.Fatalf("expected plan removed")
	}
	if _, ok := s.ThreadParentByID["a"]; ok {
		t.Fatalf("expected parent link removed")
	}

	// Previous snapshot is untouched.
	if _, ok := before.ThreadStatusByID["a"]; !ok || len(before.Threads("ws-1")) != 2 {
		t.Fatalf("expected previous state to be immutable")
	}
	if again := threads.Reduce(s, threads.RemoveThread{WorkspaceID: "ws-1", ThreadID: "a"}); again != s {
		t.Fatalf("expected removing an unknown thread to be a no-op")
	}
}

func TestSetThreadParentGuards(t *testing.T) {
	s := threads.NewState()
	if next := threads.Reduce(s, threads.SetThreadParent{ThreadID: "a", ParentID: "a"}); next != s {
		t.Fatalf("expected self edge rejected")
	}
	if next := threads.Reduce(s, threads.SetThreadParent{ThreadID: "", ParentID: "a"}); next != s {
		t.Fatalf("expected empty child rejected")
	}
	s = threads.Reduce(s, threads.SetThreadParent{ThreadID: "child", ParentID: "root"})
	if s.ThreadParentByID["child"] != "root" {
		t.Fatalf("expected edge recorded")
	}
	if next := threads.Reduce(s, threads.SetThreadParent{ThreadID: "child", ParentID: "root"}); next != s {
		t.Fatalf("expected identical edge to be a no-op")
	}
}

func TestMarkProcessingPreservesStartAndComputesDuration(t *testing.T) {
	start := time.UnixMilli(10_000)
	s := threads.Reduce(threads.NewState(), threads.MarkProcessing{ThreadID: "t", IsProcessing: true, Timestamp: start})
	if !s.Status("t").ProcessingStartedAt.Equal(start) {
		t.Fatalf("expected start recorded, got %+v", s.Status("t"))
	}

	same := threads.Reduce(s, threads.MarkProcessing{ThreadID: "t", IsProcessing: true, Timestamp: start})
	if same != s {
		t.Fatalf("expected identical state for repeated processing signal")
	}
	later := threads.Reduce(s, threads.MarkProcessing{ThreadID: "t", IsProcessing: true, Timestamp: start.Add(time.Minute)})
	if later != s {
		t.Fatalf("expected in-flight start timestamp not to reset")
	}

	stopped := threads.Reduce(s, threads.MarkProcessing{ThreadID: "t", IsProcessing: false, Timestamp: start.Add(42 * time.Second)})
	status := stopped.Status("t")
	if status.IsProcessing || !status.ProcessingStartedAt.IsZero() {
		t.Fatalf("expected processing cleared, got %+v", status)
	}
	if status.LastDuration == nil || *status.LastDuration != 42*time.Second {
		t.Fatalf("expected 42s duration, got %+v", status.LastDuration)
	}
	if again := threads.Reduce(stopped, threads.MarkProcessing{ThreadID: "t", IsProcessing: false, Timestamp: start.Add(time.Hour)}); again != stopped {
		t.Fatalf("expected repeated stop to be a no-op")
	}
}

func TestMarkProcessingClampsNegativeDuration(t *testing.T) {
	start := time.UnixMilli(10_000)
	s := reduceAll(threads.NewState(),
		threads.MarkProcessing{ThreadID: "t", IsProcessing: true, Timestamp: start},
		threads.MarkProcessing{ThreadID: "t", IsProcessing: false, Timestamp: start.Add(-time.Second)},
	)
	if d := s.Status("t").LastDuration; d == nil || *d != 0 {
		t.Fatalf("expected clamped zero duration, got %v", d)
	}
}

func TestFlagTransitionsAreNoOpsWhenUnchanged(t *testing.T) {
	s := threads.NewState()
	if next := threads.Reduce(s, threads.MarkUnread{ThreadID: "t", HasUnread: false}); next != s {
		t.Fatalf("expected unread=false on unknown thread to be a no-op")
	}
	s = threads.Reduce(s, threads.MarkReviewing{ThreadID: "t", IsReviewing: true})
	if next := threads.Reduce(s, threads.MarkReviewing{ThreadID: "t", IsReviewing: true}); next != s {
		t.Fatalf("expected repeated reviewing to be a no-op")
	}
}

func TestSetThreadNameAndUnknownThread(t *testing.T) {
	s := threads.Reduce(threads.NewState(), threads.SetThreads{WorkspaceID: "ws", Threads: []threads.ThreadSummary{{ID: "a", Name: "old"}}})
	if next := threads.Reduce(s, threads.SetThreadName{WorkspaceID: "ws", ThreadID: "missing", Name: "x"}); next != s {
		t.Fatalf("expected rename of unknown thread to be a no-op")
	}
	s = threads.Reduce(s, threads.SetThreadName{WorkspaceID: "ws", ThreadID: "a", Name: "new"})
	if s.Threads("ws")[0].Name != "new" {
		t.Fatalf("expected rename applied")
	}
}

func TestSetThreadTimestampIsMonotonicAndResplices(t *testing.T) {
	base := time.UnixMilli(100_000)
	s := threads.Reduce(threads.NewState(), threads.SetThreads{WorkspaceID: "ws", Threads: []threads.ThreadSummary{
		{ID: "a", UpdatedAt: base.Add(3 * time.Second)},
		{ID: "b", UpdatedAt: base.Add(2 * time.Second)},
		{ID: "c", UpdatedAt: base.Add(time.Second)},
	}})

	if next := threads.Reduce(s, threads.SetThreadTimestamp{WorkspaceID: "ws", ThreadID: "c", Timestamp: base}); next != s {
		t.Fatalf("expected older timestamp to be ignored")
	}
	s = threads.Reduce(s, threads.SetThreadTimestamp{WorkspaceID: "ws", ThreadID: "c", Timestamp: base.Add(time.Minute)})
	equalIDs(t, s.Threads("ws"), "c", "a", "b")

	created := threads.Reduce(threads.NewState(), threads.SetThreads{
		WorkspaceID: "ws",
		SortKey:     threads.SortByCreatedAt,
		Threads:     []threads.ThreadSummary{{ID: "a", UpdatedAt: base}, {ID: "b", UpdatedAt: base}},
	})
	created = threads.Reduce(created, threads.SetThreadTimestamp{WorkspaceID: "ws", ThreadID: "b", Timestamp: base.Add(time.Minute)})
	equalIDs(t, created.Threads("ws"), "a", "b")
	if !created.Threads("ws")[1].UpdatedAt.Equal(base.Add(time.Minute)) {
		t.Fatalf("expected in-place timestamp update")
	}
}

func TestSetThreadsIdenticalListKeepsState(t *testing.T) {
	list := []threads.ThreadSummary{{ID: "a", Name: "A"}}
	s := threads.Reduce(threads.NewState(), threads.SetThreads{WorkspaceID: "ws", Threads: list})
	if next := threads.Reduce(s, threads.SetThreads{WorkspaceID: "ws", Threads: list}); next != s {
		t.Fatalf("expected identical list to be a no-op")
	}
}

func TestWorkspaceListFlagsAreIndependent(t *testing.T) {
	s := reduceAll(threads.NewState(),
		threads.SetThreadListLoading{WorkspaceID: "ws", IsLoading: true},
		threads.SetThreadListPaging{WorkspaceID: "ws", IsPaging: true},
		threads.SetThreadListCursor{WorkspaceID: "ws", Cursor: "cursor-2"},
		threads.SetThreadListLoading{WorkspaceID: "ws", IsLoading: false},
	)
	if s.ThreadListLoadingByWorkspace["ws"] {
		t.Fatalf("expected loading cleared")
	}
	if !s.ThreadListPagingByWorkspace["ws"] || s.ThreadListCursorByWorkspace["ws"] != "cursor-2" {
		t.Fatalf("expected paging and cursor untouched, got %+v", s)
	}
	if next := threads.Reduce(s, threads.SetThreadListCursor{WorkspaceID: "ws", Cursor: "cursor-2"}); next != s {
		t.Fatalf("expected unchanged cursor to be a no-op")
	}
}

func TestUpsertItemReplacesByID(t *testing.T) {
	s := reduceAll(threads.NewState(),
		threads.UpsertItem{ThreadID: "t", Item: types.ConversationItem{ID: "cmd", Kind: types.ItemKindTool, ToolType: types.ToolTypeCommandExecution, Status: "running"}},
		threads.UpsertItem{ThreadID: "t", Item: types.ConversationItem{ID: "cmd", Kind: types.ItemKindTool, ToolType: types.ToolTypeCommandExecution, Status: "completed"}},
	)
	items := s.ItemsByThread["t"]
	if len(items) != 1 || items[0].Status != "completed" {
		t.Fatalf("expected single replaced item, got %+v", items)
	}
	same := types.ConversationItem{ID: "cmd", Kind: types.ItemKindTool, ToolType: types.ToolTypeCommandExecution, Status: "completed"}
	if next := threads.Reduce(s, threads.UpsertItem{ThreadID: "t", Item: same}); next != s {
		t.Fatalf("expected identical item to be a no-op")
	}
}

func TestSetThreadItemsIdenticalListKeepsState(t *testing.T) {
	items := []types.ConversationItem{
		{ID: "m1", Kind: types.ItemKindMessage, Text: "hello"},
		{ID: "cmd", Kind: types.ItemKindTool, ToolType: types.ToolTypeCommandExecution, Status: "completed"},
	}
	s := threads.Reduce(threads.NewState(), threads.SetThreadItems{ThreadID: "t", Items: items})
	if next := threads.Reduce(s, threads.SetThreadItems{ThreadID: "t", Items: slices.Clone(items)}); next != s {
		t.Fatalf("expected identical items to be a no-op")
	}

	empty := threads.Reduce(threads.NewState(), threads.SetThreadItems{ThreadID: "t"})
	if _, ok := empty.ItemsByThread["t"]; !ok {
		t.Fatalf("expected first empty list to be recorded")
	}

	changed := slices.Clone(items)
	changed[1].Status = "failed"
	if next := threads.Reduce(s, threads.SetThreadItems{ThreadID: "t", Items: changed}); next == s || next.ItemsByThread["t"][1].Status != "failed" {
		t.Fatalf("expected changed items to replace the list")
	}
}

func TestMarkThreadActivityIsMonotonic(t *testing.T) {
	now := time.UnixMilli(50_000)
	s := threads.Reduce(threads.NewState(), threads.MarkThreadActivity{ThreadID: "t", Timestamp: now})
	if next := threads.Reduce(s, threads.MarkThreadActivity{ThreadID: "t", Timestamp: now.Add(-time.Second)}); next != s {
		t.Fatalf("expected older activity ignored")
	}
}

func TestUnknownActionIsNoOp(t *testing.T) {
	s := threads.NewState()
	if next := threads.Reduce(s, nil); next != s {
		t.Fatalf("expected nil action to return state")
	}
}
