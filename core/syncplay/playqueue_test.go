package syncplay

import (
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func queueItemIDs(q *PlayQueue) []int64 {
	playlist := q.Playlist()
	out := make([]int64, len(playlist))
	for i, it := range playlist {
		out[i] = it.ItemID
	}
	return out
}

func assertOrder(t *testing.T, q *PlayQueue, want []int64) {
	t.Helper()
	got := queueItemIDs(q)
	if len(got) != len(want) {
		t.Fatalf("队列长度 = %d, 期望 %d (%v vs %v)", len(got), len(want), got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("队列顺序 = %v, 期望 %v", got, want)
		}
	}
}

func assertCurrent(t *testing.T, q *PlayQueue, wantItemID int64) {
	t.Helper()
	cur, ok := q.CurrentItem()
	if !ok {
		t.Fatalf("无当前条目, 期望 itemId=%d", wantItemID)
	}
	if cur.ItemID != wantItemID {
		t.Fatalf("当前条目 itemId = %d, 期望 %d", cur.ItemID, wantItemID)
	}
}

func TestSetPlaylist(t *testing.T) {
	tests := []struct {
		name         string
		itemIDs      []int64
		playingIndex int
		wantCursor   int
	}{
		{"正常起始位置", []int64{10, 20, 30}, 1, 1},
		{"越界落回首条", []int64{10, 20, 30}, 7, 0},
		{"负值落回首条", []int64{10, 20, 30}, -2, 0},
		{"空队列无选中", nil, 0, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewPlayQueue(newFakeClock())
			q.SetPlaylist(tt.itemIDs, tt.playingIndex)
			if q.CurrentIndex() != tt.wantCursor {
				t.Errorf("CurrentIndex() = %d, 期望 %d", q.CurrentIndex(), tt.wantCursor)
			}
			assertOrder(t, q, tt.itemIDs)
		})
	}
}

func TestPlaylistItemIDsStable(t *testing.T) {
	q := NewPlayQueue(newFakeClock())
	q.SetPlaylist([]int64{10, 10, 10}, 0)

	playlist := q.Playlist()
	seen := make(map[string]bool)
	for _, it := range playlist {
		if seen[it.PlaylistItemID] {
			t.Fatalf("重复的 playlistItemId: %s", it.PlaylistItemID)
		}
		seen[it.PlaylistItemID] = true
	}

	// 重建队列后标识不得复用
	first := playlist[0].PlaylistItemID
	q.SetPlaylist([]int64{10}, 0)
	if got := q.Playlist()[0].PlaylistItemID; got == first {
		t.Errorf("重建队列复用了旧标识 %s", got)
	}
}

func TestQueueAppendAndNext(t *testing.T) {
	q := NewPlayQueue(newFakeClock())
	q.SetPlaylist([]int64{1, 2}, 0)
	q.Queue([]int64{3, 4})
	assertOrder(t, q, []int64{1, 2, 3, 4})

	q.SetPlayingItemByIndex(1)
	q.QueueNext([]int64{9})
	assertOrder(t, q, []int64{1, 2, 9, 3, 4})
	assertCurrent(t, q, 2)
}

func TestQueueIntoEmpty(t *testing.T) {
	q := NewPlayQueue(newFakeClock())
	q.Queue([]int64{5})
	if q.CurrentIndex() != 0 {
		t.Errorf("入队后 CurrentIndex() = %d, 期望 0", q.CurrentIndex())
	}

	q2 := NewPlayQueue(newFakeClock())
	q2.QueueNext([]int64{5, 6})
	assertOrder(t, q2, []int64{5, 6})
	if q2.CurrentIndex() != 0 {
		t.Errorf("QueueNext 入空队列后 CurrentIndex() = %d, 期望 0", q2.CurrentIndex())
	}
}

func TestRemoveFromPlaylist(t *testing.T) {
	t.Run("移除非当前条目指针跟随", func(t *testing.T) {
		q := NewPlayQueue(newFakeClock())
		q.SetPlaylist([]int64{1, 2, 3, 4}, 2)
		playlist := q.Playlist()

		removed := q.RemoveFromPlaylist([]string{playlist[0].PlaylistItemID})
		if removed {
			t.Error("RemoveFromPlaylist 误报移除了当前条目")
		}
		assertOrder(t, q, []int64{2, 3, 4})
		assertCurrent(t, q, 3)
	})

	t.Run("移除当前条目指针移到后继", func(t *testing.T) {
		q := NewPlayQueue(newFakeClock())
		q.SetPlaylist([]int64{1, 2, 3}, 1)
		playlist := q.Playlist()

		removed := q.RemoveFromPlaylist([]string{playlist[1].PlaylistItemID})
		if !removed {
			t.Error("RemoveFromPlaylist 未报告移除了当前条目")
		}
		assertCurrent(t, q, 3)
	})

	t.Run("移除队尾当前条目回到首条", func(t *testing.T) {
		q := NewPlayQueue(newFakeClock())
		q.SetPlaylist([]int64{1, 2, 3}, 2)
		playlist := q.Playlist()

		q.RemoveFromPlaylist([]string{playlist[2].PlaylistItemID})
		assertCurrent(t, q, 1)
	})

	t.Run("清空队列", func(t *testing.T) {
		q := NewPlayQueue(newFakeClock())
		q.SetPlaylist([]int64{1, 2}, 0)
		playlist := q.Playlist()

		q.RemoveFromPlaylist([]string{playlist[0].PlaylistItemID, playlist[1].PlaylistItemID})
		if q.CurrentIndex() != -1 {
			t.Errorf("清空后 CurrentIndex() = %d, 期望 -1", q.CurrentIndex())
		}
		if q.Len() != 0 {
			t.Errorf("清空后 Len() = %d, 期望 0", q.Len())
		}
	})

	t.Run("未知标识为空操作", func(t *testing.T) {
		q := NewPlayQueue(newFakeClock())
		q.SetPlaylist([]int64{1, 2}, 1)
		q.RemoveFromPlaylist([]string{"no-such-id"})
		assertOrder(t, q, []int64{1, 2})
		assertCurrent(t, q, 2)
	})
}

func TestMovePlaylistItem(t *testing.T) {
	tests := []struct {
		name      string
		moveIndex int
		newIndex  int
		wantOrder []int64
	}{
		{"前移", 2, 0, []int64{3, 1, 2, 4}},
		{"后移", 0, 2, []int64{2, 3, 1, 4}},
		{"越界钳制到队尾", 0, 99, []int64{2, 3, 4, 1}},
		{"负值钳制到队首", 3, -5, []int64{4, 1, 2, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewPlayQueue(newFakeClock())
			q.SetPlaylist([]int64{1, 2, 3, 4}, 1)
			playlist := q.Playlist()

			if !q.MovePlaylistItem(playlist[tt.moveIndex].PlaylistItemID, tt.newIndex) {
				t.Fatal("MovePlaylistItem 返回 false")
			}
			assertOrder(t, q, tt.wantOrder)
			// 指针始终跟随原当前条目
			assertCurrent(t, q, 2)
		})
	}

	t.Run("未知标识返回false", func(t *testing.T) {
		q := NewPlayQueue(newFakeClock())
		q.SetPlaylist([]int64{1, 2}, 0)
		if q.MovePlaylistItem("no-such-id", 1) {
			t.Error("未知标识 MovePlaylistItem 应返回 false")
		}
	})
}

func TestNextPrevious(t *testing.T) {
	tests := []struct {
		name       string
		repeat     RepeatMode
		start      int
		op         string
		wantOK     bool
		wantItemID int64
	}{
		{"None前进", RepeatModeNone, 0, "next", true, 2},
		{"None队尾停止", RepeatModeNone, 2, "next", false, 3},
		{"All队尾回绕", RepeatModeAll, 2, "next", true, 1},
		{"One停在原地", RepeatModeOne, 1, "next", true, 2},
		{"None回退", RepeatModeNone, 1, "prev", true, 1},
		{"None队首停止", RepeatModeNone, 0, "prev", false, 1},
		{"All队首回绕", RepeatModeAll, 0, "prev", true, 3},
		{"One回退停在原地", RepeatModeOne, 1, "prev", true, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewPlayQueue(newFakeClock())
			q.SetPlaylist([]int64{1, 2, 3}, tt.start)
			q.SetRepeatMode(tt.repeat)

			var ok bool
			if tt.op == "next" {
				ok = q.Next()
			} else {
				ok = q.Previous()
			}
			if ok != tt.wantOK {
				t.Errorf("%s 返回 %v, 期望 %v", tt.op, ok, tt.wantOK)
			}
			assertCurrent(t, q, tt.wantItemID)
		})
	}
}

func TestShuffleMode(t *testing.T) {
	q := NewPlayQueue(newFakeClock())
	q.SetPlaylist([]int64{1, 2, 3, 4, 5}, 2)

	if !q.SetShuffleMode(ShuffleModeShuffle) {
		t.Fatal("SetShuffleMode(Shuffle) 返回 false")
	}
	// 当前条目固定在首位
	if q.CurrentIndex() != 0 {
		t.Errorf("洗牌后 CurrentIndex() = %d, 期望 0", q.CurrentIndex())
	}
	assertCurrent(t, q, 3)

	// 所有条目仍在队列中
	got := queueItemIDs(q)
	seen := make(map[int64]bool)
	for _, id := range got {
		seen[id] = true
	}
	for _, id := range []int64{1, 2, 3, 4, 5} {
		if !seen[id] {
			t.Fatalf("洗牌丢失条目 %d: %v", id, got)
		}
	}

	// 回到 Sorted 恢复自然序，指针跟随当前条目
	if !q.SetShuffleMode(ShuffleModeSorted) {
		t.Fatal("SetShuffleMode(Sorted) 返回 false")
	}
	assertOrder(t, q, []int64{1, 2, 3, 4, 5})
	assertCurrent(t, q, 3)
	if q.CurrentIndex() != 2 {
		t.Errorf("恢复自然序后 CurrentIndex() = %d, 期望 2", q.CurrentIndex())
	}
}

func TestSetModeRejectsUnknown(t *testing.T) {
	q := NewPlayQueue(newFakeClock())
	q.SetPlaylist([]int64{1}, 0)

	if q.SetShuffleMode("Random") {
		t.Error("未知顺序模式应返回 false")
	}
	if q.SetRepeatMode("RepeatTwice") {
		t.Error("未知循环模式应返回 false")
	}
}

func TestVersionBumps(t *testing.T) {
	clock := newFakeClock()
	q := NewPlayQueue(clock)

	v := q.Version()
	q.SetPlaylist([]int64{1, 2}, 0)
	if q.Version() <= v {
		t.Error("SetPlaylist 未递增版本号")
	}

	v = q.Version()
	clock.Advance(time.Second)
	q.Queue([]int64{3})
	if q.Version() <= v {
		t.Error("Queue 未递增版本号")
	}
	if !q.LastChange().Equal(clock.Now()) {
		t.Errorf("LastChange() = %v, 期望 %v", q.LastChange(), clock.Now())
	}
}
