package syncplay

import (
	"fmt"
	"math/rand"
	"time"
)

// ShuffleMode 播放顺序模式
type ShuffleMode string

const (
	ShuffleModeSorted  ShuffleMode = "Sorted"
	ShuffleModeShuffle ShuffleMode = "Shuffle"
)

// RepeatMode 循环模式
type RepeatMode string

const (
	RepeatModeNone RepeatMode = "RepeatNone"
	RepeatModeAll  RepeatMode = "RepeatAll"
	RepeatModeOne  RepeatMode = "RepeatOne"
)

// QueueItem 队列内的一个条目。PlaylistItemID 在队列内唯一且稳定，
// 同一媒体条目可重复入队而互不混淆。
type QueueItem struct {
	ItemID         int64  `json:"itemId"`
	PlaylistItemID string `json:"playlistItemId"`
}

// PlayQueue 组内共享的播放队列。canonical 保存自然序（Sorted 模式下
// QueueNext 与移动直接改写它），view 是当前播放顺序在 canonical 上的
// 下标排列；Sorted 模式下 view 恒等于自然序，Shuffle 模式下是一次
// 随机排列，此时 QueueNext 与移动只改 view，新条目追加在 canonical 末尾。
// cursor 是 view 内的播放位置，-1 表示无选中条目。
// 非并发安全，由持有分组锁的调用方串行访问。
type PlayQueue struct {
	canonical []QueueItem
	view      []int
	cursor    int

	shuffleMode ShuffleMode
	repeatMode  RepeatMode

	version    uint64
	lastChange time.Time

	nextID uint64
	rng    *rand.Rand
	clock  Clock
}

// NewPlayQueue 创建空队列
func NewPlayQueue(clock Clock) *PlayQueue {
	return &PlayQueue{
		cursor:      -1,
		shuffleMode: ShuffleModeSorted,
		repeatMode:  RepeatModeNone,
		rng:         rand.New(rand.NewSource(clock.Now().UnixNano())),
		clock:       clock,
		lastChange:  clock.Now(),
	}
}

func (q *PlayQueue) bump() {
	q.version++
	q.lastChange = q.clock.Now()
}

func (q *PlayQueue) newItem(itemID int64) QueueItem {
	q.nextID++
	return QueueItem{
		ItemID:         itemID,
		PlaylistItemID: fmt.Sprintf("%d", q.nextID),
	}
}

// identityView 重建自然序排列
func (q *PlayQueue) identityView() {
	q.view = make([]int, len(q.canonical))
	for i := range q.view {
		q.view[i] = i
	}
}

// shuffleView 重建随机排列。keepFirst 为真时当前条目固定在首位，
// 其余条目洗牌。
func (q *PlayQueue) shuffleView(keepFirst bool) {
	current := -1
	if keepFirst && q.cursor >= 0 {
		current = q.view[q.cursor]
	}
	q.identityView()
	q.rng.Shuffle(len(q.view), func(i, j int) {
		q.view[i], q.view[j] = q.view[j], q.view[i]
	})
	if current < 0 {
		return
	}
	for i, c := range q.view {
		if c == current {
			q.view[0], q.view[i] = q.view[i], q.view[0]
			break
		}
	}
	q.cursor = 0
}

// Version 当前队列版本号
func (q *PlayQueue) Version() uint64 { return q.version }

// LastChange 最近一次变更时间
func (q *PlayQueue) LastChange() time.Time { return q.lastChange }

// ShuffleModeValue 当前顺序模式
func (q *PlayQueue) ShuffleModeValue() ShuffleMode { return q.shuffleMode }

// RepeatModeValue 当前循环模式
func (q *PlayQueue) RepeatModeValue() RepeatMode { return q.repeatMode }

// Len 队列长度
func (q *PlayQueue) Len() int { return len(q.canonical) }

// CurrentIndex 播放顺序内的当前下标，-1 表示无选中
func (q *PlayQueue) CurrentIndex() int { return q.cursor }

// CurrentItem 当前条目，无选中时返回零值与 false
func (q *PlayQueue) CurrentItem() (QueueItem, bool) {
	if q.cursor < 0 || q.cursor >= len(q.view) {
		return QueueItem{}, false
	}
	return q.canonical[q.view[q.cursor]], true
}

// Playlist 按当前播放顺序导出队列快照
func (q *PlayQueue) Playlist() []QueueItem {
	out := make([]QueueItem, len(q.view))
	for i, c := range q.view {
		out[i] = q.canonical[c]
	}
	return out
}

// Reset 清空队列并复位模式
func (q *PlayQueue) Reset() {
	q.canonical = nil
	q.view = nil
	q.cursor = -1
	q.shuffleMode = ShuffleModeSorted
	q.repeatMode = RepeatModeNone
	q.bump()
}

// SetPlaylist 以新条目集合替换整个队列。playingIndex 为播放顺序内
// 的起始下标，越界时落回 0（空队列则为 -1）。
func (q *PlayQueue) SetPlaylist(itemIDs []int64, playingIndex int) {
	q.canonical = make([]QueueItem, 0, len(itemIDs))
	for _, id := range itemIDs {
		q.canonical = append(q.canonical, q.newItem(id))
	}
	if q.shuffleMode == ShuffleModeShuffle {
		q.cursor = -1
		q.shuffleView(false)
	} else {
		q.identityView()
	}
	switch {
	case len(q.view) == 0:
		q.cursor = -1
	case playingIndex >= 0 && playingIndex < len(q.view):
		q.cursor = playingIndex
	default:
		q.cursor = 0
	}
	q.bump()
}

// SetPlayingItemByIndex 按播放顺序下标选中条目
func (q *PlayQueue) SetPlayingItemByIndex(index int) bool {
	if index < 0 || index >= len(q.view) {
		return false
	}
	q.cursor = index
	q.bump()
	return true
}

// FindByPlaylistID 按队列条目标识查找条目
func (q *PlayQueue) FindByPlaylistID(playlistItemID string) (QueueItem, bool) {
	for _, it := range q.canonical {
		if it.PlaylistItemID == playlistItemID {
			return it, true
		}
	}
	return QueueItem{}, false
}

// SetPlayingItemByPlaylistID 按队列条目标识选中条目
func (q *PlayQueue) SetPlayingItemByPlaylistID(playlistItemID string) bool {
	for i, c := range q.view {
		if q.canonical[c].PlaylistItemID == playlistItemID {
			q.cursor = i
			q.bump()
			return true
		}
	}
	return false
}

// Queue 追加条目到队列末尾
func (q *PlayQueue) Queue(itemIDs []int64) {
	for _, id := range itemIDs {
		q.canonical = append(q.canonical, q.newItem(id))
		q.view = append(q.view, len(q.canonical)-1)
	}
	if q.cursor < 0 && len(q.view) > 0 {
		q.cursor = 0
	}
	q.bump()
}

// QueueNext 插入条目到当前条目之后
func (q *PlayQueue) QueueNext(itemIDs []int64) {
	if q.cursor < 0 {
		q.Queue(itemIDs)
		return
	}
	fresh := make([]int, 0, len(itemIDs))
	for _, id := range itemIDs {
		q.canonical = append(q.canonical, q.newItem(id))
		fresh = append(fresh, len(q.canonical)-1)
	}
	at := q.cursor + 1
	rest := make([]int, len(q.view[at:]))
	copy(rest, q.view[at:])
	q.view = append(q.view[:at], append(fresh, rest...)...)
	if q.shuffleMode == ShuffleModeSorted {
		q.canonical = q.Playlist()
		q.identityView()
	}
	q.bump()
}

// RemoveFromPlaylist 按条目标识移除。当前条目被移除时指针移到
// 下一个仍在队列的条目；越过队尾则回到 0，空队列为 -1。
// 返回是否移除了当前条目。
func (q *PlayQueue) RemoveFromPlaylist(playlistItemIDs []string) (removedPlaying bool) {
	doomed := make(map[string]bool, len(playlistItemIDs))
	for _, id := range playlistItemIDs {
		doomed[id] = true
	}

	currentID := ""
	if cur, ok := q.CurrentItem(); ok {
		currentID = cur.PlaylistItemID
		removedPlaying = doomed[currentID]
	}

	// 当前条目被移除：先在旧 view 上找到其后第一个幸存者
	successorID := ""
	if removedPlaying {
		for i := q.cursor + 1; i < len(q.view); i++ {
			it := q.canonical[q.view[i]]
			if !doomed[it.PlaylistItemID] {
				successorID = it.PlaylistItemID
				break
			}
		}
	}

	kept := make([]QueueItem, 0, len(q.canonical))
	for _, it := range q.canonical {
		if !doomed[it.PlaylistItemID] {
			kept = append(kept, it)
		}
	}

	// 以旧播放顺序重建 view
	order := make([]QueueItem, 0, len(kept))
	for _, c := range q.view {
		if it := q.canonical[c]; !doomed[it.PlaylistItemID] {
			order = append(order, it)
		}
	}
	q.canonical = kept
	pos := make(map[string]int, len(kept))
	for i, it := range kept {
		pos[it.PlaylistItemID] = i
	}
	q.view = make([]int, 0, len(order))
	for _, it := range order {
		q.view = append(q.view, pos[it.PlaylistItemID])
	}

	switch {
	case len(q.view) == 0:
		q.cursor = -1
	case removedPlaying && successorID != "":
		q.SetPlayingItemByPlaylistID(successorID)
	case removedPlaying:
		q.cursor = 0
	default:
		q.SetPlayingItemByPlaylistID(currentID)
	}
	q.bump()
	return removedPlaying
}

// MovePlaylistItem 将条目移动到播放顺序内的新下标
func (q *PlayQueue) MovePlaylistItem(playlistItemID string, newIndex int) bool {
	from := -1
	for i, c := range q.view {
		if q.canonical[c].PlaylistItemID == playlistItemID {
			from = i
			break
		}
	}
	if from < 0 {
		return false
	}
	if newIndex < 0 {
		newIndex = 0
	}
	if newIndex >= len(q.view) {
		newIndex = len(q.view) - 1
	}

	currentID := ""
	if cur, ok := q.CurrentItem(); ok {
		currentID = cur.PlaylistItemID
	}

	moved := q.view[from]
	q.view = append(q.view[:from], q.view[from+1:]...)
	rest := make([]int, len(q.view[newIndex:]))
	copy(rest, q.view[newIndex:])
	q.view = append(q.view[:newIndex], append([]int{moved}, rest...)...)
	if q.shuffleMode == ShuffleModeSorted {
		q.canonical = q.Playlist()
		q.identityView()
	}

	if currentID != "" {
		q.SetPlayingItemByPlaylistID(currentID)
	} else {
		q.bump()
	}
	return true
}

// Next 前进到下一条目。RepeatOne 停在原地，RepeatAll 从队尾回绕，
// RepeatNone 到队尾即止。返回是否仍有条目可播。
func (q *PlayQueue) Next() bool {
	if len(q.view) == 0 || q.cursor < 0 {
		return false
	}
	switch q.repeatMode {
	case RepeatModeOne:
		q.bump()
		return true
	case RepeatModeAll:
		q.cursor = (q.cursor + 1) % len(q.view)
		q.bump()
		return true
	default:
		if q.cursor+1 >= len(q.view) {
			return false
		}
		q.cursor++
		q.bump()
		return true
	}
}

// Previous 回退到上一条目，回绕规则与 Next 对称
func (q *PlayQueue) Previous() bool {
	if len(q.view) == 0 || q.cursor < 0 {
		return false
	}
	switch q.repeatMode {
	case RepeatModeOne:
		q.bump()
		return true
	case RepeatModeAll:
		q.cursor = (q.cursor - 1 + len(q.view)) % len(q.view)
		q.bump()
		return true
	default:
		if q.cursor == 0 {
			return false
		}
		q.cursor--
		q.bump()
		return true
	}
}

// SetShuffleMode 切换播放顺序模式。进入 Shuffle 时当前条目
// 固定在首位，其余条目洗牌；回到 Sorted 时恢复自然序并让
// 指针跟随当前条目。
func (q *PlayQueue) SetShuffleMode(mode ShuffleMode) bool {
	if mode != ShuffleModeSorted && mode != ShuffleModeShuffle {
		return false
	}
	if mode == q.shuffleMode {
		q.bump()
		return true
	}
	currentID := ""
	if cur, ok := q.CurrentItem(); ok {
		currentID = cur.PlaylistItemID
	}
	q.shuffleMode = mode
	if mode == ShuffleModeShuffle {
		q.shuffleView(true)
	} else {
		q.identityView()
		if currentID != "" {
			q.SetPlayingItemByPlaylistID(currentID)
			return true
		}
	}
	q.bump()
	return true
}

// SetRepeatMode 切换循环模式
func (q *PlayQueue) SetRepeatMode(mode RepeatMode) bool {
	switch mode {
	case RepeatModeNone, RepeatModeAll, RepeatModeOne:
		q.repeatMode = mode
		q.bump()
		return true
	}
	return false
}
