package syncplay

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"SyncFM/model"
)

// ========== 测试替身 ==========

type fakeLibrary struct {
	items map[int64]*model.MediaItem
}

func newFakeLibrary(items ...*model.MediaItem) *fakeLibrary {
	lib := &fakeLibrary{items: make(map[int64]*model.MediaItem)}
	for _, it := range items {
		lib.items[it.ID] = it
	}
	return lib
}

func (l *fakeLibrary) Item(ctx context.Context, itemID int64) (*model.MediaItem, error) {
	return l.items[itemID], nil
}

func (l *fakeLibrary) Items(ctx context.Context, itemIDs []int64) ([]*model.MediaItem, error) {
	out := make([]*model.MediaItem, 0, len(itemIDs))
	for _, id := range itemIDs {
		if it, ok := l.items[id]; ok {
			out = append(out, it)
		}
	}
	return out, nil
}

type fakeUsers struct {
	users map[int64]*model.User
}

func newFakeUsers(users ...*model.User) *fakeUsers {
	fu := &fakeUsers{users: make(map[int64]*model.User)}
	for _, u := range users {
		fu.users[u.ID] = u
	}
	return fu
}

func (f *fakeUsers) User(ctx context.Context, userID int64) (*model.User, error) {
	return f.users[userID], nil
}

func (f *fakeUsers) UsersWithSyncPlayAccess(ctx context.Context) ([]*model.User, error) {
	out := make([]*model.User, 0, len(f.users))
	for _, u := range f.users {
		if u.SyncPlayAccess != model.SyncPlayAccessNone {
			out = append(out, u)
		}
	}
	return out, nil
}

func testUser(id int64, name string) *model.User {
	return &model.User{
		ID:               id,
		Username:         name,
		SyncPlayAccess:   model.SyncPlayAccessCreateAndJoin,
		EnableAllFolders: true,
	}
}

func testSession(id string, userID int64, name string) *SessionInfo {
	return &SessionInfo{ID: id, UserID: userID, Username: name}
}

func minuteItem(id int64) *model.MediaItem {
	return &model.MediaItem{ID: id, Name: "item", RunTimeTicks: 60 * TicksPerSecond, FolderID: 1}
}

type testGroup struct {
	c     *GroupController
	clock *fakeClock
	users *fakeUsers
	lib   *fakeLibrary
}

// newTestGroup 建组并让给定会话依次入组，丢弃入组阶段的出站消息
func newTestGroup(t *testing.T, req *NewGroupRequest, sessions ...*SessionInfo) *testGroup {
	t.Helper()
	clock := newFakeClock()
	lib := newFakeLibrary(minuteItem(1), minuteItem(2), minuteItem(3))
	users := newFakeUsers()
	for _, s := range sessions {
		users.users[s.UserID] = testUser(s.UserID, s.Username)
	}
	if req == nil {
		req = &NewGroupRequest{GroupName: "g", OpenPlaybackAccess: true, OpenPlaylistAccess: true}
	}
	c := NewGroupController("group-1", req, sessions[0], clock, lib, zap.NewNop())
	for _, s := range sessions {
		c.SessionJoined(s)
	}
	c.DrainOutbox()
	return &testGroup{c: c, clock: clock, users: users, lib: lib}
}

func (g *testGroup) handle(t *testing.T, sessionID string, req *Request) []envelope {
	t.Helper()
	for id := range g.c.members {
		if id == sessionID {
			g.c.HandleRequest(context.Background(), testSession(sessionID, g.c.members[id].UserID, g.c.members[id].Username), req, g.users)
			return g.c.DrainOutbox()
		}
	}
	t.Fatalf("会话 %s 不在组内", sessionID)
	return nil
}

func commandsTo(out []envelope, sessionID string) []*Command {
	var cmds []*Command
	for _, e := range out {
		if e.SessionID == sessionID && e.Command != nil {
			cmds = append(cmds, e.Command)
		}
	}
	return cmds
}

func updatesOfType(out []envelope, typ GroupUpdateType) []envelope {
	var found []envelope
	for _, e := range out {
		if e.Update != nil && e.Update.Type == typ {
			found = append(found, e)
		}
	}
	return found
}

func lastCommand(t *testing.T, out []envelope, sessionID string) *Command {
	t.Helper()
	cmds := commandsTo(out, sessionID)
	if len(cmds) == 0 {
		t.Fatalf("会话 %s 未收到指令", sessionID)
	}
	return cmds[len(cmds)-1]
}

// ========== 建组与成员进出 ==========

func TestNewGroupDefaults(t *testing.T) {
	clock := newFakeClock()
	creator := testSession("s1", 1, "alice")

	c := NewGroupController("g1", &NewGroupRequest{Visibility: "Sideways"}, creator, clock, newFakeLibrary(), zap.NewNop())
	if c.Access().Visibility() != GroupVisibilityPublic {
		t.Errorf("未知可见性应落回 Public, 得到 %s", c.Access().Visibility())
	}
	if c.Info().GroupName != "alice 的分组" {
		t.Errorf("默认组名 = %q", c.Info().GroupName)
	}
	if c.State() != GroupStateIdle {
		t.Errorf("新组状态 = %s, 期望 Idle", c.State())
	}
}

func TestSessionJoinedNotifications(t *testing.T) {
	g := newTestGroup(t, nil, testSession("s1", 1, "alice"))

	g.c.SessionJoined(testSession("s2", 2, "bob"))
	out := g.c.DrainOutbox()

	joined := updatesOfType(out, GroupUpdateGroupJoined)
	if len(joined) != 1 || joined[0].SessionID != "s2" {
		t.Errorf("GroupJoined 应只发给新成员, 得到 %v", joined)
	}
	userJoined := updatesOfType(out, GroupUpdateUserJoined)
	if len(userJoined) != 1 || userJoined[0].SessionID != "s1" {
		t.Errorf("UserJoined 应只发给其余成员, 得到 %v", userJoined)
	}
	queue := updatesOfType(out, GroupUpdatePlayQueue)
	if len(queue) != 1 || queue[0].SessionID != "s2" {
		t.Errorf("队列快照应只发给新成员, 得到 %v", queue)
	}
}

func TestJoinDuringPlaybackCatchesUp(t *testing.T) {
	g := newTestGroup(t, nil, testSession("s1", 1, "alice"))
	g.handle(t, "s1", &Request{Type: RequestPlay, Queue: []int64{1}})
	g.handle(t, "s1", &Request{Type: RequestReady, When: g.clock.Now()})
	if g.c.State() != GroupStatePlaying {
		t.Fatalf("状态 = %s, 期望 Playing", g.c.State())
	}

	g.clock.Advance(10 * time.Second)
	g.c.SessionJoined(testSession("s2", 2, "bob"))
	out := g.c.DrainOutbox()

	cmd := lastCommand(t, out, "s2")
	if cmd.Command != CommandUnpause {
		t.Errorf("追进度指令 = %s, 期望 Unpause", cmd.Command)
	}
	if cmd.PositionTicks <= 0 {
		t.Errorf("追进度位置 = %d, 应大于 0", cmd.PositionTicks)
	}
	if len(commandsTo(out, "s1")) != 0 {
		t.Error("入组不应向既有成员发指令")
	}
}

func TestSessionLeftEmptiesGroup(t *testing.T) {
	g := newTestGroup(t, nil, testSession("s1", 1, "alice"))
	g.handle(t, "s1", &Request{Type: RequestPlay, Queue: []int64{1}})

	g.c.SessionLeft("s1")
	out := g.c.DrainOutbox()

	if !g.c.IsEmpty() {
		t.Error("离组后 IsEmpty() 应为 true")
	}
	if g.c.State() != GroupStateIdle {
		t.Errorf("空组状态 = %s, 期望 Idle", g.c.State())
	}
	left := updatesOfType(out, GroupUpdateGroupLeft)
	if len(left) != 1 || left[0].SessionID != "s1" {
		t.Errorf("GroupLeft 应发给离开者, 得到 %v", left)
	}
}

func TestSessionLeftUnblocksWaiting(t *testing.T) {
	g := newTestGroup(t, nil, testSession("s1", 1, "alice"), testSession("s2", 2, "bob"))
	g.handle(t, "s1", &Request{Type: RequestPlay, Queue: []int64{1}})
	g.handle(t, "s1", &Request{Type: RequestReady, When: g.clock.Now()})
	if g.c.State() != GroupStateWaiting {
		t.Fatalf("状态 = %s, 期望 Waiting（bob 未就绪）", g.c.State())
	}

	// 唯一未就绪的成员离组，等待应立即结束
	g.c.SessionLeft("s2")
	g.c.DrainOutbox()
	if g.c.State() != GroupStatePlaying {
		t.Errorf("未就绪成员离组后状态 = %s, 期望 Playing", g.c.State())
	}
}

// ========== 播放协商 ==========

func TestPlayEntersWaitingThenPlaying(t *testing.T) {
	g := newTestGroup(t, nil, testSession("s1", 1, "alice"), testSession("s2", 2, "bob"))

	out := g.handle(t, "s1", &Request{Type: RequestPlay, Queue: []int64{1, 2}, PlayingIndex: 0})
	if g.c.State() != GroupStateWaiting {
		t.Fatalf("Play 后状态 = %s, 期望 Waiting", g.c.State())
	}
	// 全组收到队列快照与预备暂停指令
	if len(updatesOfType(out, GroupUpdatePlayQueue)) != 2 {
		t.Error("Play 应向全组广播队列快照")
	}
	cmd := lastCommand(t, out, "s2")
	if cmd.Command != CommandPause {
		t.Errorf("预备指令 = %s, 期望 Pause", cmd.Command)
	}
	wantWhen := g.clock.Now().Add(TimeSyncOffset)
	if !cmd.When.Equal(wantWhen) {
		t.Errorf("预备指令 When = %v, 期望 %v", cmd.When, wantWhen)
	}

	// 一人就绪仍在等待
	g.handle(t, "s1", &Request{Type: RequestReady, When: g.clock.Now()})
	if g.c.State() != GroupStateWaiting {
		t.Fatalf("仅一人就绪状态 = %s, 期望 Waiting", g.c.State())
	}

	// 全员就绪后起播
	out = g.handle(t, "s2", &Request{Type: RequestReady, When: g.clock.Now()})
	if g.c.State() != GroupStatePlaying {
		t.Fatalf("全员就绪后状态 = %s, 期望 Playing", g.c.State())
	}
	start := lastCommand(t, out, "s1")
	if start.Command != CommandUnpause {
		t.Errorf("起播指令 = %s, 期望 Unpause", start.Command)
	}
	// 起播时刻不早于最晚就绪时刻加提前量加最大时延
	minWhen := g.clock.Now().Add(TimeSyncOffset).Add(time.Duration(DefaultPing * float64(time.Millisecond)))
	if start.When.Before(minWhen) {
		t.Errorf("起播时刻 %v 早于下限 %v", start.When, minWhen)
	}
}

func TestReadyTimeUsesLatestReadyAndPing(t *testing.T) {
	g := newTestGroup(t, nil, testSession("s1", 1, "alice"))
	g.handle(t, "s1", &Request{Type: RequestPing, Ping: 800})
	g.handle(t, "s1", &Request{Type: RequestPlay, Queue: []int64{1}})

	readyAt := g.clock.Now().Add(time.Second)
	g.clock.Advance(time.Second)
	out := g.handle(t, "s1", &Request{Type: RequestReady, When: readyAt})

	start := lastCommand(t, out, "s1")
	want := readyAt.Add(TimeSyncOffset).Add(800 * time.Millisecond)
	if !start.When.Equal(want) {
		t.Errorf("起播时刻 = %v, 期望 %v", start.When, want)
	}
}

func TestPauseDuringWaitingLandsPaused(t *testing.T) {
	g := newTestGroup(t, nil, testSession("s1", 1, "alice"))
	g.handle(t, "s1", &Request{Type: RequestPlay, Queue: []int64{1}})
	g.handle(t, "s1", &Request{Type: RequestPause})

	g.handle(t, "s1", &Request{Type: RequestReady, When: g.clock.Now()})
	if g.c.State() != GroupStatePaused {
		t.Errorf("等待中暂停后全员就绪状态 = %s, 期望 Paused", g.c.State())
	}
}

func TestPlayingPauseAdvancesPosition(t *testing.T) {
	g := newTestGroup(t, nil, testSession("s1", 1, "alice"))
	g.handle(t, "s1", &Request{Type: RequestPlay, Queue: []int64{1}})
	g.handle(t, "s1", &Request{Type: RequestReady, When: g.clock.Now()})

	g.clock.Advance(5 * time.Second)
	out := g.handle(t, "s1", &Request{Type: RequestPause})
	if g.c.State() != GroupStatePaused {
		t.Fatalf("状态 = %s, 期望 Paused", g.c.State())
	}
	cmd := lastCommand(t, out, "s1")
	if cmd.Command != CommandPause {
		t.Errorf("指令 = %s, 期望 Pause", cmd.Command)
	}
	if cmd.PositionTicks <= 0 {
		t.Errorf("暂停位置 = %d, 应随播放推进", cmd.PositionTicks)
	}
}

func TestBufferingDuringPlayingPausesGroup(t *testing.T) {
	g := newTestGroup(t, nil, testSession("s1", 1, "alice"), testSession("s2", 2, "bob"))
	g.handle(t, "s1", &Request{Type: RequestPlay, Queue: []int64{1}})
	g.handle(t, "s1", &Request{Type: RequestReady, When: g.clock.Now()})
	g.handle(t, "s2", &Request{Type: RequestReady, When: g.clock.Now()})
	if g.c.State() != GroupStatePlaying {
		t.Fatalf("状态 = %s, 期望 Playing", g.c.State())
	}

	out := g.handle(t, "s2", &Request{Type: RequestBuffering, PositionTicks: 3 * TicksPerSecond})
	if g.c.State() != GroupStateWaiting {
		t.Fatalf("成员卡顿后状态 = %s, 期望 Waiting", g.c.State())
	}
	// 全组收到暂停
	for _, id := range []string{"s1", "s2"} {
		cmd := lastCommand(t, out, id)
		if cmd.Command != CommandPause {
			t.Errorf("会话 %s 指令 = %s, 期望 Pause", id, cmd.Command)
		}
	}

	// 卡顿成员恢复后全组继续播放
	g.handle(t, "s2", &Request{Type: RequestReady, When: g.clock.Now(), PositionTicks: 3 * TicksPerSecond})
	if g.c.State() != GroupStatePlaying {
		t.Errorf("恢复后状态 = %s, 期望 Playing", g.c.State())
	}
}

func TestDriftCorrection(t *testing.T) {
	g := newTestGroup(t, nil, testSession("s1", 1, "alice"), testSession("s2", 2, "bob"))
	g.handle(t, "s1", &Request{Type: RequestPlay, Queue: []int64{1}, StartPositionTicks: 10 * TicksPerSecond})

	// 偏差超限：单发纠偏 Seek
	out := g.handle(t, "s2", &Request{Type: RequestReady, When: g.clock.Now(), PositionTicks: 15 * TicksPerSecond})
	cmd := lastCommand(t, out, "s2")
	if cmd.Command != CommandSeek {
		t.Errorf("纠偏指令 = %s, 期望 Seek", cmd.Command)
	}
	if cmd.PositionTicks != 10*TicksPerSecond {
		t.Errorf("纠偏位置 = %d, 期望组位置 %d", cmd.PositionTicks, 10*TicksPerSecond)
	}
	if len(commandsTo(out, "s1")) != 0 {
		t.Error("纠偏不应广播给其他成员")
	}

	// 偏差在容差内：不纠偏
	out = g.handle(t, "s1", &Request{Type: RequestReady, When: g.clock.Now(), PositionTicks: 10*TicksPerSecond + DurationToTicks(300*time.Millisecond)})
	for _, cmd := range commandsTo(out, "s1") {
		if cmd.Command == CommandSeek {
			t.Error("容差内的偏差不应触发纠偏")
		}
	}
}

func TestSeekClampsToRunTime(t *testing.T) {
	g := newTestGroup(t, nil, testSession("s1", 1, "alice"))
	g.handle(t, "s1", &Request{Type: RequestPlay, Queue: []int64{1}})
	g.handle(t, "s1", &Request{Type: RequestReady, When: g.clock.Now()})

	out := g.handle(t, "s1", &Request{Type: RequestSeek, PositionTicks: 600 * TicksPerSecond})
	cmd := lastCommand(t, out, "s1")
	if cmd.Command != CommandSeek {
		t.Fatalf("指令 = %s, 期望 Seek", cmd.Command)
	}
	if cmd.PositionTicks != 60*TicksPerSecond {
		t.Errorf("越界寻址位置 = %d, 应夹取到条目时长 %d", cmd.PositionTicks, 60*TicksPerSecond)
	}

	out = g.handle(t, "s1", &Request{Type: RequestReady, When: g.clock.Now(), PositionTicks: 60 * TicksPerSecond})
	_ = out
	neg := g.handle(t, "s1", &Request{Type: RequestSeek, PositionTicks: -5})
	cmd = lastCommand(t, neg, "s1")
	if cmd.PositionTicks != 0 {
		t.Errorf("负位置 = %d, 应夹取到 0", cmd.PositionTicks)
	}
}

func TestStopReturnsToIdle(t *testing.T) {
	g := newTestGroup(t, nil, testSession("s1", 1, "alice"))
	g.handle(t, "s1", &Request{Type: RequestPlay, Queue: []int64{1}})

	out := g.handle(t, "s1", &Request{Type: RequestStop})
	if g.c.State() != GroupStateIdle {
		t.Fatalf("Stop 后状态 = %s, 期望 Idle", g.c.State())
	}
	cmd := lastCommand(t, out, "s1")
	if cmd.Command != CommandStop {
		t.Errorf("指令 = %s, 期望 Stop", cmd.Command)
	}

	// 空闲态重复 Stop 为空操作
	out = g.handle(t, "s1", &Request{Type: RequestStop})
	if len(out) != 0 {
		t.Errorf("空闲态 Stop 不应产生消息, 得到 %d 条", len(out))
	}
}

func TestIgnoreWaitExcludedFromNegotiation(t *testing.T) {
	g := newTestGroup(t, nil, testSession("s1", 1, "alice"), testSession("s2", 2, "bob"))
	g.handle(t, "s2", &Request{Type: RequestIgnoreWait, IgnoreWait: true})

	g.handle(t, "s1", &Request{Type: RequestPlay, Queue: []int64{1}})
	// bob 忽略等待：alice 就绪即可起播
	g.handle(t, "s1", &Request{Type: RequestReady, When: g.clock.Now()})
	if g.c.State() != GroupStatePlaying {
		t.Errorf("忽略等待成员不应阻塞起播, 状态 = %s", g.c.State())
	}
}

func TestSetIgnoreWaitUnblocksWaiting(t *testing.T) {
	g := newTestGroup(t, nil, testSession("s1", 1, "alice"), testSession("s2", 2, "bob"))
	g.handle(t, "s1", &Request{Type: RequestPlay, Queue: []int64{1}})
	g.handle(t, "s1", &Request{Type: RequestReady, When: g.clock.Now()})
	if g.c.State() != GroupStateWaiting {
		t.Fatalf("状态 = %s, 期望 Waiting", g.c.State())
	}

	// 等待中的成员声明忽略等待，协商立即重评
	g.handle(t, "s2", &Request{Type: RequestIgnoreWait, IgnoreWait: true})
	if g.c.State() != GroupStatePlaying {
		t.Errorf("忽略等待声明后状态 = %s, 期望 Playing", g.c.State())
	}
}

// ========== 轨道切换与队列 ==========

func TestTrackChange(t *testing.T) {
	g := newTestGroup(t, nil, testSession("s1", 1, "alice"))
	g.handle(t, "s1", &Request{Type: RequestPlay, Queue: []int64{1, 2}})
	g.handle(t, "s1", &Request{Type: RequestReady, When: g.clock.Now()})

	cur, _ := g.c.queue.CurrentItem()
	out := g.handle(t, "s1", &Request{Type: RequestNextTrack, PlaylistItemID: cur.PlaylistItemID})
	if g.c.State() != GroupStateWaiting {
		t.Fatalf("切轨后状态 = %s, 期望 Waiting", g.c.State())
	}
	next, _ := g.c.queue.CurrentItem()
	if next.ItemID != 2 {
		t.Errorf("切轨后条目 = %d, 期望 2", next.ItemID)
	}
	if len(updatesOfType(out, GroupUpdatePlayQueue)) == 0 {
		t.Error("切轨应广播队列快照")
	}
}

func TestTrackChangeStaleRequestIgnored(t *testing.T) {
	g := newTestGroup(t, nil, testSession("s1", 1, "alice"))
	g.handle(t, "s1", &Request{Type: RequestPlay, Queue: []int64{1, 2}})
	g.handle(t, "s1", &Request{Type: RequestReady, When: g.clock.Now()})

	out := g.handle(t, "s1", &Request{Type: RequestNextTrack, PlaylistItemID: "stale-id"})
	if len(out) != 0 {
		t.Errorf("过期切轨请求不应产生消息, 得到 %d 条", len(out))
	}
	cur, _ := g.c.queue.CurrentItem()
	if cur.ItemID != 1 {
		t.Errorf("过期请求改动了队列指针, 条目 = %d", cur.ItemID)
	}
}

func TestTrackChangePastEndStops(t *testing.T) {
	g := newTestGroup(t, nil, testSession("s1", 1, "alice"))
	g.handle(t, "s1", &Request{Type: RequestPlay, Queue: []int64{1}})
	g.handle(t, "s1", &Request{Type: RequestReady, When: g.clock.Now()})

	cur, _ := g.c.queue.CurrentItem()
	g.handle(t, "s1", &Request{Type: RequestNextTrack, PlaylistItemID: cur.PlaylistItemID})
	if g.c.State() != GroupStateIdle {
		t.Errorf("越过队尾应停止播放, 状态 = %s", g.c.State())
	}
}

func TestReadyPastRunTimeAdvancesQueue(t *testing.T) {
	g := newTestGroup(t, nil, testSession("s1", 1, "alice"))
	g.handle(t, "s1", &Request{Type: RequestPlay, Queue: []int64{1, 2}})

	// 上报位置越过条目末尾：服务端推进队列
	g.handle(t, "s1", &Request{Type: RequestReady, When: g.clock.Now(), PositionTicks: 61 * TicksPerSecond})
	cur, _ := g.c.queue.CurrentItem()
	if cur.ItemID != 2 {
		t.Errorf("播完后条目 = %d, 期望推进到 2", cur.ItemID)
	}
	if g.c.State() != GroupStateWaiting {
		t.Errorf("推进后状态 = %s, 期望 Waiting", g.c.State())
	}
}

func TestRemoveCurrentItemRewaits(t *testing.T) {
	g := newTestGroup(t, nil, testSession("s1", 1, "alice"))
	g.handle(t, "s1", &Request{Type: RequestPlay, Queue: []int64{1, 2}})
	g.handle(t, "s1", &Request{Type: RequestReady, When: g.clock.Now()})

	cur, _ := g.c.queue.CurrentItem()
	g.handle(t, "s1", &Request{Type: RequestRemoveFromPlaylist, PlaylistItemIDs: []string{cur.PlaylistItemID}})
	if g.c.State() != GroupStateWaiting {
		t.Errorf("移除当前条目后状态 = %s, 期望 Waiting", g.c.State())
	}
	next, _ := g.c.queue.CurrentItem()
	if next.ItemID != 2 {
		t.Errorf("移除后条目 = %d, 期望后继 2", next.ItemID)
	}
}

func TestRemoveLastItemStops(t *testing.T) {
	g := newTestGroup(t, nil, testSession("s1", 1, "alice"))
	g.handle(t, "s1", &Request{Type: RequestPlay, Queue: []int64{1}})
	g.handle(t, "s1", &Request{Type: RequestReady, When: g.clock.Now()})

	cur, _ := g.c.queue.CurrentItem()
	g.handle(t, "s1", &Request{Type: RequestRemoveFromPlaylist, PlaylistItemIDs: []string{cur.PlaylistItemID}})
	if g.c.State() != GroupStateIdle {
		t.Errorf("清空队列后状态 = %s, 期望 Idle", g.c.State())
	}
}

// ========== 权限与媒体访问 ==========

func TestRequestDeniedWithoutPermission(t *testing.T) {
	req := &NewGroupRequest{GroupName: "g", OpenPlaybackAccess: false, OpenPlaylistAccess: false}
	g := newTestGroup(t, req, testSession("s1", 1, "alice"), testSession("s2", 2, "bob"))

	// bob 无播放权限：请求被丢弃，无任何出站消息
	out := g.handle(t, "s2", &Request{Type: RequestPlay, Queue: []int64{1}})
	if len(out) != 0 {
		t.Errorf("无权限请求不应产生消息, 得到 %d 条", len(out))
	}
	if g.c.State() != GroupStateIdle {
		t.Errorf("无权限请求改动了状态: %s", g.c.State())
	}

	// 管理员（创建者）不受限
	g.handle(t, "s1", &Request{Type: RequestPlay, Queue: []int64{1}})
	if g.c.State() != GroupStateWaiting {
		t.Errorf("创建者请求被拒, 状态 = %s", g.c.State())
	}
}

func TestPlayDeniedWhenMemberLacksAccess(t *testing.T) {
	g := newTestGroup(t, nil, testSession("s1", 1, "alice"), testSession("s2", 2, "bob"))

	// bob 只能访问目录 2，条目都在目录 1
	restricted := testUser(2, "bob")
	restricted.EnableAllFolders = false
	restricted.EnabledFolders = model.Int64List{2}
	g.users.users[2] = restricted

	out := g.handle(t, "s1", &Request{Type: RequestPlay, Queue: []int64{1}})
	denied := updatesOfType(out, GroupUpdateLibraryAccessDenied)
	if len(denied) != 1 || denied[0].SessionID != "s1" {
		t.Fatalf("应单发 LibraryAccessDenied 给请求者, 得到 %v", denied)
	}
	if g.c.State() != GroupStateIdle {
		t.Errorf("被拒的 Play 改动了状态: %s", g.c.State())
	}
}

// ========== 设置与接续 ==========

func TestUpdateSettingsBroadcasts(t *testing.T) {
	g := newTestGroup(t, nil, testSession("s1", 1, "alice"), testSession("s2", 2, "bob"))

	name := "听歌房"
	visibility := GroupVisibilityInviteOnly
	g.c.UpdateSettings("s1", &UpdateSettingsRequest{
		GroupName:    &name,
		Visibility:   &visibility,
		InvitedUsers: []int64{2, 3},
	})
	out := g.c.DrainOutbox()

	if g.c.Info().GroupName != "听歌房" {
		t.Errorf("组名 = %q", g.c.Info().GroupName)
	}
	if g.c.Access().Visibility() != GroupVisibilityInviteOnly {
		t.Errorf("可见性 = %s", g.c.Access().Visibility())
	}
	if !g.c.Access().CanJoin(3) {
		t.Error("新受邀用户应可加入")
	}
	if len(updatesOfType(out, GroupUpdateSettings)) != 2 {
		t.Error("设置变更应广播给全组")
	}
}

func TestSeedFromSessionResumesLocalPlayback(t *testing.T) {
	clock := newFakeClock()
	lib := newFakeLibrary(minuteItem(1), minuteItem(2))
	creator := &SessionInfo{
		ID: "s1", UserID: 1, Username: "alice",
		HasPlayback:     true,
		NowPlayingQueue: []int64{1, 2},
		PlayingIndex:    1,
		PositionTicks:   5 * TicksPerSecond,
		IsPaused:        false,
	}
	c := NewGroupController("g1", &NewGroupRequest{GroupName: "g", OpenPlaybackAccess: true, OpenPlaylistAccess: true}, creator, clock, lib, zap.NewNop())
	c.SessionJoined(creator)
	c.DrainOutbox()

	c.SeedFromSession(context.Background(), creator)
	if c.State() != GroupStateWaiting {
		t.Fatalf("接续播放后状态 = %s, 期望 Waiting", c.State())
	}
	cur, _ := c.queue.CurrentItem()
	if cur.ItemID != 2 {
		t.Errorf("接续条目 = %d, 期望 2", cur.ItemID)
	}
	if c.positionTicks != 5*TicksPerSecond {
		t.Errorf("接续位置 = %d, 期望 %d", c.positionTicks, 5*TicksPerSecond)
	}
	if !c.resumePlaying {
		t.Error("未暂停的本地播放应在就绪后继续")
	}
}

func TestClampReportedWhen(t *testing.T) {
	g := newTestGroup(t, nil, testSession("s1", 1, "alice"))
	now := g.clock.Now()

	tests := []struct {
		name string
		when time.Time
		want time.Time
	}{
		{"零值取当前时刻", time.Time{}, now},
		{"邻域内原样保留", now.Add(time.Second), now.Add(time.Second)},
		{"超前过多取当前时刻", now.Add(time.Minute), now},
		{"滞后过多取当前时刻", now.Add(-time.Minute), now},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := g.c.clampReportedWhen(tt.when); !got.Equal(tt.want) {
				t.Errorf("clampReportedWhen(%v) = %v, 期望 %v", tt.when, got, tt.want)
			}
		})
	}
}
