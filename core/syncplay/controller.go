package syncplay

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"SyncFM/model"
)

// 同步协商参数
const (
	// TimeSyncOffset 留给客户端排程动作的提前量
	TimeSyncOffset = 2000 * time.Millisecond
	// MaxPlaybackOffset 成员位置允许偏离组位置的上限
	MaxPlaybackOffset = 500 * time.Millisecond
)

// GroupStateType 分组状态机的状态
type GroupStateType string

const (
	GroupStateIdle    GroupStateType = "Idle"
	GroupStateWaiting GroupStateType = "Waiting"
	GroupStatePlaying GroupStateType = "Playing"
	GroupStatePaused  GroupStateType = "Paused"
)

// envelope 组锁内组装、锁外派发的一条出站消息
type envelope struct {
	SessionID string
	Update    *GroupUpdate
	Command   *Command
}

// GroupController 单个分组的协调器：成员表、权限表、队列与
// 状态机都在这里。所有方法都要求调用方已持有分组锁；
// 出站消息只进 outbox，由管理器在放锁后派发。
type GroupController struct {
	groupID   string
	groupName string
	state     GroupStateType

	access  *AccessList
	queue   *PlayQueue
	members map[string]*member

	// positionTicks 组位置基准；Playing 态的即时位置是
	// 基准加上自 lastActivity 起的流逝时间
	positionTicks int64
	lastActivity  time.Time
	// runTimeTicks 当前条目时长缓存，条目切换时刷新
	runTimeTicks int64

	// resumePlaying 等待结束后回到 Playing 还是 Paused
	resumePlaying bool
	// latestReady 等待期间收到的最晚就绪时刻
	latestReady time.Time

	lastUpdatedAt time.Time

	clock   Clock
	logger  *zap.Logger
	library MediaLibrary

	outbox []envelope
}

// NewGroupController 创建分组协调器
func NewGroupController(groupID string, req *NewGroupRequest, creator *SessionInfo, clock Clock, library MediaLibrary, logger *zap.Logger) *GroupController {
	name := req.GroupName
	if name == "" {
		name = creator.Username + " 的分组"
	}
	visibility := req.Visibility
	switch visibility {
	case GroupVisibilityPublic, GroupVisibilityInviteOnly, GroupVisibilityPrivate:
	default:
		visibility = GroupVisibilityPublic
	}
	now := clock.Now()
	c := &GroupController{
		groupID:       groupID,
		groupName:     name,
		state:         GroupStateIdle,
		access:        NewAccessList(creator.UserID, visibility, req.InvitedUsers, req.OpenPlaybackAccess, req.OpenPlaylistAccess),
		queue:         NewPlayQueue(clock),
		members:       make(map[string]*member),
		lastActivity:  now,
		lastUpdatedAt: now,
		clock:         clock,
		logger:        logger,
		library:       library,
	}
	return c
}

// GroupID 分组标识
func (c *GroupController) GroupID() string { return c.groupID }

// State 当前状态
func (c *GroupController) State() GroupStateType { return c.state }

// IsEmpty 分组是否已无成员
func (c *GroupController) IsEmpty() bool { return len(c.members) == 0 }

// HasSession 会话是否在组内
func (c *GroupController) HasSession(sessionID string) bool {
	_, ok := c.members[sessionID]
	return ok
}

// Access 权限表
func (c *GroupController) Access() *AccessList { return c.access }

// Info 分组概要快照
func (c *GroupController) Info() *model.GroupInfo {
	participants := make([]string, 0, len(c.members))
	for _, m := range c.members {
		participants = append(participants, m.Username)
	}
	sort.Strings(participants)
	return &model.GroupInfo{
		GroupID:       c.groupID,
		GroupName:     c.groupName,
		Visibility:    c.access.Visibility(),
		State:         string(c.state),
		Participants:  participants,
		LastUpdatedAt: c.lastUpdatedAt,
	}
}

// DrainOutbox 取走待派发消息。在分组锁内调用，派发在锁外进行。
func (c *GroupController) DrainOutbox() []envelope {
	out := c.outbox
	c.outbox = nil
	return out
}

// touch 记录分组活动时间
func (c *GroupController) touch() {
	c.lastUpdatedAt = c.clock.Now()
}

// ========== 受众与出站消息 ==========

// sessionsFor 按受众过滤会话。AllReady 指未在缓冲的成员。
func (c *GroupController) sessionsFor(audience Audience, currentSessionID string) []string {
	ids := make([]string, 0, len(c.members))
	for id, m := range c.members {
		switch audience {
		case AudienceCurrentSession:
			if id == currentSessionID {
				ids = append(ids, id)
			}
		case AudienceAllGroup:
			ids = append(ids, id)
		case AudienceAllExceptCurrentSession:
			if id != currentSessionID {
				ids = append(ids, id)
			}
		case AudienceAllReady:
			if !m.IsBuffering {
				ids = append(ids, id)
			}
		}
	}
	sort.Strings(ids)
	return ids
}

// pushUpdate 组装一条组状态通知进 outbox
func (c *GroupController) pushUpdate(audience Audience, currentSessionID string, typ GroupUpdateType, data interface{}) {
	update := &GroupUpdate{GroupID: c.groupID, Type: typ, Data: marshalData(data)}
	for _, id := range c.sessionsFor(audience, currentSessionID) {
		c.outbox = append(c.outbox, envelope{SessionID: id, Update: update})
	}
}

// pushCommand 组装一条播放指令进 outbox
func (c *GroupController) pushCommand(audience Audience, currentSessionID string, cmd *Command) {
	for _, id := range c.sessionsFor(audience, currentSessionID) {
		c.outbox = append(c.outbox, envelope{SessionID: id, Command: cmd})
	}
}

// newCommand 以当前队列条目组装播放指令
func (c *GroupController) newCommand(typ CommandType, when time.Time, positionTicks int64) *Command {
	playlistItemID := ""
	if cur, ok := c.queue.CurrentItem(); ok {
		playlistItemID = cur.PlaylistItemID
	}
	return &Command{
		GroupID:        c.groupID,
		PlaylistItemID: playlistItemID,
		When:           when,
		Command:        typ,
		PositionTicks:  positionTicks,
		EmittedAt:      c.clock.Now(),
	}
}

// setState 切换状态并向全组广播 StateUpdate
func (c *GroupController) setState(next GroupStateType, reason RequestType, currentSessionID string) {
	c.state = next
	c.touch()
	c.pushUpdate(AudienceAllGroup, currentSessionID, GroupUpdateState, &StateUpdateData{
		State:  string(next),
		Reason: string(reason),
	})
}

// pushPlayQueue 广播当前队列快照
func (c *GroupController) pushPlayQueue(audience Audience, currentSessionID string, reason RequestType) {
	playingItemID := ""
	if cur, ok := c.queue.CurrentItem(); ok {
		playingItemID = cur.PlaylistItemID
	}
	c.pushUpdate(audience, currentSessionID, GroupUpdatePlayQueue, &PlayQueueUpdateData{
		Playlist:      c.queue.Playlist(),
		PlayingItemID: playingItemID,
		StartIndex:    c.queue.CurrentIndex(),
		ShuffleMode:   c.queue.ShuffleModeValue(),
		RepeatMode:    c.queue.RepeatModeValue(),
		Version:       c.queue.Version(),
		LastUpdate:    c.queue.LastChange(),
		Reason:        string(reason),
	})
}

// ========== 成员进出 ==========

// SessionJoined 会话入组：新成员收到 GroupJoined 与队列快照，
// 其余成员收到 UserJoined。
func (c *GroupController) SessionJoined(session *SessionInfo) {
	m := newMember(session)
	c.members[session.ID] = m
	c.touch()

	c.pushUpdate(AudienceCurrentSession, session.ID, GroupUpdateGroupJoined, c.Info())
	c.pushUpdate(AudienceAllExceptCurrentSession, session.ID, GroupUpdateUserJoined, session.Username)
	c.pushPlayQueue(AudienceCurrentSession, session.ID, RequestPlay)

	// 正在播放时让新成员立即追上组进度
	switch c.state {
	case GroupStatePlaying:
		pos := c.currentPosition()
		when := c.clock.Now().Add(TimeSyncOffset)
		c.pushCommand(AudienceCurrentSession, session.ID, c.newCommand(CommandUnpause, when, pos))
	case GroupStatePaused, GroupStateWaiting:
		when := c.clock.Now().Add(TimeSyncOffset)
		c.pushCommand(AudienceCurrentSession, session.ID, c.newCommand(CommandPause, when, c.positionTicks))
	}

	c.logger.Info("会话入组",
		zap.String("groupId", c.groupID),
		zap.String("sessionId", session.ID),
		zap.Int64("userId", session.UserID))
}

// SessionLeft 会话离组：离开者收到 GroupLeft，其余成员收到
// UserLeft。等待态下重新评估就绪条件；组空则回到空闲。
func (c *GroupController) SessionLeft(sessionID string) {
	m, ok := c.members[sessionID]
	if !ok {
		return
	}
	c.pushUpdate(AudienceCurrentSession, sessionID, GroupUpdateGroupLeft, c.groupID)
	c.pushUpdate(AudienceAllExceptCurrentSession, sessionID, GroupUpdateUserLeft, m.Username)

	delete(c.members, sessionID)
	c.touch()

	if len(c.members) == 0 {
		c.state = GroupStateIdle
		c.resumePlaying = false
	} else if c.state == GroupStateWaiting {
		c.evaluateWaiting(sessionID)
	}

	c.logger.Info("会话离组",
		zap.String("groupId", c.groupID),
		zap.String("sessionId", sessionID))
}

// SessionRestored 同一会话重连后的重绑定：不重走加入裁决，
// 只刷新会话信息并重放当前组状态。
func (c *GroupController) SessionRestored(session *SessionInfo) {
	m, ok := c.members[session.ID]
	if !ok {
		c.SessionJoined(session)
		return
	}
	m.Username = session.Username
	c.touch()
	c.pushUpdate(AudienceCurrentSession, session.ID, GroupUpdateGroupJoined, c.Info())
	c.pushPlayQueue(AudienceCurrentSession, session.ID, RequestPlay)
	switch c.state {
	case GroupStatePlaying:
		when := c.clock.Now().Add(TimeSyncOffset)
		c.pushCommand(AudienceCurrentSession, session.ID, c.newCommand(CommandUnpause, when, c.currentPosition()))
	case GroupStatePaused, GroupStateWaiting:
		when := c.clock.Now().Add(TimeSyncOffset)
		c.pushCommand(AudienceCurrentSession, session.ID, c.newCommand(CommandPause, when, c.positionTicks))
	}
}

// SeedFromSession 建组时接续创建者的本地播放：用其当前队列与
// 进度初始化，并立即进入等待。
func (c *GroupController) SeedFromSession(ctx context.Context, session *SessionInfo) {
	if !session.HasPlayback || len(session.NowPlayingQueue) == 0 {
		return
	}
	c.queue.SetPlaylist(session.NowPlayingQueue, session.PlayingIndex)
	c.restartCurrentItem(ctx)
	c.positionTicks = c.sanitizePosition(session.PositionTicks)
	c.resumePlaying = !session.IsPaused
	c.beginWaiting(session.ID, RequestPlay)
	c.pushPlayQueue(AudienceAllGroup, session.ID, RequestPlay)
}

// UpdateSettings 应用分组设置并向全组广播新概要
func (c *GroupController) UpdateSettings(sessionID string, req *UpdateSettingsRequest) {
	if req.GroupName != nil && *req.GroupName != "" {
		c.groupName = *req.GroupName
	}
	if req.Visibility != nil {
		switch *req.Visibility {
		case GroupVisibilityPublic, GroupVisibilityInviteOnly, GroupVisibilityPrivate:
			c.access.SetVisibility(*req.Visibility)
		}
	}
	if req.InvitedUsers != nil {
		c.access.SetInvited(req.InvitedUsers)
	}
	c.access.SetOpenDefaults(req.OpenPlaybackAccess, req.OpenPlaylistAccess)
	if req.AccessList != nil {
		c.access.SetExplicit(req.AccessList)
	}
	if req.Administrators != nil {
		c.access.SetAdministrators(req.Administrators)
	}
	c.touch()
	c.pushUpdate(AudienceAllGroup, sessionID, GroupUpdateSettings, c.Info())
}

// ========== 位置与就绪计算 ==========

// currentPosition 组的即时位置：Playing 态基准位置加流逝时间，
// 其余状态就是基准位置。
func (c *GroupController) currentPosition() int64 {
	if c.state != GroupStatePlaying {
		return c.positionTicks
	}
	elapsed := c.clock.Now().Sub(c.lastActivity)
	return c.positionTicks + DurationToTicks(elapsed)
}

// sanitizePosition 将位置夹取到当前条目的 [0, 时长] 区间
func (c *GroupController) sanitizePosition(ticks int64) int64 {
	if ticks < 0 {
		return 0
	}
	if c.runTimeTicks > 0 && ticks > c.runTimeTicks {
		return c.runTimeTicks
	}
	return ticks
}

// refreshRunTime 刷新当前条目的时长缓存
func (c *GroupController) refreshRunTime(ctx context.Context) {
	cur, ok := c.queue.CurrentItem()
	if !ok {
		c.runTimeTicks = 0
		return
	}
	item, err := c.library.Item(ctx, cur.ItemID)
	if err != nil || item == nil {
		c.logger.Warn("查询条目时长失败",
			zap.String("groupId", c.groupID),
			zap.Int64("itemId", cur.ItemID),
			zap.Error(err))
		c.runTimeTicks = 0
		return
	}
	c.runTimeTicks = item.RunTimeTicks
}

// restartCurrentItem 条目切换后复位播放基准
func (c *GroupController) restartCurrentItem(ctx context.Context) {
	c.positionTicks = 0
	c.lastActivity = c.clock.Now()
	c.refreshRunTime(ctx)
}

// highestPing 当前成员中的最大时延估计
func (c *GroupController) highestPing() time.Duration {
	highest := DefaultPing
	for _, m := range c.members {
		if m.Ping > highest {
			highest = m.Ping
		}
	}
	return time.Duration(highest * float64(time.Millisecond))
}

// allReady 需要等待的成员是否都已就绪。忽略等待的成员不参与协商。
func (c *GroupController) allReady() bool {
	for _, m := range c.members {
		if m.IgnoreWait {
			continue
		}
		if m.IsBuffering {
			return false
		}
	}
	return true
}

// clampReportedWhen 客户端上报时间夹取到服务器时钟邻域，
// 偏离过大的上报按收到时刻计。
func (c *GroupController) clampReportedWhen(when time.Time) time.Time {
	now := c.clock.Now()
	if when.IsZero() {
		return now
	}
	if when.After(now.Add(TimeSyncOffset)) || when.Before(now.Add(-TimeSyncOffset)) {
		return now
	}
	return when
}

// ========== 权限与媒体访问校验 ==========

// checkPermission 请求者是否具备该请求所需权限
func (c *GroupController) checkPermission(userID int64, req RequestType) bool {
	switch requestPermissions[req] {
	case permissionPlayback:
		return c.access.HasPlaybackAccess(userID)
	case permissionPlaylist:
		return c.access.HasPlaylistAccess(userID)
	}
	return true
}

// queueAccessAllowed 队列变更的访问校验：每个在组成员的用户都
// 必须能访问全部目标条目，任何一项不满足即整体拒绝。
func (c *GroupController) queueAccessAllowed(ctx context.Context, users UserService, itemIDs []int64) bool {
	if len(itemIDs) == 0 || users == nil {
		return true
	}
	items, err := c.library.Items(ctx, itemIDs)
	if err != nil {
		return false
	}
	byID := make(map[int64]*model.MediaItem, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}

	seen := make(map[int64]bool, len(c.members))
	for _, m := range c.members {
		if seen[m.UserID] {
			continue
		}
		seen[m.UserID] = true
		u, err := users.User(ctx, m.UserID)
		if err != nil || u == nil {
			return false
		}
		for _, id := range itemIDs {
			it, ok := byID[id]
			if !ok || !it.AccessibleBy(u) {
				return false
			}
		}
	}
	return true
}
