package syncplay

import (
	"context"

	"go.uber.org/zap"
)

// HandleRequest 分组状态机入口。权限不足的请求记日志后丢弃；
// 与当前状态无关的请求（Ping、队列编辑等）直接处理，其余按
// 状态分派。调用方持有分组锁。
func (c *GroupController) HandleRequest(ctx context.Context, session *SessionInfo, req *Request, users UserService) {
	m, ok := c.members[session.ID]
	if !ok {
		return
	}
	if !c.checkPermission(m.UserID, req.Type) {
		c.logger.Warn("请求被权限拒绝",
			zap.String("groupId", c.groupID),
			zap.Int64("userId", m.UserID),
			zap.String("request", string(req.Type)))
		return
	}

	switch req.Type {
	case RequestPing:
		m.Ping = req.Ping
		return
	case RequestIgnoreWait:
		m.IgnoreWait = req.IgnoreWait
		if c.state == GroupStateWaiting {
			c.evaluateWaiting(session.ID)
		}
		return
	case RequestPlay:
		c.handlePlay(ctx, session, req, users)
		return
	case RequestStop:
		c.handleStop(session.ID)
		return
	case RequestSetPlaylistItem:
		c.handleSetPlaylistItem(ctx, session, req, users)
		return
	case RequestQueue:
		c.handleQueue(ctx, session, req, users)
		return
	case RequestRemoveFromPlaylist:
		c.handleRemove(ctx, session, req)
		return
	case RequestMovePlaylistItem:
		if c.queue.MovePlaylistItem(req.PlaylistItemID, req.NewIndex) {
			c.touch()
			c.pushPlayQueue(AudienceAllGroup, session.ID, RequestMovePlaylistItem)
		}
		return
	case RequestSetRepeatMode:
		if c.queue.SetRepeatMode(RepeatMode(req.Mode)) {
			c.touch()
			c.pushPlayQueue(AudienceAllGroup, session.ID, RequestSetRepeatMode)
		}
		return
	case RequestSetShuffleMode:
		if c.queue.SetShuffleMode(ShuffleMode(req.Mode)) {
			c.touch()
			c.pushPlayQueue(AudienceAllGroup, session.ID, RequestSetShuffleMode)
		}
		return
	case RequestNextTrack:
		c.handleTrackChange(ctx, session, req, true, users)
		return
	case RequestPreviousTrack:
		c.handleTrackChange(ctx, session, req, false, users)
		return
	}

	switch c.state {
	case GroupStateIdle:
		c.handleIdle(session, req)
	case GroupStateWaiting:
		c.handleWaiting(ctx, session, req)
	case GroupStatePlaying:
		c.handlePlaying(ctx, session, req)
	case GroupStatePaused:
		c.handlePaused(ctx, session, req)
	}
}

// ========== 状态无关请求 ==========

// handlePlay 以新队列开始播放：任何状态下都会替换队列并进入
// 等待，全员就绪后起播。
func (c *GroupController) handlePlay(ctx context.Context, session *SessionInfo, req *Request, users UserService) {
	if len(req.Queue) == 0 || !c.queueAccessAllowed(ctx, users, req.Queue) {
		c.pushUpdate(AudienceCurrentSession, session.ID, GroupUpdateLibraryAccessDenied, "请求的媒体条目不可访问")
		return
	}
	c.queue.SetPlaylist(req.Queue, req.PlayingIndex)
	c.restartCurrentItem(ctx)
	c.positionTicks = c.sanitizePosition(req.StartPositionTicks)
	c.resumePlaying = true
	c.beginWaiting(session.ID, RequestPlay)
	c.pushPlayQueue(AudienceAllGroup, session.ID, RequestPlay)
	when := c.clock.Now().Add(TimeSyncOffset)
	c.pushCommand(AudienceAllGroup, session.ID, c.newCommand(CommandPause, when, c.positionTicks))
}

// handleStop 任何状态下停止播放并回到空闲
func (c *GroupController) handleStop(sessionID string) {
	if c.state == GroupStateIdle {
		return
	}
	c.positionTicks = 0
	c.resumePlaying = false
	for _, m := range c.members {
		m.IsBuffering = false
	}
	c.pushCommand(AudienceAllGroup, sessionID, c.newCommand(CommandStop, c.clock.Now(), 0))
	c.setState(GroupStateIdle, RequestStop, sessionID)
}

// handleSetPlaylistItem 切换到指定队列条目。空闲态只移动指针；
// 其余状态切条目后重新等待全员就绪。
func (c *GroupController) handleSetPlaylistItem(ctx context.Context, session *SessionInfo, req *Request, users UserService) {
	target, ok := c.queue.FindByPlaylistID(req.PlaylistItemID)
	if !ok {
		return
	}
	if !c.queueAccessAllowed(ctx, users, []int64{target.ItemID}) {
		c.pushUpdate(AudienceCurrentSession, session.ID, GroupUpdateLibraryAccessDenied, "目标条目对部分成员不可访问")
		return
	}
	if !c.queue.SetPlayingItemByPlaylistID(req.PlaylistItemID) {
		return
	}
	c.restartCurrentItem(ctx)
	c.touch()
	if c.state == GroupStateIdle {
		c.pushPlayQueue(AudienceAllGroup, session.ID, RequestSetPlaylistItem)
		return
	}
	c.resumePlaying = c.resumePlaying || c.state == GroupStatePlaying
	c.beginWaiting(session.ID, RequestSetPlaylistItem)
	c.pushPlayQueue(AudienceAllGroup, session.ID, RequestSetPlaylistItem)
	when := c.clock.Now().Add(TimeSyncOffset)
	c.pushCommand(AudienceAllGroup, session.ID, c.newCommand(CommandPause, when, 0))
}

// handleQueue 追加条目，QueueNext 插到当前条目之后
func (c *GroupController) handleQueue(ctx context.Context, session *SessionInfo, req *Request, users UserService) {
	if len(req.ItemIDs) == 0 || !c.queueAccessAllowed(ctx, users, req.ItemIDs) {
		c.pushUpdate(AudienceCurrentSession, session.ID, GroupUpdateLibraryAccessDenied, "入队的媒体条目不可访问")
		return
	}
	hadCurrent := c.queue.CurrentIndex() >= 0
	if req.QueueMode == QueueModeQueueNext {
		c.queue.QueueNext(req.ItemIDs)
	} else {
		c.queue.Queue(req.ItemIDs)
	}
	if !hadCurrent {
		c.refreshRunTime(ctx)
	}
	c.touch()
	c.pushPlayQueue(AudienceAllGroup, session.ID, RequestQueue)
}

// handleRemove 移除条目。当前条目被移除时：队列已空则停止，
// 否则切到后继条目重新等待。
func (c *GroupController) handleRemove(ctx context.Context, session *SessionInfo, req *Request) {
	removedPlaying := c.queue.RemoveFromPlaylist(req.PlaylistItemIDs)
	c.touch()
	c.pushPlayQueue(AudienceAllGroup, session.ID, RequestRemoveFromPlaylist)
	if !removedPlaying {
		return
	}
	if c.queue.Len() == 0 {
		c.handleStop(session.ID)
		return
	}
	c.restartCurrentItem(ctx)
	if c.state == GroupStateIdle {
		return
	}
	c.resumePlaying = c.resumePlaying || c.state == GroupStatePlaying
	c.beginWaiting(session.ID, RequestRemoveFromPlaylist)
	when := c.clock.Now().Add(TimeSyncOffset)
	c.pushCommand(AudienceAllGroup, session.ID, c.newCommand(CommandPause, when, 0))
}

// handleTrackChange 切换相邻条目。请求携带的条目标识与当前不符
// 说明是基于过期状态的重复请求，忽略。队列到头时停止播放。
func (c *GroupController) handleTrackChange(ctx context.Context, session *SessionInfo, req *Request, forward bool, users UserService) {
	if c.state == GroupStateIdle {
		return
	}
	if cur, ok := c.queue.CurrentItem(); ok && req.PlaylistItemID != "" && req.PlaylistItemID != cur.PlaylistItemID {
		return
	}
	prev := c.queue.CurrentIndex()
	var moved bool
	if forward {
		moved = c.queue.Next()
	} else {
		moved = c.queue.Previous()
	}
	if !moved {
		c.handleStop(session.ID)
		return
	}
	if cur, ok := c.queue.CurrentItem(); ok && !c.queueAccessAllowed(ctx, users, []int64{cur.ItemID}) {
		c.queue.SetPlayingItemByIndex(prev)
		c.pushUpdate(AudienceCurrentSession, session.ID, GroupUpdateLibraryAccessDenied, "相邻条目对部分成员不可访问")
		return
	}
	reason := RequestNextTrack
	if !forward {
		reason = RequestPreviousTrack
	}
	c.restartCurrentItem(ctx)
	c.resumePlaying = c.resumePlaying || c.state == GroupStatePlaying
	c.beginWaiting(session.ID, reason)
	c.pushPlayQueue(AudienceAllGroup, session.ID, reason)
	when := c.clock.Now().Add(TimeSyncOffset)
	c.pushCommand(AudienceAllGroup, session.ID, c.newCommand(CommandPause, when, 0))
}

// ========== 按状态分派 ==========

// handleIdle 空闲态：除状态无关请求外没有可执行的动作
func (c *GroupController) handleIdle(session *SessionInfo, req *Request) {
	c.logger.Debug("空闲态忽略请求",
		zap.String("groupId", c.groupID),
		zap.String("request", string(req.Type)))
}

func (c *GroupController) handleWaiting(ctx context.Context, session *SessionInfo, req *Request) {
	m := c.members[session.ID]
	switch req.Type {
	case RequestBuffering:
		m.IsBuffering = true
		when := c.clock.Now().Add(TimeSyncOffset)
		c.pushCommand(AudienceCurrentSession, session.ID, c.newCommand(CommandPause, when, c.positionTicks))
	case RequestReady:
		c.handleReady(ctx, session, req)
	case RequestPause:
		c.resumePlaying = false
		c.pushCommand(AudienceAllGroup, session.ID, c.newCommand(CommandPause, c.clock.Now(), c.positionTicks))
	case RequestUnpause:
		c.resumePlaying = true
		c.evaluateWaiting(session.ID)
	case RequestSeek:
		c.positionTicks = c.sanitizePosition(req.PositionTicks)
		c.lastActivity = c.clock.Now()
		when := c.clock.Now().Add(TimeSyncOffset)
		c.pushCommand(AudienceAllGroup, session.ID, c.newCommand(CommandSeek, when, c.positionTicks))
		c.beginWaiting(session.ID, RequestSeek)
	}
}

func (c *GroupController) handlePlaying(ctx context.Context, session *SessionInfo, req *Request) {
	m := c.members[session.ID]
	switch req.Type {
	case RequestPause:
		pos := c.sanitizePosition(c.currentPosition())
		c.positionTicks = pos
		c.lastActivity = c.clock.Now()
		c.pushCommand(AudienceAllGroup, session.ID, c.newCommand(CommandPause, c.clock.Now(), pos))
		c.setState(GroupStatePaused, RequestPause, session.ID)
	case RequestSeek:
		c.positionTicks = c.sanitizePosition(req.PositionTicks)
		c.lastActivity = c.clock.Now()
		c.resumePlaying = true
		when := c.clock.Now().Add(TimeSyncOffset)
		c.pushCommand(AudienceAllGroup, session.ID, c.newCommand(CommandSeek, when, c.positionTicks))
		c.beginWaiting(session.ID, RequestSeek)
	case RequestBuffering:
		// 有成员卡顿：全组暂停在上报位置附近，等它恢复
		m.IsBuffering = true
		c.positionTicks = c.sanitizePosition(req.PositionTicks)
		c.lastActivity = c.clock.Now()
		c.resumePlaying = true
		c.pushCommand(AudienceAllGroup, session.ID, c.newCommand(CommandPause, c.clock.Now(), c.positionTicks))
		c.setState(GroupStateWaiting, RequestBuffering, session.ID)
	case RequestReady:
		// 迟到的就绪上报：单发纠偏指令让它追上进度
		m.IsBuffering = false
		pos := c.currentPosition()
		when := c.clock.Now().Add(TimeSyncOffset)
		c.pushCommand(AudienceCurrentSession, session.ID, c.newCommand(CommandUnpause, when, pos))
	case RequestUnpause:
		// 已在播放：回发当前进度即可
		pos := c.currentPosition()
		when := c.clock.Now().Add(TimeSyncOffset)
		c.pushCommand(AudienceCurrentSession, session.ID, c.newCommand(CommandUnpause, when, pos))
	}
}

func (c *GroupController) handlePaused(ctx context.Context, session *SessionInfo, req *Request) {
	m := c.members[session.ID]
	switch req.Type {
	case RequestUnpause:
		c.resumePlaying = true
		c.latestReady = c.clock.Now()
		c.setState(GroupStateWaiting, RequestUnpause, session.ID)
		c.evaluateWaiting(session.ID)
	case RequestSeek:
		c.positionTicks = c.sanitizePosition(req.PositionTicks)
		c.lastActivity = c.clock.Now()
		when := c.clock.Now().Add(TimeSyncOffset)
		c.pushCommand(AudienceAllGroup, session.ID, c.newCommand(CommandSeek, when, c.positionTicks))
	case RequestBuffering:
		m.IsBuffering = true
	case RequestReady:
		// 迟到的就绪上报：回发暂停指令并纠偏
		m.IsBuffering = false
		c.latestReady = c.clampReportedWhen(req.When)
		c.pushCommand(AudienceCurrentSession, session.ID, c.newCommand(CommandPause, c.clock.Now(), c.positionTicks))
		c.correctDrift(session.ID, req)
	case RequestPause:
		// 已暂停，无事可做
	}
}

// ========== 等待协商 ==========

// beginWaiting 进入等待：未忽略等待的成员全部标记缓冲，
// 等它们各自上报 Ready。
func (c *GroupController) beginWaiting(currentSessionID string, reason RequestType) {
	for _, m := range c.members {
		m.IsBuffering = !m.IgnoreWait
	}
	c.latestReady = c.clock.Now()
	c.setState(GroupStateWaiting, reason, currentSessionID)
}

// handleReady 等待态收到就绪上报
func (c *GroupController) handleReady(ctx context.Context, session *SessionInfo, req *Request) {
	// 上报的条目与当前不符：单发队列快照让该会话纠正目标
	if cur, ok := c.queue.CurrentItem(); ok && req.PlaylistItemID != "" && req.PlaylistItemID != cur.PlaylistItemID {
		c.pushPlayQueue(AudienceCurrentSession, session.ID, RequestSetPlaylistItem)
		return
	}

	m := c.members[session.ID]
	m.IsBuffering = false

	ready := c.clampReportedWhen(req.When)
	if ready.After(c.latestReady) {
		c.latestReady = ready
	}

	// 上报位置越过条目末尾：条目已播完，推进队列
	if c.runTimeTicks > 0 && req.PositionTicks > c.runTimeTicks {
		c.handleTrackChange(ctx, session, &Request{Type: RequestNextTrack}, true, nil)
		return
	}

	c.correctDrift(session.ID, req)
	c.evaluateWaiting(session.ID)
}

// correctDrift 成员位置偏离组位置过多时单发纠偏 Seek
func (c *GroupController) correctDrift(sessionID string, req *Request) {
	drift := req.PositionTicks - c.positionTicks
	if drift < 0 {
		drift = -drift
	}
	if TicksToDuration(drift) <= MaxPlaybackOffset {
		return
	}
	when := c.clock.Now().Add(TimeSyncOffset)
	c.pushCommand(AudienceCurrentSession, sessionID, c.newCommand(CommandSeek, when, c.positionTicks))
}

// evaluateWaiting 就绪条件满足时结束等待
func (c *GroupController) evaluateWaiting(currentSessionID string) {
	if c.state != GroupStateWaiting || !c.allReady() {
		return
	}
	reason := RequestUnpause
	if !c.resumePlaying {
		reason = RequestReady
	}
	c.finishWaiting(currentSessionID, reason)
}

// finishWaiting 结束等待：起播时刻取当前时刻与最晚就绪时刻
// 加提前量、加最大时延之间的较大者，保证最慢的成员也来得及。
func (c *GroupController) finishWaiting(currentSessionID string, reason RequestType) {
	now := c.clock.Now()
	readyTime := c.latestReady.Add(TimeSyncOffset).Add(c.highestPing())
	if now.After(readyTime) {
		readyTime = now
	}
	c.lastActivity = readyTime

	if c.resumePlaying {
		c.pushCommand(AudienceAllReady, currentSessionID, c.newCommand(CommandUnpause, readyTime, c.positionTicks))
		c.setState(GroupStatePlaying, reason, currentSessionID)
	} else {
		c.pushCommand(AudienceAllReady, currentSessionID, c.newCommand(CommandPause, readyTime, c.positionTicks))
		c.setState(GroupStatePaused, reason, currentSessionID)
	}
}
