package syncplay

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"SyncFM/model"
)

// groupEntry 分组及其互斥锁。emptySince 非零表示组已空，
// 由清扫协程在宽限期后回收。
type groupEntry struct {
	mu         sync.Mutex
	controller *GroupController
	emptySince time.Time
}

// Manager 分组注册表与请求入口。锁次序固定：先 mu 后分组锁，
// 绝不反向；出站消息在分组锁内组装、放锁后派发。
type Manager struct {
	mu           sync.Mutex
	groups       map[string]*groupEntry
	sessionGroup map[string]string

	sender   Sender
	registry SessionRegistry
	users    UserService
	library  MediaLibrary
	clock    Clock
	logger   *zap.Logger

	// emptyGrace 空组保留时长，0 表示立即回收
	emptyGrace time.Duration
}

// NewManager 创建分组管理器
func NewManager(sender Sender, registry SessionRegistry, users UserService, library MediaLibrary, clock Clock, emptyGrace time.Duration, logger *zap.Logger) *Manager {
	return &Manager{
		groups:       make(map[string]*groupEntry),
		sessionGroup: make(map[string]string),
		sender:       sender,
		registry:     registry,
		users:        users,
		library:      library,
		clock:        clock,
		logger:       logger,
		emptyGrace:   emptyGrace,
	}
}

// ========== 消息派发 ==========

// dispatch 放锁后的消息派发：按会话分桶保持组装顺序，
// 各会话并发投递，失败只记日志不回滚。
func (m *Manager) dispatch(ctx context.Context, envelopes []envelope) {
	if len(envelopes) == 0 {
		return
	}
	perSession := make(map[string][]envelope)
	order := make([]string, 0)
	for _, e := range envelopes {
		if _, ok := perSession[e.SessionID]; !ok {
			order = append(order, e.SessionID)
		}
		perSession[e.SessionID] = append(perSession[e.SessionID], e)
	}
	for _, sessionID := range order {
		batch := perSession[sessionID]
		go func(sessionID string, batch []envelope) {
			for _, e := range batch {
				var err error
				if e.Update != nil {
					err = m.sender.SendGroupUpdate(ctx, sessionID, e.Update)
				} else if e.Command != nil {
					err = m.sender.SendCommand(ctx, sessionID, e.Command)
				}
				if err != nil {
					m.logger.Warn("消息投递失败",
						zap.String("sessionId", sessionID),
						zap.Error(err))
				}
			}
		}(sessionID, batch)
	}
}

// notify 向单个会话发送一条带外通知
func (m *Manager) notify(ctx context.Context, sessionID, groupID string, typ GroupUpdateType, data interface{}) {
	update := &GroupUpdate{GroupID: groupID, Type: typ, Data: marshalData(data)}
	m.dispatch(ctx, []envelope{{SessionID: sessionID, Update: update}})
}

// entryFor 查会话当前所在分组
func (m *Manager) entryFor(sessionID string) (*groupEntry, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	groupID, ok := m.sessionGroup[sessionID]
	if !ok {
		return nil, ""
	}
	entry, ok := m.groups[groupID]
	if !ok {
		return nil, ""
	}
	return entry, groupID
}

// ========== 建组 / 入组 / 离组 ==========

// NewGroup 创建分组。创建者若正在本地播放，组队列接续其进度。
func (m *Manager) NewGroup(ctx context.Context, session *SessionInfo, req *NewGroupRequest) {
	u, err := m.users.User(ctx, session.UserID)
	if err != nil || u == nil || !u.CanCreateSyncPlayGroup() {
		m.notify(ctx, session.ID, "", GroupUpdateLibraryAccessDenied, "当前用户无权创建协同播放分组")
		return
	}

	m.mu.Lock()
	if _, ok := m.sessionGroup[session.ID]; ok {
		m.mu.Unlock()
		m.notify(ctx, session.ID, "", GroupUpdateCreateGroupDenied, "会话已在其他分组中")
		return
	}
	groupID := uuid.NewString()
	controller := NewGroupController(groupID, req, session, m.clock, m.library, m.logger)
	entry := &groupEntry{controller: controller}
	m.groups[groupID] = entry
	m.sessionGroup[session.ID] = groupID
	m.mu.Unlock()

	entry.mu.Lock()
	controller.SessionJoined(session)
	if session.HasPlayback && len(session.NowPlayingQueue) > 0 {
		if controller.queueAccessAllowed(ctx, m.users, session.NowPlayingQueue) {
			controller.SeedFromSession(ctx, session)
		} else {
			controller.pushUpdate(AudienceCurrentSession, session.ID, GroupUpdateLibraryAccessDenied, "当前播放队列包含不可访问的条目")
		}
	}
	out := controller.DrainOutbox()
	entry.mu.Unlock()

	m.logger.Info("分组已创建",
		zap.String("groupId", groupID),
		zap.Int64("creatorId", session.UserID))
	m.dispatch(ctx, out)
}

// JoinGroup 加入分组。已在其他组时先自动退出；重复加入同一组
// 视为会话恢复，重绑定并重放当前状态。
func (m *Manager) JoinGroup(ctx context.Context, session *SessionInfo, req *JoinGroupRequest) {
	u, err := m.users.User(ctx, session.UserID)
	if err != nil || u == nil || !u.CanJoinSyncPlayGroup() {
		m.notify(ctx, session.ID, req.GroupID, GroupUpdateJoinGroupDenied, "当前用户无权加入协同播放分组")
		return
	}

	m.mu.Lock()
	entry, ok := m.groups[req.GroupID]
	if !ok {
		m.mu.Unlock()
		m.notify(ctx, session.ID, req.GroupID, GroupUpdateGroupDoesNotExist, nil)
		return
	}
	currentGroup, inGroup := m.sessionGroup[session.ID]
	m.mu.Unlock()

	if inGroup && currentGroup == req.GroupID {
		entry.mu.Lock()
		entry.controller.SessionRestored(session)
		out := entry.controller.DrainOutbox()
		entry.mu.Unlock()
		m.dispatch(ctx, out)
		return
	}
	if inGroup {
		m.LeaveGroup(ctx, session)
	}

	entry.mu.Lock()
	if !entry.controller.Access().CanJoin(session.UserID) {
		entry.mu.Unlock()
		m.notify(ctx, session.ID, req.GroupID, GroupUpdateJoinGroupDenied, "分组可见性规则拒绝了该用户")
		return
	}
	entry.controller.SessionJoined(session)
	entry.emptySince = time.Time{}
	out := entry.controller.DrainOutbox()
	entry.mu.Unlock()

	m.mu.Lock()
	m.sessionGroup[session.ID] = req.GroupID
	m.mu.Unlock()

	m.dispatch(ctx, out)
}

// LeaveGroup 退出当前分组，不在任何分组时为空操作
func (m *Manager) LeaveGroup(ctx context.Context, session *SessionInfo) {
	entry, groupID := m.entryFor(session.ID)
	if entry == nil {
		return
	}

	entry.mu.Lock()
	entry.controller.SessionLeft(session.ID)
	empty := entry.controller.IsEmpty()
	if empty {
		entry.emptySince = m.clock.Now()
	}
	out := entry.controller.DrainOutbox()
	entry.mu.Unlock()

	m.mu.Lock()
	delete(m.sessionGroup, session.ID)
	if empty && m.emptyGrace <= 0 {
		delete(m.groups, groupID)
		m.logger.Info("空分组已回收", zap.String("groupId", groupID))
	}
	m.mu.Unlock()

	m.dispatch(ctx, out)
}

// OnSessionDisconnected 会话断开视同退出分组
func (m *Manager) OnSessionDisconnected(ctx context.Context, sessionID string) {
	m.LeaveGroup(ctx, &SessionInfo{ID: sessionID})
}

// ========== 设置与查询 ==========

// UpdateGroupSettings 更新分组设置，仅管理员可用
func (m *Manager) UpdateGroupSettings(ctx context.Context, session *SessionInfo, req *UpdateSettingsRequest) {
	entry, groupID := m.entryFor(session.ID)
	if entry == nil {
		m.notify(ctx, session.ID, "", GroupUpdateNotInGroup, nil)
		return
	}

	entry.mu.Lock()
	if !entry.controller.Access().IsAdmin(session.UserID) {
		entry.mu.Unlock()
		m.logger.Warn("非管理员尝试修改分组设置",
			zap.String("groupId", groupID),
			zap.Int64("userId", session.UserID))
		return
	}
	entry.controller.UpdateSettings(session.ID, req)
	out := entry.controller.DrainOutbox()
	entry.mu.Unlock()

	m.dispatch(ctx, out)
}

// ListGroups 该用户可加入的分组（可见性过滤，不排除已在组）
func (m *Manager) ListGroups(ctx context.Context, session *SessionInfo) []*model.GroupInfo {
	m.mu.Lock()
	entries := make([]*groupEntry, 0, len(m.groups))
	for _, e := range m.groups {
		entries = append(entries, e)
	}
	m.mu.Unlock()

	out := make([]*model.GroupInfo, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if e.controller.Access().CanJoin(session.UserID) && !e.controller.IsEmpty() {
			out = append(out, e.controller.Info())
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GroupID < out[j].GroupID })
	return out
}

// ListAvailableUsers 持有协同播放权限且当前在线的用户
func (m *Manager) ListAvailableUsers(ctx context.Context, session *SessionInfo) ([]*model.UserInfo, error) {
	candidates, err := m.users.UsersWithSyncPlayAccess(ctx)
	if err != nil {
		return nil, err
	}
	online := make(map[int64]bool)
	for _, s := range m.registry.OnlineSessions() {
		online[s.UserID] = true
	}
	out := make([]*model.UserInfo, 0, len(candidates))
	for _, u := range candidates {
		if online[u.ID] {
			out = append(out, &model.UserInfo{UserID: u.ID, Username: u.Username})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// ========== 请求转发 ==========

// HandleRequest 转发播放/队列请求到会话所在分组；不在组内
// 时静默丢弃。
func (m *Manager) HandleRequest(ctx context.Context, session *SessionInfo, req *Request) {
	entry, _ := m.entryFor(session.ID)
	if entry == nil {
		m.logger.Debug("请求来自组外会话，已丢弃",
			zap.String("sessionId", session.ID),
			zap.String("request", string(req.Type)))
		return
	}

	entry.mu.Lock()
	entry.controller.HandleRequest(ctx, session, req, m.users)
	out := entry.controller.DrainOutbox()
	entry.mu.Unlock()

	m.dispatch(ctx, out)
}

// HandleWebRTC 转发信令到会话所在分组
func (m *Manager) HandleWebRTC(ctx context.Context, session *SessionInfo, req *WebRTCRequest) {
	entry, _ := m.entryFor(session.ID)
	if entry == nil {
		m.notify(ctx, session.ID, "", GroupUpdateNotInGroup, nil)
		return
	}

	entry.mu.Lock()
	entry.controller.HandleWebRTC(session, req)
	out := entry.controller.DrainOutbox()
	entry.mu.Unlock()

	m.dispatch(ctx, out)
}

// ========== 后台清扫 ==========

// Run 周期清扫空分组直到 ctx 取消。宽限期为 0 时分组在最后
// 一名成员离开的瞬间已被回收，这里只兜底。
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *Manager) sweep() {
	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for groupID, entry := range m.groups {
		entry.mu.Lock()
		expired := entry.controller.IsEmpty() &&
			!entry.emptySince.IsZero() &&
			now.Sub(entry.emptySince) >= m.emptyGrace
		entry.mu.Unlock()
		if expired {
			delete(m.groups, groupID)
			m.logger.Info("空分组已回收", zap.String("groupId", groupID))
		}
	}
}
