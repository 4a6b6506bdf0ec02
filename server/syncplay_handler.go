package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"SyncFM/core/syncplay"
	"SyncFM/logger"
)

// 命令通道的语义是发后即忘：参数合法即返回 204，语义上的拒绝
// 通过会话通道以 GroupUpdate 带外下发。只有未认证或参数畸形
// 才返回 4xx。

// NewGroupHandler 创建分组
func (h *APIHandler) NewGroupHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}

	groupName := r.URL.Query().Get("groupName")
	if groupName == "" {
		http.Error(w, "groupName is required", http.StatusBadRequest)
		return
	}
	invited, err := queryInt64List(r, "invitedUsers")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	openPlayback, err := queryBool(r, "openPlaybackAccess", true)
	if err != nil {
		http.Error(w, "invalid openPlaybackAccess", http.StatusBadRequest)
		return
	}
	openPlaylist, err := queryBool(r, "openPlaylistAccess", true)
	if err != nil {
		http.Error(w, "invalid openPlaylistAccess", http.StatusBadRequest)
		return
	}

	h.manager.NewGroup(r.Context(), s, &syncplay.NewGroupRequest{
		GroupName:          groupName,
		Visibility:         r.URL.Query().Get("visibility"),
		InvitedUsers:       invited,
		OpenPlaybackAccess: openPlayback,
		OpenPlaylistAccess: openPlaylist,
	})
	w.WriteHeader(http.StatusNoContent)
}

// JoinGroupHandler 加入分组
func (h *APIHandler) JoinGroupHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}

	groupID := r.URL.Query().Get("groupId")
	if groupID == "" {
		http.Error(w, "groupId is required", http.StatusBadRequest)
		return
	}

	h.manager.JoinGroup(r.Context(), s, &syncplay.JoinGroupRequest{GroupID: groupID})
	w.WriteHeader(http.StatusNoContent)
}

// LeaveGroupHandler 退出分组
func (h *APIHandler) LeaveGroupHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}

	h.manager.LeaveGroup(r.Context(), s)
	w.WriteHeader(http.StatusNoContent)
}

// GroupSettingsHandler 更新分组设置（仅管理员生效）
func (h *APIHandler) GroupSettingsHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}

	req := &syncplay.UpdateSettingsRequest{}
	if v := r.URL.Query().Get("groupName"); v != "" {
		req.GroupName = &v
	}
	if v := r.URL.Query().Get("visibility"); v != "" {
		req.Visibility = &v
	}
	invited, err := queryInt64List(r, "invitedUsers")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.InvitedUsers = invited

	req.OpenPlaybackAccess, err = queryBoolPtr(r, "openPlaybackAccess")
	if err != nil {
		http.Error(w, "invalid openPlaybackAccess", http.StatusBadRequest)
		return
	}
	req.OpenPlaylistAccess, err = queryBoolPtr(r, "openPlaylistAccess")
	if err != nil {
		http.Error(w, "invalid openPlaylistAccess", http.StatusBadRequest)
		return
	}

	userIDs, err := queryInt64List(r, "accessListUserIds")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	playback, err := queryBoolList(r, "accessListPlayback")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	playlist, err := queryBoolList(r, "accessListPlaylist")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(playback) != len(userIDs) || len(playlist) != len(userIDs) {
		http.Error(w, "access list arrays must have equal length", http.StatusBadRequest)
		return
	}
	for i, uid := range userIDs {
		req.AccessList = append(req.AccessList, syncplay.PermissionEntry{
			UserID:   uid,
			Playback: playback[i],
			Playlist: playlist[i],
		})
	}

	req.Administrators, err = queryInt64List(r, "administrators")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.manager.UpdateGroupSettings(r.Context(), s, req)
	w.WriteHeader(http.StatusNoContent)
}

// ListGroupsHandler 列出可加入的分组
func (h *APIHandler) ListGroupsHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}

	if cached, err := h.groupCache.Get(r.Context(), s.UserID); err == nil && cached != nil {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(cached)
		return
	}

	groups := h.manager.ListGroups(r.Context(), s)
	if err := h.groupCache.Set(r.Context(), s.UserID, groups); err != nil {
		logger.Warn("写入分组列表缓存失败",
			logger.ErrorField(err),
			logger.Int64("userId", s.UserID))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(groups)
}

// ListAvailableUsersHandler 列出可邀请的在线用户
func (h *APIHandler) ListAvailableUsersHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}

	users, err := h.manager.ListAvailableUsers(r.Context(), s)
	if err != nil {
		logger.Error("查询可邀请用户失败", logger.ErrorField(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(users)
}

// ========== 播放控制 ==========

// PlayHandler 以指定队列开始播放
func (h *APIHandler) PlayHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}

	queue, err := queryInt64List(r, "playingQueue")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	index, err := queryInt(r, "playingItemPosition", 0)
	if err != nil {
		http.Error(w, "invalid playingItemPosition", http.StatusBadRequest)
		return
	}
	start, err := queryInt64(r, "startPositionTicks", 0)
	if err != nil {
		http.Error(w, "invalid startPositionTicks", http.StatusBadRequest)
		return
	}

	h.manager.HandleRequest(r.Context(), s, &syncplay.Request{
		Type:               syncplay.RequestPlay,
		Queue:              queue,
		PlayingIndex:       index,
		StartPositionTicks: start,
	})
	w.WriteHeader(http.StatusNoContent)
}

// UnpauseHandler 请求恢复播放
func (h *APIHandler) UnpauseHandler(w http.ResponseWriter, r *http.Request) {
	h.simpleRequest(w, r, syncplay.RequestUnpause)
}

// PauseHandler 请求暂停
func (h *APIHandler) PauseHandler(w http.ResponseWriter, r *http.Request) {
	h.simpleRequest(w, r, syncplay.RequestPause)
}

// StopHandler 请求停止
func (h *APIHandler) StopHandler(w http.ResponseWriter, r *http.Request) {
	h.simpleRequest(w, r, syncplay.RequestStop)
}

func (h *APIHandler) simpleRequest(w http.ResponseWriter, r *http.Request, typ syncplay.RequestType) {
	s, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}
	h.manager.HandleRequest(r.Context(), s, &syncplay.Request{Type: typ})
	w.WriteHeader(http.StatusNoContent)
}

// SeekHandler 请求跳转
func (h *APIHandler) SeekHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}

	pos, err := queryInt64(r, "positionTicks", 0)
	if err != nil {
		http.Error(w, "invalid positionTicks", http.StatusBadRequest)
		return
	}

	h.manager.HandleRequest(r.Context(), s, &syncplay.Request{
		Type:          syncplay.RequestSeek,
		PositionTicks: pos,
	})
	w.WriteHeader(http.StatusNoContent)
}

// BufferingHandler 客户端缓冲状态上报。bufferingDone 为真时
// 等价于就绪上报。
func (h *APIHandler) BufferingHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}

	when := time.Now().UTC()
	if raw := r.URL.Query().Get("when"); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			http.Error(w, "invalid when", http.StatusBadRequest)
			return
		}
		when = parsed.UTC()
	}
	pos, err := queryInt64(r, "positionTicks", 0)
	if err != nil {
		http.Error(w, "invalid positionTicks", http.StatusBadRequest)
		return
	}
	isPlaying, err := queryBool(r, "isPlaying", false)
	if err != nil {
		http.Error(w, "invalid isPlaying", http.StatusBadRequest)
		return
	}
	done, err := queryBool(r, "bufferingDone", false)
	if err != nil {
		http.Error(w, "invalid bufferingDone", http.StatusBadRequest)
		return
	}

	typ := syncplay.RequestBuffering
	if done {
		typ = syncplay.RequestReady
	}

	h.manager.HandleRequest(r.Context(), s, &syncplay.Request{
		Type:           typ,
		When:           when,
		PositionTicks:  pos,
		IsPlaying:      isPlaying,
		PlaylistItemID: r.URL.Query().Get("playlistItemId"),
	})
	w.WriteHeader(http.StatusNoContent)
}

// SetIgnoreWaitHandler 设置不参与等待协调
func (h *APIHandler) SetIgnoreWaitHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}

	ignore, err := queryBool(r, "ignoreWait", false)
	if err != nil {
		http.Error(w, "invalid ignoreWait", http.StatusBadRequest)
		return
	}

	h.manager.HandleRequest(r.Context(), s, &syncplay.Request{
		Type:       syncplay.RequestIgnoreWait,
		IgnoreWait: ignore,
	})
	w.WriteHeader(http.StatusNoContent)
}

// NextTrackHandler 请求切到下一条目
func (h *APIHandler) NextTrackHandler(w http.ResponseWriter, r *http.Request) {
	h.trackChangeRequest(w, r, syncplay.RequestNextTrack)
}

// PreviousTrackHandler 请求切到上一条目
func (h *APIHandler) PreviousTrackHandler(w http.ResponseWriter, r *http.Request) {
	h.trackChangeRequest(w, r, syncplay.RequestPreviousTrack)
}

func (h *APIHandler) trackChangeRequest(w http.ResponseWriter, r *http.Request, typ syncplay.RequestType) {
	s, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}
	h.manager.HandleRequest(r.Context(), s, &syncplay.Request{
		Type:           typ,
		PlaylistItemID: r.URL.Query().Get("playlistItemId"),
	})
	w.WriteHeader(http.StatusNoContent)
}

// PingHandler 会话延迟上报
func (h *APIHandler) PingHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}

	ping := 0.0
	if raw := r.URL.Query().Get("ping"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			http.Error(w, "invalid ping", http.StatusBadRequest)
			return
		}
		ping = parsed
	}

	h.manager.HandleRequest(r.Context(), s, &syncplay.Request{
		Type: syncplay.RequestPing,
		Ping: ping,
	})
	w.WriteHeader(http.StatusNoContent)
}

// ========== 队列编辑 ==========

// SetPlaylistItemHandler 切换当前条目
func (h *APIHandler) SetPlaylistItemHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}

	pid := r.URL.Query().Get("playlistItemId")
	if pid == "" {
		http.Error(w, "playlistItemId is required", http.StatusBadRequest)
		return
	}

	h.manager.HandleRequest(r.Context(), s, &syncplay.Request{
		Type:           syncplay.RequestSetPlaylistItem,
		PlaylistItemID: pid,
	})
	w.WriteHeader(http.StatusNoContent)
}

// RemoveFromPlaylistHandler 移除队列条目
func (h *APIHandler) RemoveFromPlaylistHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}

	h.manager.HandleRequest(r.Context(), s, &syncplay.Request{
		Type:            syncplay.RequestRemoveFromPlaylist,
		PlaylistItemIDs: queryStringList(r, "playlistItemIds"),
	})
	w.WriteHeader(http.StatusNoContent)
}

// MovePlaylistItemHandler 调整条目位置
func (h *APIHandler) MovePlaylistItemHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}

	pid := r.URL.Query().Get("playlistItemId")
	if pid == "" {
		http.Error(w, "playlistItemId is required", http.StatusBadRequest)
		return
	}
	newIndex, err := queryInt(r, "newIndex", 0)
	if err != nil {
		http.Error(w, "invalid newIndex", http.StatusBadRequest)
		return
	}

	h.manager.HandleRequest(r.Context(), s, &syncplay.Request{
		Type:           syncplay.RequestMovePlaylistItem,
		PlaylistItemID: pid,
		NewIndex:       newIndex,
	})
	w.WriteHeader(http.StatusNoContent)
}

// QueueHandler 入队条目
func (h *APIHandler) QueueHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}

	itemIDs, err := queryInt64List(r, "itemIds")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	mode := r.URL.Query().Get("mode")
	if mode == "" {
		mode = syncplay.QueueModeQueue
	}

	h.manager.HandleRequest(r.Context(), s, &syncplay.Request{
		Type:      syncplay.RequestQueue,
		ItemIDs:   itemIDs,
		QueueMode: mode,
	})
	w.WriteHeader(http.StatusNoContent)
}

// SetRepeatModeHandler 设置循环模式
func (h *APIHandler) SetRepeatModeHandler(w http.ResponseWriter, r *http.Request) {
	h.modeRequest(w, r, syncplay.RequestSetRepeatMode)
}

// SetShuffleModeHandler 设置乱序模式
func (h *APIHandler) SetShuffleModeHandler(w http.ResponseWriter, r *http.Request) {
	h.modeRequest(w, r, syncplay.RequestSetShuffleMode)
}

func (h *APIHandler) modeRequest(w http.ResponseWriter, r *http.Request, typ syncplay.RequestType) {
	s, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}

	mode := r.URL.Query().Get("mode")
	if mode == "" {
		http.Error(w, "mode is required", http.StatusBadRequest)
		return
	}

	h.manager.HandleRequest(r.Context(), s, &syncplay.Request{Type: typ, Mode: mode})
	w.WriteHeader(http.StatusNoContent)
}

// ========== WebRTC 信令 ==========

// WebRTCHandler 信令转发。负载对服务端不透明，原样转交目标会话。
func (h *APIHandler) WebRTCHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}

	newSession, err := queryBool(r, "newSession", false)
	if err != nil {
		http.Error(w, "invalid newSession", http.StatusBadRequest)
		return
	}
	leaving, err := queryBool(r, "sessionLeaving", false)
	if err != nil {
		http.Error(w, "invalid sessionLeaving", http.StatusBadRequest)
		return
	}

	req := &syncplay.WebRTCRequest{
		To:             r.URL.Query().Get("to"),
		NewSession:     newSession,
		SessionLeaving: leaving,
	}
	if raw := r.URL.Query().Get("iceCandidate"); raw != "" {
		req.ICECandidate = json.RawMessage(raw)
	}
	if raw := r.URL.Query().Get("offer"); raw != "" {
		req.Offer = json.RawMessage(raw)
	}
	if raw := r.URL.Query().Get("answer"); raw != "" {
		req.Answer = json.RawMessage(raw)
	}

	h.manager.HandleWebRTC(r.Context(), s, req)
	w.WriteHeader(http.StatusNoContent)
}
