package syncplay

import "go.uber.org/zap"

// HandleWebRTC 组内信令转发。负载对服务端不透明：包上发送方
// 标识后原样转出。to 为空广播给除发送方外的全组；指定了 to 但
// 不是在组成员则告警丢弃。调用方持有分组锁。
func (c *GroupController) HandleWebRTC(session *SessionInfo, req *WebRTCRequest) {
	if _, ok := c.members[session.ID]; !ok {
		return
	}
	payload := &WebRTCPayload{
		FromSessionID: session.ID,
		IsNewSession:  req.NewSession,
		IsLeaving:     req.SessionLeaving,
		ICECandidate:  req.ICECandidate,
		Offer:         req.Offer,
		Answer:        req.Answer,
	}
	if req.To == "" {
		c.pushUpdate(AudienceAllExceptCurrentSession, session.ID, GroupUpdateWebRTC, payload)
		return
	}
	if _, ok := c.members[req.To]; !ok {
		c.logger.Warn("信令目标不在组内",
			zap.String("groupId", c.groupID),
			zap.String("from", session.ID),
			zap.String("to", req.To))
		return
	}
	update := &GroupUpdate{GroupID: c.groupID, Type: GroupUpdateWebRTC, Data: marshalData(payload)}
	c.outbox = append(c.outbox, envelope{SessionID: req.To, Update: update})
}
