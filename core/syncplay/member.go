package syncplay

// member 组内一个会话的即时状态。按会话而非用户计：同一用户的
// 多个会话是彼此独立的成员。
type member struct {
	SessionID string
	UserID    int64
	Username  string

	// Ping 最近上报的往返时延估计（毫秒），入组时取默认值
	Ping float64

	// IgnoreWait 为真时该成员不参与缓冲等待协商
	IgnoreWait bool

	// IsBuffering 成员当前是否处于缓冲中
	IsBuffering bool
}

// DefaultPing 未收到 Ping 上报前的保守默认值（毫秒）
const DefaultPing float64 = 500

func newMember(info *SessionInfo) *member {
	return &member{
		SessionID: info.ID,
		UserID:    info.UserID,
		Username:  info.Username,
		Ping:      DefaultPing,
	}
}
