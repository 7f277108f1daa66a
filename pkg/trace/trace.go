package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
)

const PassIDKey = "pass_id"

// GeneratePassID 生成一个新的抓取轮次 ID
func GeneratePassID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// FromContext 从 context 中获取 pass_id
func FromContext(ctx context.Context) string {
	if passID, ok := ctx.Value(PassIDKey).(string); ok {
		return passID
	}
	return ""
}

// WithContext 将 pass_id 添加到 context 中
func WithContext(ctx context.Context, passID string) context.Context {
	return context.WithValue(ctx, PassIDKey, passID)
}

// HeaderName 返回 pass ID 的 HTTP header 名称
// 手动触发的抓取可以通过该 header 指定自己的关联 ID
func HeaderName() string {
	return "X-Pass-ID"
}
