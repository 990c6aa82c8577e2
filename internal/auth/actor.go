package auth

import (
	"context"
)

type contextKey int

const (
	actorKey contextKey = iota
	clientKey
)

// Actor 当前操作人
type Actor struct {
	UserID   *uint
	Subject  string
	Username string
	Roles    []string
}

// HasRole 判断是否拥有角色
func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// ClientInfo 请求来源信息
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

// WithActor 将操作人写入上下文
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext 从上下文读取操作人
func ActorFromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorKey).(Actor)
	return actor, ok
}

// WithClient 将请求来源写入上下文
func WithClient(ctx context.Context, info ClientInfo) context.Context {
	return context.WithValue(ctx, clientKey, info)
}

// ClientFromContext 从上下文读取请求来源
func ClientFromContext(ctx context.Context) ClientInfo {
	if ctx == nil {
		return ClientInfo{}
	}
	info, _ := ctx.Value(clientKey).(ClientInfo)
	return info
}
