// Package v1 定义 check.v1 服务的消息, 使用 JSON 编解码.
package v1

type ReadyCheckReq struct{}

type ReadyCheckReply struct {
	Status  string            `json:"status"`
	Details map[string]string `json:"details,omitempty"`
}
