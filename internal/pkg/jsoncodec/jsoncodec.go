// Package jsoncodec 为普通 Go 结构体提供 Connect 的 "json" 编解码.
// 注册后会替换 connect 默认的 protojson 实现.
package jsoncodec

import (
	"encoding/json"
	"fmt"
)

const Name = "json"

type Codec struct{}

func (Codec) Name() string {
	return Name
}

func (Codec) Marshal(message any) ([]byte, error) {
	return json.Marshal(message)
}

func (Codec) Unmarshal(data []byte, message any) error {
	// 空请求体视为空消息
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, message); err != nil {
		return fmt.Errorf("unmarshal %T: %w", message, err)
	}
	return nil
}
