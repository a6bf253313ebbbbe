package utils

import (
	"github.com/segmentio/ksuid"
)

// NewRequestID 生成请求ID，按时间有序
func NewRequestID() string {
	return ksuid.New().String()
}
