package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/TIANLI0/CutoutKit/config"
	"github.com/TIANLI0/CutoutKit/utils"
	"go.uber.org/zap"
)

// Segmenter 背景分割：规范化PNG字节 -> 背景透明的PNG字节
type Segmenter interface {
	Remove(ctx context.Context, data []byte) ([]byte, error)
}

// NewSegmenter 根据配置选择分割引擎
func NewSegmenter(cfg *config.SegmenterConfig) (Segmenter, error) {
	var inner Segmenter
	switch cfg.Engine {
	case "", "rembg":
		inner = NewRembgClient(cfg)
	case "grabcut":
		inner = NewGrabCutEngine(cfg)
	default:
		return nil, fmt.Errorf("unknown segmenter engine: %q", cfg.Engine)
	}
	return &lazySegmenter{inner: inner, engine: cfg.Engine}, nil
}

// lazySegmenter 首次调用时打一条模型加载日志，之后直接透传
type lazySegmenter struct {
	inner  Segmenter
	engine string
	once   sync.Once
}

func (s *lazySegmenter) Remove(ctx context.Context, data []byte) ([]byte, error) {
	s.once.Do(func() {
		utils.Logger.Info("loading background removal model (first-time initialization)",
			zap.String("engine", s.engine))
	})
	return s.inner.Remove(ctx, data)
}
