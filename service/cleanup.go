package service

import (
	"os"
	"path/filepath"
	"time"

	"github.com/TIANLI0/CutoutKit/config"
	"github.com/TIANLI0/CutoutKit/utils"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// CleanupService 定期清理调试输出目录里的过期文件
type CleanupService struct {
	dir      string
	maxAge   time.Duration
	schedule string
	cron     *cron.Cron
}

func NewCleanupService(cfg *config.ScratchConfig) *CleanupService {
	return &CleanupService{
		dir:      cfg.Dir,
		maxAge:   cfg.MaxAge,
		schedule: cfg.Schedule,
		cron:     cron.New(),
	}
}

func (s *CleanupService) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.sweep); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

func (s *CleanupService) Stop() {
	s.cron.Stop()
}

func (s *CleanupService) sweep() {
	cutoff := time.Now().Add(-s.maxAge)
	removed := 0

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			utils.Logger.Warn("failed to read scratch dir", zap.String("dir", s.dir), zap.Error(err))
		}
		return
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		if err := os.Remove(path); err != nil {
			utils.Logger.Warn("failed to remove scratch file", zap.String("file", path), zap.Error(err))
			continue
		}
		removed++
	}

	if removed > 0 {
		utils.Logger.Debug("scratch files cleaned", zap.Int("removed", removed))
	}
}
