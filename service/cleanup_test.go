package service

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/TIANLI0/CutoutKit/config"
	"github.com/stretchr/testify/require"
)

func TestCleanupSweepRemovesOnlyStaleFiles(t *testing.T) {
	dir := t.TempDir()

	stale := filepath.Join(dir, "old_out.png")
	fresh := filepath.Join(dir, "new_out.png")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0644))
	require.NoError(t, os.WriteFile(fresh, []byte("x"), 0644))

	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(stale, past, past))

	s := NewCleanupService(&config.ScratchConfig{
		Dir:      dir,
		MaxAge:   time.Hour,
		Schedule: "@every 10m",
	})
	s.sweep()

	_, err := os.Stat(stale)
	require.True(t, os.IsNotExist(err), "stale file should be removed")
	_, err = os.Stat(fresh)
	require.NoError(t, err, "fresh file should survive")
}

func TestCleanupSweepMissingDir(t *testing.T) {
	s := NewCleanupService(&config.ScratchConfig{
		Dir:      filepath.Join(t.TempDir(), "does-not-exist"),
		MaxAge:   time.Hour,
		Schedule: "@every 10m",
	})
	// 目录不存在只跳过，不报错
	s.sweep()
}
