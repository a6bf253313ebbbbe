package handler

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/TIANLI0/CutoutKit/config"
	"github.com/TIANLI0/CutoutKit/middleware"
	"github.com/TIANLI0/CutoutKit/model"
	"github.com/TIANLI0/CutoutKit/service"
	"github.com/TIANLI0/CutoutKit/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type RemoveHandler struct {
	cfg          *config.Config
	cache        *service.RedisService
	segmenter    service.Segmenter
	preprocessor *service.Preprocessor
}

func NewRemoveHandler(cfg *config.Config, cache *service.RedisService, segmenter service.Segmenter) *RemoveHandler {
	return &RemoveHandler{
		cfg:          cfg,
		cache:        cache,
		segmenter:    segmenter,
		preprocessor: service.NewPreprocessor(&cfg.Image),
	}
}

// RemoveBackground 处理上传并去背景
// 校验顺序固定：文件字段 -> 文件名 -> 扩展名 -> 大小 -> 可解码
func (h *RemoveHandler) RemoveBackground(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		if hasEmptyFileField(c) {
			c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "No file selected"})
			return
		}
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "No file uploaded"})
		return
	}

	if !h.allowedExtension(file.Filename) {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid file format. Allowed: JPG, PNG, WebP"})
		return
	}

	src, err := file.Open()
	if err != nil {
		h.processError(c, err)
		return
	}
	defer func() {
		_ = src.Close()
	}()

	data, err := io.ReadAll(src)
	if err != nil {
		h.processError(c, err)
		return
	}

	if int64(len(data)) > h.cfg.Upload.MaxSize {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Error: fmt.Sprintf("File too large. Maximum size: %dMB", h.cfg.Upload.MaxSize/(1024*1024)),
		})
		return
	}

	normalized, err := h.preprocessor.Normalize(data)
	if err != nil {
		h.processError(c, err)
		return
	}

	md5 := utils.BytesMD5(normalized.PNG)

	utils.Logger.Info("image accepted",
		zap.String("request_id", c.GetString(middleware.RequestIDKey)),
		zap.String("filename", file.Filename),
		zap.String("format", normalized.Format),
		zap.String("md5", md5),
		zap.Int("size", len(data)),
		zap.Int("width", normalized.Width),
		zap.Int("height", normalized.Height))

	// 检查缓存
	ctx := c.Request.Context()
	if h.cache != nil {
		cached, err := h.cache.GetCutout(ctx, md5)
		if err != nil {
			utils.Logger.Warn("failed to get cache", zap.Error(err))
		}
		if cached != nil {
			utils.Logger.Info("cache hit", zap.String("md5", md5))
			h.respondPNG(c, cached)
			return
		}
	}

	out, err := h.segmenter.Remove(ctx, normalized.PNG)
	if err != nil {
		h.processError(c, err)
		return
	}

	if h.cache != nil {
		if err := h.cache.SetCutout(ctx, md5, out); err != nil {
			utils.Logger.Warn("failed to set cache", zap.Error(err))
		}
	}

	h.dumpScratch(c, normalized.PNG, out)
	h.respondPNG(c, out)
}

func (h *RemoveHandler) respondPNG(c *gin.Context, data []byte) {
	c.Header("Content-Disposition", `attachment; filename=removed_bg.png`)
	c.Data(http.StatusOK, "image/png", data)
}

// processError 未分类的处理失败统一走500
func (h *RemoveHandler) processError(c *gin.Context, err error) {
	utils.Logger.Error("failed to process image",
		zap.String("request_id", c.GetString(middleware.RequestIDKey)),
		zap.Error(err))
	c.JSON(http.StatusInternalServerError, model.ErrorResponse{
		Error: "Error processing image: " + err.Error(),
	})
}

// hasEmptyFileField 识别未选文件的提交
// 浏览器空文件框会发 filename="" 的 file 部分，multipart 解析把它归为普通表单值
func hasEmptyFileField(c *gin.Context) bool {
	form, err := c.MultipartForm()
	if err != nil || form == nil {
		return false
	}
	_, ok := form.Value["file"]
	return ok
}

// allowedExtension 最后一个点之后的扩展名（小写）必须在白名单内，无点视为非法
func (h *RemoveHandler) allowedExtension(filename string) bool {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 {
		return false
	}
	ext := strings.ToLower(filename[idx+1:])
	for _, allowed := range h.cfg.Upload.AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// dumpScratch debug模式下把输入输出PNG落盘，便于排查分割质量
func (h *RemoveHandler) dumpScratch(c *gin.Context, in, out []byte) {
	if h.cfg.Server.Mode != "debug" || h.cfg.Scratch.Dir == "" {
		return
	}

	id := c.GetString(middleware.RequestIDKey)
	if id == "" {
		id = utils.NewRequestID()
	}

	for suffix, data := range map[string][]byte{"_in.png": in, "_out.png": out} {
		path := filepath.Join(h.cfg.Scratch.Dir, id+suffix)
		if err := os.WriteFile(path, data, 0644); err != nil {
			utils.Logger.Warn("failed to write scratch file", zap.String("file", path), zap.Error(err))
		}
	}
}
