package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/TIANLI0/CutoutKit/config"
)

// RembgClient 调用外部 rembg 推理服务去背景
// 约定：POST multipart，file 字段为PNG字节，响应体为处理后的PNG字节
type RembgClient struct {
	endpoint string
	model    string
	cli      *http.Client
}

func NewRembgClient(cfg *config.SegmenterConfig) *RembgClient {
	return &RembgClient{
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		cli:      &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *RembgClient) Remove(ctx context.Context, data []byte) ([]byte, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "input.png")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("write form file: %w", err)
	}
	if c.model != "" {
		_ = writer.WriteField("model", c.model)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close form writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "image/png")

	resp, err := c.cli.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call rembg server: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("rembg server returned status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read rembg response: %w", err)
	}
	return out, nil
}
