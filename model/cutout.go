package model

// NormalizedImage 规范化后的图片，统一为单帧PNG字节
type NormalizedImage struct {
	PNG    []byte
	Width  int
	Height int
	Format string // 上传时的原始格式: png, jpeg, webp
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Error string `json:"error"`
}
