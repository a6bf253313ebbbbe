package service

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	"image/png"
	"math"

	"github.com/TIANLI0/CutoutKit/config"
	"github.com/TIANLI0/CutoutKit/model"
	"github.com/nfnt/resize"
	_ "golang.org/x/image/webp"
)

// Preprocessor 负责上传图片的规范化：解码、颜色模式统一、缩放、PNG重编码
type Preprocessor struct {
	maxDimension int
}

func NewPreprocessor(cfg *config.ImageConfig) *Preprocessor {
	return &Preprocessor{
		maxDimension: cfg.MaxDimension,
	}
}

// Normalize 把上传字节变成
//
//	尺寸 ≤ maxDimension（等比缩放，不放大）
//	带透明通道的模式保持不变，其余统一为真彩色
//	单帧无损PNG
func (p *Preprocessor) Normalize(data []byte) (*model.NormalizedImage, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	img = coerceColorMode(img)
	img = p.shrinkWithinMax(img)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}

	b := img.Bounds()
	return &model.NormalizedImage{
		PNG:    buf.Bytes(),
		Width:  b.Dx(),
		Height: b.Dy(),
		Format: format,
	}, nil
}

// coerceColorMode 带透明能力的模式原样保留，其余转真彩色
// CMYK 等非RGB族输入也会落到真彩色分支
func coerceColorMode(img image.Image) image.Image {
	switch img.(type) {
	case *image.NRGBA, *image.NRGBA64, *image.RGBA, *image.RGBA64,
		*image.Paletted, *image.NYCbCrA:
		return img
	default:
		return toNRGBA(img)
	}
}

func toNRGBA(img image.Image) *image.NRGBA {
	if nrgba, ok := img.(*image.NRGBA); ok {
		return nrgba
	}
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// shrinkWithinMax 缩放（最长边 <= maxDimension），小图不放大
func (p *Preprocessor) shrinkWithinMax(img image.Image) image.Image {
	b := img.Bounds()
	w := b.Dx()
	h := b.Dy()

	if w <= p.maxDimension && h <= p.maxDimension {
		return img
	}

	ratio := math.Min(float64(p.maxDimension)/float64(w), float64(p.maxDimension)/float64(h))
	newW := int(float64(w) * ratio)
	newH := int(float64(h) * ratio)

	return resize.Resize(uint(newW), uint(newH), img, resize.Lanczos3)
}
