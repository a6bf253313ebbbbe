package service

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/TIANLI0/CutoutKit/config"
	"github.com/TIANLI0/CutoutKit/utils"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// GrabCutEngine 本地 OpenCV 分割引擎，不依赖外部推理服务
// 以边框矩形初始化 GrabCut，把前景掩码作为 alpha 通道写回
type GrabCutEngine struct {
	iterations   int
	borderSize   int
	semaphore    chan struct{}
	queueTimeout time.Duration
}

func NewGrabCutEngine(cfg *config.SegmenterConfig) *GrabCutEngine {
	return &GrabCutEngine{
		iterations:   cfg.Iterations,
		borderSize:   cfg.BorderSize,
		semaphore:    make(chan struct{}, cfg.MaxConcurrent),
		queueTimeout: time.Duration(cfg.QueueTimeout) * time.Second,
	}
}

func (e *GrabCutEngine) Remove(ctx context.Context, data []byte) ([]byte, error) {
	// 并发控制
	qctx, cancel := context.WithTimeout(ctx, e.queueTimeout)
	defer cancel()

	select {
	case e.semaphore <- struct{}{}:
		defer func() { <-e.semaphore }()
	case <-qctx.Done():
		return nil, fmt.Errorf("processing queue is full")
	}

	startTime := time.Now()

	img, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	defer img.Close()
	if img.Empty() {
		return nil, fmt.Errorf("decode image: empty matrix")
	}

	width := img.Cols()
	height := img.Rows()

	border := e.borderSize
	if minDim := min(width, height); border*2 >= minDim {
		border = minDim / 4
	}
	initRect := image.Rect(border, border, width-border, height-border)

	mask := gocv.NewMat()
	defer mask.Close()
	bgdModel := gocv.NewMat()
	defer bgdModel.Close()
	fgdModel := gocv.NewMat()
	defer fgdModel.Close()

	gocv.GrabCut(img, &mask, initRect, &bgdModel, &fgdModel, e.iterations, gocv.GCInitWithRect)

	fgMask := extractForeground(&mask)
	defer fgMask.Close()

	cleaned := morphologyOptimize(&fgMask, 3)
	defer cleaned.Close()

	refined := refineEdges(&cleaned)
	defer refined.Close()

	out, err := applyAlpha(&img, &refined)
	if err != nil {
		return nil, err
	}

	utils.Logger.Info("grabcut segmentation done",
		zap.Int("width", width),
		zap.Int("height", height),
		zap.Duration("duration", time.Since(startTime)))

	return out, nil
}

// extractForeground 把 GrabCut 掩码中的确定前景和可能前景合并为二值掩码
func extractForeground(mask *gocv.Mat) gocv.Mat {
	fgMask := gocv.NewMat()
	fgd := gocv.NewMatFromScalar(gocv.Scalar{Val1: 1}, gocv.MatTypeCV8U)
	defer fgd.Close()
	gocv.Compare(*mask, fgd, &fgMask, gocv.CompareEQ)

	prMask := gocv.NewMat()
	defer prMask.Close()
	prFgd := gocv.NewMatFromScalar(gocv.Scalar{Val1: 3}, gocv.MatTypeCV8U)
	defer prFgd.Close()
	gocv.Compare(*mask, prFgd, &prMask, gocv.CompareEQ)

	combined := gocv.NewMat()
	gocv.BitwiseOr(fgMask, prMask, &combined)
	fgMask.Close()

	return combined
}

// morphologyOptimize 开闭运算去掉掩码噪点和孔洞
func morphologyOptimize(mask *gocv.Mat, kernelSize int) gocv.Mat {
	kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Point{X: kernelSize, Y: kernelSize})
	defer kernel.Close()

	opened := gocv.NewMat()
	gocv.MorphologyEx(*mask, &opened, gocv.MorphOpen, kernel)

	closed := gocv.NewMat()
	gocv.MorphologyEx(opened, &closed, gocv.MorphClose, kernel)
	opened.Close()

	return closed
}

// refineEdges 轻微膨胀加模糊后重新二值化，平滑掩码边缘
func refineEdges(mask *gocv.Mat) gocv.Mat {
	kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Point{X: 2, Y: 2})
	defer kernel.Close()

	dilated := gocv.NewMat()
	gocv.Dilate(*mask, &dilated, kernel)

	blurred := gocv.NewMat()
	gocv.GaussianBlur(dilated, &blurred, image.Point{X: 3, Y: 3}, 0, 0, gocv.BorderDefault)
	dilated.Close()

	final := gocv.NewMat()
	gocv.Threshold(blurred, &final, 127, 255, gocv.ThresholdBinary)
	blurred.Close()

	return final
}

// applyAlpha 把掩码并入为第四通道并编码PNG
func applyAlpha(img, mask *gocv.Mat) ([]byte, error) {
	channels := gocv.Split(*img)
	defer func() {
		for i := range channels {
			channels[i].Close()
		}
	}()
	if len(channels) != 3 {
		return nil, fmt.Errorf("unexpected channel count: %d", len(channels))
	}

	bgra := gocv.NewMat()
	defer bgra.Close()
	gocv.Merge([]gocv.Mat{channels[0], channels[1], channels[2], *mask}, &bgra)

	buf, err := gocv.IMEncode(".png", bgra)
	if err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	defer buf.Close()

	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())
	return out, nil
}
