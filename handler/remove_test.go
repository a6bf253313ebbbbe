package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/jpeg"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"testing"

	"github.com/TIANLI0/CutoutKit/config"
	"github.com/TIANLI0/CutoutKit/service"
	"github.com/TIANLI0/CutoutKit/utils"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	utils.Logger = zap.NewNop()
	os.Exit(m.Run())
}

// stubSegmenter 原样返回输入，或返回预设错误
type stubSegmenter struct {
	err   error
	calls int
	got   []byte
}

func (s *stubSegmenter) Remove(ctx context.Context, data []byte) ([]byte, error) {
	s.calls++
	s.got = data
	if s.err != nil {
		return nil, s.err
	}
	return data, nil
}

func newTestRouter(seg service.Segmenter) *gin.Engine {
	h := NewRemoveHandler(config.New(), nil, seg)
	r := gin.New()
	r.POST("/remove-background", h.RemoveBackground)
	return r
}

func buildUpload(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func doUpload(t *testing.T, r *gin.Engine, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/remove-background", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error
}

func TestRemoveBackgroundMissingFileField(t *testing.T) {
	seg := &stubSegmenter{}
	r := newTestRouter(seg)

	body, contentType := buildUpload(t, "attachment", "photo.png", []byte("data"))
	w := doUpload(t, r, body, contentType)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "No file uploaded", errorMessage(t, w))
	require.Zero(t, seg.calls)
}

func TestRemoveBackgroundEmptyFilename(t *testing.T) {
	seg := &stubSegmenter{}
	r := newTestRouter(seg)

	// 浏览器未选文件时发出的部分：name="file"，filename 为空
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename=""`)
	header.Set("Content-Type", "application/octet-stream")
	_, err := writer.CreatePart(header)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	w := doUpload(t, r, body, writer.FormDataContentType())

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "No file selected", errorMessage(t, w))
	require.Zero(t, seg.calls)
}

func TestRemoveBackgroundInvalidExtension(t *testing.T) {
	r := newTestRouter(&stubSegmenter{})

	for _, filename := range []string{"data.txt", "archive.tar.gz", "noextension", "image.bmp"} {
		body, contentType := buildUpload(t, "file", filename, []byte("data"))
		w := doUpload(t, r, body, contentType)

		require.Equal(t, http.StatusBadRequest, w.Code, filename)
		require.Equal(t, "Invalid file format. Allowed: JPG, PNG, WebP", errorMessage(t, w), filename)
	}
}

func TestRemoveBackgroundOversizedUpload(t *testing.T) {
	seg := &stubSegmenter{}
	r := newTestRouter(seg)

	payload := bytes.Repeat([]byte{0xAB}, 5*1024*1024+1)
	body, contentType := buildUpload(t, "file", "huge.png", payload)
	w := doUpload(t, r, body, contentType)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "File too large. Maximum size: 5MB", errorMessage(t, w))
	require.Zero(t, seg.calls)
}

func TestRemoveBackgroundCorruptedImage(t *testing.T) {
	r := newTestRouter(&stubSegmenter{})

	body, contentType := buildUpload(t, "file", "broken.png", []byte("not a png at all"))
	w := doUpload(t, r, body, contentType)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	msg := errorMessage(t, w)
	require.Contains(t, msg, "Error processing image: ")
	require.Contains(t, msg, "decode image")
}

func TestRemoveBackgroundSegmenterFailure(t *testing.T) {
	r := newTestRouter(&stubSegmenter{err: errors.New("inference backend down")})

	img := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	body, contentType := buildUpload(t, "file", "photo.png", buf.Bytes())
	w := doUpload(t, r, body, contentType)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, "Error processing image: inference backend down", errorMessage(t, w))
}

func TestRemoveBackgroundSuccess(t *testing.T) {
	seg := &stubSegmenter{}
	r := newTestRouter(seg)

	// 大写扩展名 + 超出尺寸上限的JPEG
	img := image.NewRGBA(image.Rect(0, 0, 3000, 1500))
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))

	body, contentType := buildUpload(t, "file", "photo.JPG", buf.Bytes())
	w := doUpload(t, r, body, contentType)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "image/png", w.Header().Get("Content-Type"))
	require.Equal(t, `attachment; filename=removed_bg.png`, w.Header().Get("Content-Disposition"))
	require.Equal(t, 1, seg.calls)

	decoded, format, err := image.Decode(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	require.Equal(t, "png", format)
	require.Equal(t, 2048, max(decoded.Bounds().Dx(), decoded.Bounds().Dy()))

	// 分割引擎拿到的也是规范化后的PNG
	_, segFormat, err := image.Decode(bytes.NewReader(seg.got))
	require.NoError(t, err)
	require.Equal(t, "png", segFormat)
}
