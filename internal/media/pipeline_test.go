package media

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/FAKUBA08/HaySquare-Back/internal/domain"
	"github.com/FAKUBA08/HaySquare-Back/internal/storage"
)

type fakeTranscoder struct {
	err    error
	called bool
}

func (f *fakeTranscoder) Transcode(_ context.Context, src, dst string) error {
	f.called = true
	if f.err != nil {
		// leave a partial artifact behind like a crashed ffmpeg would
		_ = os.WriteFile(dst, []byte("partial"), 0o644)
		return f.err
	}
	b, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, b[:len(b)/2], 0o644)
}

func newTestPipeline(t *testing.T, video VideoTranscoder) (*Pipeline, string) {
	t.Helper()
	dir := t.TempDir()
	p, err := NewPipeline(Options{
		Dir:                dir,
		MaxBytes:           20 * 1024 * 1024,
		CompressAboveBytes: 1024 * 1024,
		ImageMaxWidth:      1280,
		JPEGQuality:        70,
	}, video, storage.NewDiskPublisher(dir, "http://localhost:5000"), zap.NewNop().Sugar())
	require.NoError(t, err)
	return p, dir
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := []string{}
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func noisePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	r := rand.New(rand.NewPCG(1, 2))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{uint8(r.IntN(256)), uint8(r.IntN(256)), uint8(r.IntN(256)), 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// noiseJPEG encodes random pixels at a low quality, which a q70 re-encode
// can only make larger.
func noiseJPEG(t *testing.T, w, h, quality int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	r := rand.New(rand.NewPCG(3, 4))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = uint8(r.IntN(256))
		img.Pix[i+1] = uint8(r.IntN(256))
		img.Pix[i+2] = uint8(r.IntN(256))
		img.Pix[i+3] = 255
	}
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)))
	return buf.Bytes()
}

func TestClassify(t *testing.T) {
	assert.Equal(t, domain.KindImage, Classify("image/png"))
	assert.Equal(t, domain.KindVideo, Classify("video/quicktime"))
	assert.Equal(t, domain.KindPDF, Classify("application/pdf"))
	assert.Equal(t, domain.KindDocument, Classify("application/zip"))
	assert.Equal(t, domain.KindDocument, Classify("text/plain; charset=utf-8"))
}

func TestNewFileNameKeepsExtension(t *testing.T) {
	name := NewFileName("Holiday Photo.PNG")
	assert.True(t, strings.HasSuffix(name, ".png"))
	assert.Regexp(t, `^\d+-\d+\.png$`, name)
}

func TestStoreRejectsBeforeWriting(t *testing.T) {
	p, dir := newTestPipeline(t, nil)

	_, err := p.Store(context.Background(), strings.NewReader("MZ..."), "setup.exe", "application/x-msdownload", 5)
	assert.ErrorIs(t, err, domain.ErrUnsupportedMedia)

	_, err = p.Store(context.Background(), strings.NewReader("x"), "big.pdf", "application/pdf", 21*1024*1024)
	assert.ErrorIs(t, err, domain.ErrFileTooLarge)

	assert.Empty(t, dirEntries(t, dir))
}

func TestStoreRejectsOversizedStream(t *testing.T) {
	p, dir := newTestPipeline(t, nil)
	p.opts.MaxBytes = 1024

	_, err := p.Store(context.Background(), bytes.NewReader(make([]byte, 2048)), "notes.txt", "text/plain", -1)
	assert.ErrorIs(t, err, domain.ErrFileTooLarge)
	assert.Empty(t, dirEntries(t, dir))
}

func TestStoreSmallFilePassesThrough(t *testing.T) {
	p, dir := newTestPipeline(t, nil)
	body := []byte("%PDF-1.4 tiny")

	got, err := p.Store(context.Background(), bytes.NewReader(body), "cv.pdf", "application/pdf", int64(len(body)))
	require.NoError(t, err)

	assert.Equal(t, domain.KindPDF, got.Category)
	assert.Equal(t, int64(len(body)), got.Size)
	assert.True(t, strings.HasSuffix(got.FileName, ".pdf"))
	assert.Equal(t, "http://localhost:5000/uploads/"+got.FileName, got.URL)

	stored, err := os.ReadFile(filepath.Join(dir, got.FileName))
	require.NoError(t, err)
	assert.Equal(t, body, stored)
}

func TestStoreLargeImageIsResizedAndSmaller(t *testing.T) {
	p, dir := newTestPipeline(t, nil)
	original := noisePNG(t, 1600, 700)
	require.Greater(t, len(original), 1024*1024)

	got, err := p.Store(context.Background(), bytes.NewReader(original), "photo.png", "image/png", int64(len(original)))
	require.NoError(t, err)

	assert.Equal(t, domain.KindImage, got.Category)
	assert.True(t, strings.HasSuffix(got.FileName, "_compressed.jpg"))
	assert.LessOrEqual(t, got.Size, int64(len(original)))
	assert.Equal(t, []string{got.FileName}, dirEntries(t, dir))

	img, err := imaging.Open(filepath.Join(dir, got.FileName))
	require.NoError(t, err)
	assert.Equal(t, 1280, img.Bounds().Dx())
	assert.Equal(t, 560, img.Bounds().Dy())
}

func TestStoreLargeDocumentIsGzipped(t *testing.T) {
	p, dir := newTestPipeline(t, nil)
	original := bytes.Repeat([]byte("hello haysquare\n"), 100_000)

	got, err := p.Store(context.Background(), bytes.NewReader(original), "log.txt", "text/plain", int64(len(original)))
	require.NoError(t, err)

	assert.Equal(t, domain.KindDocument, got.Category)
	assert.True(t, strings.HasSuffix(got.FileName, ".txt.gz"))
	assert.Less(t, got.Size, int64(len(original)))
	assert.Equal(t, []string{got.FileName}, dirEntries(t, dir))

	f, err := os.Open(filepath.Join(dir, got.FileName))
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	plain, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, original, plain)
}

func TestStoreVideoUsesTranscoder(t *testing.T) {
	tc := &fakeTranscoder{}
	p, dir := newTestPipeline(t, tc)
	original := make([]byte, 2*1024*1024)

	got, err := p.Store(context.Background(), bytes.NewReader(original), "clip.mp4", "video/mp4", int64(len(original)))
	require.NoError(t, err)

	assert.True(t, tc.called)
	assert.Equal(t, domain.KindVideo, got.Category)
	assert.True(t, strings.HasSuffix(got.FileName, "_compressed.mp4"))
	assert.Equal(t, []string{got.FileName}, dirEntries(t, dir))
}

func TestStoreCompressionFailureLeavesNothing(t *testing.T) {
	tc := &fakeTranscoder{err: errors.New("codec exploded")}
	p, dir := newTestPipeline(t, tc)
	original := make([]byte, 2*1024*1024)

	_, err := p.Store(context.Background(), bytes.NewReader(original), "clip.mov", "video/quicktime", int64(len(original)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "codec exploded")
	assert.Empty(t, dirEntries(t, dir))
}

func TestStoreCorruptImageFails(t *testing.T) {
	p, dir := newTestPipeline(t, nil)
	garbage := make([]byte, 2*1024*1024)

	_, err := p.Store(context.Background(), bytes.NewReader(garbage), "bad.jpg", "image/jpeg", int64(len(garbage)))
	require.Error(t, err)
	assert.Empty(t, dirEntries(t, dir))
}

func TestStoreKeepsOriginalWhenReencodeGrows(t *testing.T) {
	p, dir := newTestPipeline(t, nil)
	original := noiseJPEG(t, 1280, 8400, 20)
	require.Greater(t, len(original), 1024*1024)

	got, err := p.Store(context.Background(), bytes.NewReader(original), "scan.jpg", "image/jpeg", int64(len(original)))
	require.NoError(t, err)

	assert.Equal(t, domain.KindImage, got.Category)
	assert.Equal(t, int64(len(original)), got.Size)
	assert.True(t, strings.HasSuffix(got.FileName, ".jpg"))
	assert.False(t, strings.Contains(got.FileName, "_compressed"))
	assert.Equal(t, []string{got.FileName}, dirEntries(t, dir))

	stored, err := os.ReadFile(filepath.Join(dir, got.FileName))
	require.NoError(t, err)
	assert.Equal(t, original, stored)
}
