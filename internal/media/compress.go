package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/disintegration/imaging"
	"github.com/klauspost/compress/gzip"
)

// compressImage shrinks to maxWidth (never upscales) and re-encodes as JPEG.
func compressImage(src, dst string, maxWidth, quality int) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	img, err := imaging.Decode(in, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("decode image: %w", err)
	}
	if maxWidth > 0 && img.Bounds().Dx() > maxWidth {
		img = imaging.Resize(img, maxWidth, 0, imaging.Lanczos)
	}

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if err := imaging.Encode(out, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		_ = out.Close()
		return fmt.Errorf("encode jpeg: %w", err)
	}
	return out.Close()
}

func gzipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	zw, err := gzip.NewWriterLevel(out, gzip.BestCompression)
	if err != nil {
		_ = out.Close()
		return err
	}
	if _, err := io.Copy(zw, in); err != nil {
		_ = zw.Close()
		_ = out.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

type VideoTranscoder interface {
	Transcode(ctx context.Context, src, dst string) error
}

// FFmpeg re-encodes video with libx264 at crf 28.
type FFmpeg struct {
	Path string
}

func (f FFmpeg) Transcode(ctx context.Context, src, dst string) error {
	bin := f.Path
	if bin == "" {
		bin = "ffmpeg"
	}
	cmd := exec.CommandContext(ctx, bin,
		"-y", "-loglevel", "error",
		"-i", src,
		"-c:v", "libx264", "-preset", "veryfast", "-crf", "28",
		"-c:a", "copy",
		dst,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}
	return nil
}
