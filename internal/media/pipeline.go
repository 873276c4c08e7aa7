package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/FAKUBA08/HaySquare-Back/internal/domain"
	"github.com/FAKUBA08/HaySquare-Back/internal/storage"
)

type Options struct {
	Dir                string
	MaxBytes           int64
	CompressAboveBytes int64
	ImageMaxWidth      int
	JPEGQuality        int
}

// Stored describes a published attachment.
type Stored struct {
	URL          string
	FileName     string
	OriginalName string
	MimeType     string
	Size         int64
	Category     domain.Kind
}

type Pipeline struct {
	opts      Options
	video     VideoTranscoder
	publisher storage.Publisher
	log       *zap.SugaredLogger
}

func NewPipeline(opts Options, video VideoTranscoder, publisher storage.Publisher, log *zap.SugaredLogger) (*Pipeline, error) {
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Pipeline{opts: opts, video: video, publisher: publisher, log: log}, nil
}

// Validate runs the admission checks. size < 0 means unknown.
func (p *Pipeline) Validate(mimeType string, size int64) error {
	if !Allowed(mimeType) {
		return fmt.Errorf("%w: %s", domain.ErrUnsupportedMedia, mimeType)
	}
	if size > p.opts.MaxBytes {
		return domain.ErrFileTooLarge
	}
	return nil
}

// Store admits, writes, compresses and publishes one upload. Nothing is left
// on disk when it fails.
func (p *Pipeline) Store(ctx context.Context, src io.Reader, originalName, mimeType string, size int64) (*Stored, error) {
	if err := p.Validate(mimeType, size); err != nil {
		return nil, err
	}

	name := NewFileName(originalName)
	path := filepath.Join(p.opts.Dir, name)
	written, err := p.save(src, path)
	if err != nil {
		return nil, err
	}

	category := Classify(mimeType)
	finalPath, finalName, contentType := path, name, normalize(mimeType)
	if written > p.opts.CompressAboveBytes {
		outPath, outName, outType, err := p.compress(ctx, category, path, name, contentType)
		if err != nil {
			_ = os.Remove(path)
			return nil, err
		}
		smaller, err := shrank(outPath, written)
		if err != nil {
			_ = os.Remove(outPath)
			_ = os.Remove(path)
			return nil, err
		}
		if smaller {
			_ = os.Remove(path)
			finalPath, finalName, contentType = outPath, outName, outType
		} else {
			// re-encoding grew the file; the original is served as is
			_ = os.Remove(outPath)
			p.log.Infow("compressed artifact not smaller, keeping original", "name", name, "category", category, "in", written)
		}
	}

	info, err := os.Stat(finalPath)
	if err != nil {
		return nil, err
	}
	url, err := p.publisher.Publish(ctx, finalPath, finalName, contentType)
	if err != nil {
		_ = os.Remove(finalPath)
		return nil, err
	}

	p.log.Infow("attachment stored", "name", finalName, "category", category, "in", written, "out", info.Size())
	return &Stored{
		URL:          url,
		FileName:     finalName,
		OriginalName: originalName,
		MimeType:     normalize(mimeType),
		Size:         info.Size(),
		Category:     category,
	}, nil
}

// shrank reports whether the artifact at path is smaller than the input size.
func shrank(path string, input int64) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	return info.Size() < input, nil
}

func (p *Pipeline) save(src io.Reader, path string) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, io.LimitReader(src, p.opts.MaxBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > p.opts.MaxBytes {
		err = domain.ErrFileTooLarge
	}
	if err != nil {
		_ = os.Remove(path)
		return 0, err
	}
	return n, nil
}

func (p *Pipeline) compress(ctx context.Context, category domain.Kind, path, name, contentType string) (string, string, string, error) {
	var (
		outName string
		outType = contentType
		err     error
	)
	switch category {
	case domain.KindImage:
		outName = compressedName(name, ".jpg")
		outType = "image/jpeg"
		err = compressImage(path, filepath.Join(p.opts.Dir, outName), p.opts.ImageMaxWidth, p.opts.JPEGQuality)
	case domain.KindVideo:
		outName = compressedName(name, filepath.Ext(name))
		if p.video == nil {
			err = errors.New("no video transcoder configured")
			break
		}
		err = p.video.Transcode(ctx, path, filepath.Join(p.opts.Dir, outName))
	default:
		outName = name + ".gz"
		outType = "application/gzip"
		err = gzipFile(path, filepath.Join(p.opts.Dir, outName))
	}
	outPath := filepath.Join(p.opts.Dir, outName)
	if err != nil {
		_ = os.Remove(outPath)
		return "", "", "", fmt.Errorf("compress %s: %w", category, err)
	}
	return outPath, outName, outType, nil
}
