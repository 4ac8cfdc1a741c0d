package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// ============================================================
// Upload Compressor
// ============================================================

var (
	ErrUnsupportedImage = errors.New("unsupported image")
	ErrFileTooLarge     = errors.New("file too large")
	ErrImageTooLarge    = errors.New("image dimensions too large")
)

// DefaultMaxPixels ограничивает размер декодированного кадра (~160 MiB в RGBA).
const DefaultMaxPixels = 40_000_000

type CompressOptions struct {
	Workers      int
	MaxDimension int
	JPEGQuality  int
	MaxFileSize  int64
	MaxPixels    int
}

type UploadFile struct {
	Name string
	Data []byte
}

type UploadResult struct {
	Name         string
	Data         []byte
	ContentType  string
	Width        int
	Height       int
	OriginalSize int
	Resized      bool
	Err          error
}

// Compressor пережимает загруженные изображения пулом воркеров.
type Compressor struct {
	opts CompressOptions
	log  zerolog.Logger
}

func NewCompressor(opts CompressOptions, logger zerolog.Logger) *Compressor {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = 85
	}
	if opts.MaxPixels <= 0 {
		opts.MaxPixels = DefaultMaxPixels
	}
	return &Compressor{opts: opts, log: logger}
}

// Compress обрабатывает файлы параллельно; порядок результатов совпадает с порядком входа.
// Ошибка отдельного файла попадает в его UploadResult.Err и не прерывает остальные.
func (c *Compressor) Compress(ctx context.Context, files []UploadFile) []UploadResult {
	results := make([]UploadResult, len(files))
	jobs := make(chan int)

	workers := min(c.opts.Workers, len(files))
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if err := ctx.Err(); err != nil {
					results[i] = UploadResult{Name: files[i].Name, OriginalSize: len(files[i].Data), Err: err}
					continue
				}
				results[i] = c.compressOne(files[i])
			}
		}()
	}

	for i := range files {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return results
}

func (c *Compressor) compressOne(f UploadFile) UploadResult {
	res := UploadResult{Name: f.Name, OriginalSize: len(f.Data)}

	if c.opts.MaxFileSize > 0 && int64(len(f.Data)) > c.opts.MaxFileSize {
		res.Err = fmt.Errorf("%w: %s > %s", ErrFileTooLarge,
			humanize.IBytes(uint64(len(f.Data))), humanize.IBytes(uint64(c.opts.MaxFileSize)))
		return res
	}

	ext := strings.ToLower(filepath.Ext(f.Name))
	base := strings.TrimSuffix(f.Name, filepath.Ext(f.Name))

	if ext == ".svg" {
		if !bytes.Contains(f.Data, []byte("<svg")) {
			res.Err = fmt.Errorf("%w: %s is not an svg document", ErrUnsupportedImage, f.Name)
			return res
		}
		res.Data = f.Data
		res.ContentType = "image/svg+xml"
		return res
	}

	// размер берётся из заголовка до декодирования: маленький файл может заявить гигантский кадр
	cfg, _, err := image.DecodeConfig(bytes.NewReader(f.Data))
	if err != nil {
		res.Err = fmt.Errorf("%w: %s: %v", ErrUnsupportedImage, f.Name, err)
		return res
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > int64(c.opts.MaxPixels) {
		res.Err = fmt.Errorf("%w: %s is %dx%d, limit %s pixels", ErrImageTooLarge, f.Name,
			cfg.Width, cfg.Height, humanize.Comma(int64(c.opts.MaxPixels)))
		return res
	}

	img, format, err := image.Decode(bytes.NewReader(f.Data))
	if err != nil {
		res.Err = fmt.Errorf("%w: %s: %v", ErrUnsupportedImage, f.Name, err)
		return res
	}

	img, res.Resized = c.downscale(img)
	b := img.Bounds()
	res.Width, res.Height = b.Dx(), b.Dy()

	var buf bytes.Buffer
	if hasAlpha(img) {
		err = png.Encode(&buf, img)
		res.Name, res.ContentType = base+".png", "image/png"
	} else {
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: c.opts.JPEGQuality})
		res.Name, res.ContentType = base+".jpg", "image/jpeg"
	}
	if err != nil {
		res.Err = fmt.Errorf("encode %s: %w", f.Name, err)
		return res
	}
	res.Data = buf.Bytes()

	// Перекодирование без уменьшения не должно раздувать файл того же формата.
	sameFormat := (format == "png" && res.ContentType == "image/png") || (format == "jpeg" && res.ContentType == "image/jpeg")
	if !res.Resized && sameFormat && len(f.Data) <= len(res.Data) {
		res.Data = f.Data
	}

	c.log.Debug().
		Str("file", f.Name).
		Str("format", format).
		Str("before", humanize.IBytes(uint64(len(f.Data)))).
		Str("after", humanize.IBytes(uint64(len(res.Data)))).
		Bool("resized", res.Resized).
		Msg("image compressed")
	return res
}

// downscale вписывает изображение в MaxDimension по длинной стороне.
func (c *Compressor) downscale(img image.Image) (image.Image, bool) {
	b := img.Bounds()
	longest := max(b.Dx(), b.Dy())
	if c.opts.MaxDimension <= 0 || longest <= c.opts.MaxDimension {
		return img, false
	}

	w := max(1, b.Dx()*c.opts.MaxDimension/longest)
	h := max(1, b.Dy()*c.opts.MaxDimension/longest)
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst, true
}

func hasAlpha(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return !o.Opaque()
	}
	return true
}
