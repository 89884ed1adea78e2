package processing

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	apperrors "github.com/alonelily/FGO-Sprite/internal/errors"
	"github.com/alonelily/FGO-Sprite/pkg/coords"
	"github.com/alonelily/FGO-Sprite/pkg/types"
)

// Processor handles sheet loading, encoding and inspection images
type Processor struct {
	client *http.Client
}

// NewProcessor creates a new image processor
func NewProcessor() *Processor {
	return &Processor{
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// LoadImageFromURL downloads and decodes a sheet
func (p *Processor) LoadImageFromURL(imageURL string) (image.Image, error) {
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return nil, apperrors.NewIOError("invalid URL", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, apperrors.NewIOError(fmt.Sprintf("unsupported URL scheme: %s", parsedURL.Scheme), nil)
	}

	req, err := http.NewRequest(http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, apperrors.NewIOError("failed to create request", err)
	}
	req.Header.Set("User-Agent", "FGO-Sprite/1.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, apperrors.NewIOError("failed to download image", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.NewIOError(fmt.Sprintf("failed to download image: HTTP %d", resp.StatusCode), nil)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return nil, apperrors.NewDecodeFailure(fmt.Sprintf("URL does not point to an image (Content-Type: %s)", contentType), nil)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.NewIOError("failed to read image data", err)
	}

	return p.DecodeBytes(data)
}

// LoadImage loads a sheet from a file path with WebP support
func (p *Processor) LoadImage(path string) (image.Image, error) {
	if img, err := imaging.Open(path); err == nil {
		return img, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewIOError("failed to read image file", err)
	}
	return p.DecodeBytes(data)
}

// LoadImageSmart loads a sheet from either a file path or URL
func (p *Processor) LoadImageSmart(source string) (image.Image, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return p.LoadImageFromURL(source)
	}
	return p.LoadImage(source)
}

// DecodeBytes decodes a sheet from memory
func (p *Processor) DecodeBytes(data []byte) (image.Image, error) {
	if img, _, err := image.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}

	img, err := webp.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.NewDecodeFailure("unknown or unsupported image format", err)
	}
	return img, nil
}

// PrepareImageForModel converts an image to base64 for sending to vision models
func (p *Processor) PrepareImageForModel(img image.Image, format string, maxDim int, quality int) (string, error) {
	if maxDim > 0 {
		b := img.Bounds()
		w, h := b.Dx(), b.Dy()
		if w > maxDim || h > maxDim {
			if w >= h {
				img = imaging.Resize(img, maxDim, 0, imaging.Lanczos)
			} else {
				img = imaging.Resize(img, 0, maxDim, imaging.Lanczos)
			}
		}
	}

	var buf bytes.Buffer
	switch strings.ToLower(format) {
	case "png":
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return "", err
		}
	default: // jpg
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return "", err
		}
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Encode writes img in the given format (png, jpg or webp)
func (p *Processor) Encode(w io.Writer, img image.Image, format string, quality int, lossless bool) error {
	switch strings.ToLower(format) {
	case "webp":
		return webp.Encode(w, img, &webp.Options{Lossless: lossless, Quality: float32(quality)})
	case "png":
		return imaging.Encode(w, img, imaging.PNG)
	case "jpg", "jpeg":
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

// SaveImage saves an image to a file with the specified format and quality
func (p *Processor) SaveImage(img image.Image, path, format string, quality int, lossless bool) error {
	f, err := os.Create(path)
	if err != nil {
		return apperrors.NewIOError("failed to create output file", err)
	}
	defer f.Close()

	if err := p.Encode(f, img, format, quality, lossless); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return nil
}

// CropRect extracts a normalized rectangle from the sheet
func (p *Processor) CropRect(img image.Image, rect types.Rect) (image.Image, error) {
	bounds := img.Bounds()
	r := coords.RectToRaw(rect, float64(bounds.Dx())).Rectangle().Add(bounds.Min).Intersect(bounds)
	if r.Empty() {
		return nil, fmt.Errorf("empty crop rectangle")
	}
	return imaging.Crop(img, r), nil
}

// CreateDebugOverlay draws the analysed regions over a copy of the sheet
func (p *Processor) CreateDebugOverlay(img image.Image, analysis types.AnalysisResult, offsets []types.PatchOffset) image.Image {
	nrgba := imaging.Clone(img)
	w := nrgba.Bounds().Dx()
	h := nrgba.Bounds().Dy()

	green := color.NRGBA{0, 255, 0, 255}  // main body
	gold := color.NRGBA{255, 204, 0, 255} // patches
	red := color.NRGBA{255, 0, 0, 255}    // main face
	blue := color.NRGBA{0, 170, 255, 255} // aligned offset marker
	stroke := int(math.Max(2, 0.003*float64(minInt(w, h))))
	cross := int(math.Max(4, 0.008*float64(minInt(w, h))))

	drawBox(nrgba, analysis.MainBody, green, stroke)
	drawBox(nrgba, analysis.MainFace, red, stroke)

	fw := float64(w)
	for i, patch := range analysis.Patches {
		drawBox(nrgba, patch, gold, stroke)
		if i >= len(offsets) {
			continue
		}
		cx, cy := coords.RectToRaw(patch, fw).Center()
		dx, dy := coords.OffsetToRaw(offsets[i], fw)
		px, py := int(cx+dx+0.5), int(cy+dy+0.5)
		drawHLine(nrgba, py, px-cross, px+cross, blue)
		drawVLine(nrgba, px, py-cross, py+cross, blue)
	}

	return nrgba
}

// Helper functions
func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func drawBox(img *image.NRGBA, box types.Rect, c color.NRGBA, stroke int) {
	if !box.Valid() {
		return
	}
	r := coords.RectToRaw(box, float64(img.Bounds().Dx())).Rectangle()
	x0, y0, x1, y1 := r.Min.X, r.Min.Y, r.Max.X, r.Max.Y
	if x1 <= x0 {
		x1 = x0 + 1
	}
	if y1 <= y0 {
		y1 = y0 + 1
	}
	for s := 0; s < stroke; s++ {
		drawHLine(img, y0+s, x0, x1, c)
		drawHLine(img, y1-1-s, x0, x1, c)
		drawVLine(img, x0+s, y0, y1, c)
		drawVLine(img, x1-1-s, y0, y1, c)
	}
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if x1 <= 0 || x0 >= img.Bounds().Dx() {
		return
	}
	if x0 < 0 {
		x0 = 0
	}
	if x1 > img.Bounds().Dx() {
		x1 = img.Bounds().Dx()
	}
	i := y*img.Stride + x0*4
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	if y1 <= 0 || y0 >= img.Bounds().Dy() {
		return
	}
	if y0 < 0 {
		y0 = 0
	}
	if y1 > img.Bounds().Dy() {
		y1 = img.Bounds().Dy()
	}
	i := y0*img.Stride + x*4
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}
