package processing

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	apperrors "github.com/alonelily/FGO-Sprite/internal/errors"
	"github.com/alonelily/FGO-Sprite/pkg/types"
)

// createTestImage creates a simple gradient sheet
func createTestImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{uint8((x * 255) / width), uint8((y * 255) / height), 128, 255})
		}
	}
	return img
}

func TestEncodeDecodeFormats(t *testing.T) {
	p := NewProcessor()
	img := createTestImage(40, 30)

	for _, format := range []string{"png", "jpg", "webp"} {
		t.Run(format, func(t *testing.T) {
			var buf bytes.Buffer
			if err := p.Encode(&buf, img, format, 90, true); err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			decoded, err := p.DecodeBytes(buf.Bytes())
			if err != nil {
				t.Fatalf("DecodeBytes failed: %v", err)
			}
			if decoded.Bounds().Dx() != 40 || decoded.Bounds().Dy() != 30 {
				t.Errorf("Expected 40x30, got %v", decoded.Bounds())
			}
		})
	}
}

func TestEncodeUnsupported(t *testing.T) {
	var buf bytes.Buffer
	if err := NewProcessor().Encode(&buf, createTestImage(4, 4), "tiff", 90, false); err == nil {
		t.Error("Expected unsupported format to fail")
	}
}

func TestDecodeFailure(t *testing.T) {
	_, err := NewProcessor().DecodeBytes([]byte("not an image"))
	if !apperrors.Is(err, apperrors.KindDecode) {
		t.Errorf("Expected decode failure, got %v", err)
	}
}

func TestSaveAndLoadImage(t *testing.T) {
	p := NewProcessor()
	path := filepath.Join(t.TempDir(), "sheet.png")

	if err := p.SaveImage(createTestImage(20, 10), path, "png", 0, false); err != nil {
		t.Fatalf("SaveImage failed: %v", err)
	}
	img, err := p.LoadImageSmart(path)
	if err != nil {
		t.Fatalf("LoadImageSmart failed: %v", err)
	}
	if img.Bounds().Dx() != 20 {
		t.Errorf("Expected width 20, got %d", img.Bounds().Dx())
	}
}

func TestLoadImageGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.png")
	if err := os.WriteFile(path, []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewProcessor().LoadImage(path); !apperrors.Is(err, apperrors.KindDecode) {
		t.Errorf("Expected decode failure, got %v", err)
	}
}

func TestLoadImageFromURLRejectsScheme(t *testing.T) {
	if _, err := NewProcessor().LoadImageFromURL("ftp://example.com/a.png"); err == nil {
		t.Error("Expected unsupported scheme to fail")
	}
}

func TestCropRect(t *testing.T) {
	p := NewProcessor()
	img := createTestImage(200, 100)

	crop, err := p.CropRect(img, types.Rect{X: 100, Y: 50, W: 250, H: 200})
	if err != nil {
		t.Fatalf("CropRect failed: %v", err)
	}
	if crop.Bounds().Dx() != 50 || crop.Bounds().Dy() != 40 {
		t.Errorf("Expected 50x40 crop, got %v", crop.Bounds())
	}

	if _, err := p.CropRect(img, types.Rect{X: 2000, Y: 0, W: 10, H: 10}); err == nil {
		t.Error("Expected crop outside the sheet to fail")
	}
}

func TestPrepareImageForModel(t *testing.T) {
	p := NewProcessor()
	b64, err := p.PrepareImageForModel(createTestImage(400, 200), "png", 100, 85)
	if err != nil {
		t.Fatalf("PrepareImageForModel failed: %v", err)
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		t.Fatalf("Expected valid base64: %v", err)
	}
	img, err := p.DecodeBytes(data)
	if err != nil {
		t.Fatalf("Expected decodable image: %v", err)
	}
	if img.Bounds().Dx() != 100 || img.Bounds().Dy() != 50 {
		t.Errorf("Expected 100x50 after downscale, got %v", img.Bounds())
	}
}

func TestCreateDebugOverlay(t *testing.T) {
	p := NewProcessor()
	img := createTestImage(200, 200)
	analysis := types.AnalysisResult{
		MainBody: types.Rect{X: 100, Y: 100, W: 500, H: 500},
		MainFace: types.Rect{X: 250, Y: 250, W: 100, H: 100},
		Patches:  []types.Rect{{X: 700, Y: 700, W: 100, H: 100}},
	}

	out := p.CreateDebugOverlay(img, analysis, nil).(*image.NRGBA)

	if got := out.NRGBAAt(20, 20); got != (color.NRGBA{0, 255, 0, 255}) {
		t.Errorf("Expected main body corner in green, got %v", got)
	}
	if got := out.NRGBAAt(50, 50); got != (color.NRGBA{255, 0, 0, 255}) {
		t.Errorf("Expected main face corner in red, got %v", got)
	}
	if got := out.NRGBAAt(140, 140); got != (color.NRGBA{255, 204, 0, 255}) {
		t.Errorf("Expected patch corner in gold, got %v", got)
	}
	if img.NRGBAAt(20, 20).G == 255 {
		t.Error("Expected source image to be untouched")
	}
}
