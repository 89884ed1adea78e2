package compositor

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/alonelily/FGO-Sprite/pkg/coords"
	"github.com/alonelily/FGO-Sprite/pkg/types"
)

// createSheet creates an opaque sheet with a solid red patch at patchRect
func createSheet(width, height int, patchRect image.Rectangle) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if (image.Point{x, y}).In(patchRect) {
				img.SetNRGBA(x, y, color.NRGBA{255, 0, 0, 255})
			} else {
				img.SetNRGBA(x, y, color.NRGBA{0, 0, 255, 255})
			}
		}
	}
	return img
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestPlanCalibrationExample(t *testing.T) {
	patch := types.Rect{X: 0, Y: 0, W: 180, H: 180}
	target := types.Rect{X: 450, Y: 250, W: 100, H: 100}
	cal := types.Calibration{OffsetX: 10, OffsetY: -5, Scale: 1.1}

	p := Plan(1000, patch, target, cal, nil)

	if !almostEqual(p.Dest.W, 198) || !almostEqual(p.Dest.H, 198) {
		t.Errorf("Expected dest size 198x198, got %vx%v", p.Dest.W, p.Dest.H)
	}
	if !almostEqual(p.Dest.X, 411) || !almostEqual(p.Dest.Y, 196) {
		t.Errorf("Expected dest origin (411,196), got (%v,%v)", p.Dest.X, p.Dest.Y)
	}
}

func TestPlanPerPatchOffset(t *testing.T) {
	patch := types.Rect{W: 100, H: 100}
	target := types.Rect{X: 400, Y: 400, W: 100, H: 100}

	base := Plan(500, patch, target, types.IdentityCalibration(), nil)
	shifted := Plan(500, patch, target, types.IdentityCalibration(), &types.PatchOffset{Dx: 20, Dy: -40})

	if !almostEqual(shifted.Dest.X-base.Dest.X, 10) || !almostEqual(shifted.Dest.Y-base.Dest.Y, -20) {
		t.Errorf("Expected shift (10,-20), got (%v,%v)",
			shifted.Dest.X-base.Dest.X, shifted.Dest.Y-base.Dest.Y)
	}
}

func TestPlanMaskIsOriginalTarget(t *testing.T) {
	target := types.Rect{X: 100, Y: 200, W: 300, H: 150}
	cal := types.Calibration{OffsetX: 50, OffsetY: 25, Scale: 2}

	p := Plan(1000, types.Rect{W: 100, H: 100}, target, cal, &types.PatchOffset{Dx: 7, Dy: 3})

	want := coords.RawRect{X: 100, Y: 200, W: 300, H: 150}
	if p.Mask != want {
		t.Errorf("Expected mask %+v, got %+v", want, p.Mask)
	}
	if p.Mask == p.Dest {
		t.Error("Expected mask and dest to differ when calibrated")
	}
}

func TestClearMaskCornersAndCenter(t *testing.T) {
	img := createSheet(200, 200, image.Rectangle{})
	target := types.Rect{X: 250, Y: 300, W: 400, H: 200}
	p := Plan(200, types.Rect{W: 100, H: 100}, target, types.Calibration{OffsetX: 30, Scale: 1.5}, nil)

	ClearMask(img, p)

	r := p.Mask.Rectangle()
	points := []image.Point{
		r.Min,
		{r.Max.X - 1, r.Min.Y},
		{r.Min.X, r.Max.Y - 1},
		{r.Max.X - 1, r.Max.Y - 1},
		{(r.Min.X + r.Max.X) / 2, (r.Min.Y + r.Max.Y) / 2},
	}
	for _, pt := range points {
		if a := img.NRGBAAt(pt.X, pt.Y).A; a != 0 {
			t.Errorf("Expected transparent pixel at %v, alpha %d", pt, a)
		}
	}

	if a := img.NRGBAAt(r.Min.X-1, r.Min.Y).A; a != 255 {
		t.Errorf("Expected pixel outside mask to stay opaque, alpha %d", a)
	}
}

func TestDrawFinalIsOpaque(t *testing.T) {
	src := createSheet(100, 100, image.Rect(0, 0, 20, 20))
	dst := createSheet(100, 100, image.Rectangle{})

	patch := types.Rect{X: 0, Y: 0, W: 200, H: 200}
	target := types.Rect{X: 500, Y: 500, W: 200, H: 200}
	p := Plan(100, patch, target, types.IdentityCalibration(), nil)

	if !Draw(dst, src, p, FinalMode(true)) {
		t.Fatal("Expected draw to succeed")
	}

	got := dst.NRGBAAt(55, 55)
	if got != (color.NRGBA{255, 0, 0, 255}) {
		t.Errorf("Expected opaque red inside dest, got %v", got)
	}
}

func TestDrawPreviewBlends(t *testing.T) {
	src := createSheet(100, 100, image.Rect(0, 0, 20, 20))
	dst := createSheet(100, 100, image.Rectangle{})

	p := Plan(100, types.Rect{W: 200, H: 200}, types.Rect{X: 500, Y: 500, W: 200, H: 200}, types.IdentityCalibration(), nil)
	Draw(dst, src, p, PreviewMode(0.5))

	got := dst.NRGBAAt(55, 55)
	if got.R < 100 || got.R > 155 || got.B < 100 || got.B > 155 {
		t.Errorf("Expected a half blend of red over blue, got %v", got)
	}
	if got.A != 255 {
		t.Errorf("Expected opaque result over opaque base, got alpha %d", got.A)
	}
}

func TestDrawPreviewNeverMasks(t *testing.T) {
	src := createSheet(100, 100, image.Rect(0, 0, 10, 10))
	dst := createSheet(100, 100, image.Rectangle{})

	p := Plan(100, types.Rect{W: 100, H: 100}, types.Rect{X: 0, Y: 500, W: 400, H: 400}, types.IdentityCalibration(), nil)
	Draw(dst, src, p, Mode{Mask: true, Alpha: 0})

	if a := dst.NRGBAAt(1, 51).A; a != 255 {
		t.Errorf("Expected preview to leave the target intact, alpha %d", a)
	}
}

func TestDrawDegenerateIsNoop(t *testing.T) {
	src := createSheet(50, 50, image.Rect(0, 0, 10, 10))
	dst := createSheet(50, 50, image.Rectangle{})

	p := Plan(50, types.Rect{W: 0, H: 100}, types.Rect{W: 100, H: 100}, types.IdentityCalibration(), nil)
	if Draw(dst, src, p, FinalMode(false)) {
		t.Error("Expected degenerate patch to be a no-op")
	}
}

func TestRenderLeavesBaseUntouched(t *testing.T) {
	base := createSheet(60, 60, image.Rect(0, 0, 6, 6))
	p := Plan(60, types.Rect{W: 100, H: 100}, types.Rect{X: 500, Y: 500, W: 100, H: 100}, types.IdentityCalibration(), nil)

	out := Render(base, p, FinalMode(true))

	if base.NRGBAAt(32, 32) != (color.NRGBA{0, 0, 255, 255}) {
		t.Error("Expected base image to remain unchanged")
	}
	if out.NRGBAAt(32, 32) != (color.NRGBA{255, 0, 0, 255}) {
		t.Errorf("Expected rendered patch at dest, got %v", out.NRGBAAt(32, 32))
	}
}

// fillCanvas returns an opaque canvas of a single color
func fillCanvas(width, height int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestDrawPatchPastBottomEdge(t *testing.T) {
	// raw patch (10,80)-(30,120): rows 80-89 red, 90-99 blue, 100-119 off the sheet
	src := createSheet(100, 100, image.Rect(10, 80, 30, 90))
	gray := color.NRGBA{128, 128, 128, 255}
	dst := fillCanvas(100, 100, gray)

	patch := types.Rect{X: 100, Y: 800, W: 200, H: 400}
	target := types.Rect{X: 500, Y: 100, W: 200, H: 400}
	p := Plan(100, patch, target, types.IdentityCalibration(), nil)

	if !Draw(dst, src, p, FinalMode(false)) {
		t.Fatal("Expected draw to succeed")
	}

	tests := []struct {
		y    int
		want color.NRGBA
	}{
		{15, color.NRGBA{255, 0, 0, 255}},
		{25, color.NRGBA{0, 0, 255, 255}},
		{35, gray},
		{45, gray},
	}
	for _, tt := range tests {
		if got := dst.NRGBAAt(55, tt.y); got != tt.want {
			t.Errorf("At (55,%d) expected %v, got %v", tt.y, tt.want, got)
		}
	}
}

func TestDrawPatchPastLeftEdge(t *testing.T) {
	// raw patch (-10,0)-(10,10): left half lies off the sheet
	src := createSheet(100, 100, image.Rect(0, 0, 10, 10))
	gray := color.NRGBA{128, 128, 128, 255}
	dst := fillCanvas(100, 100, gray)

	patch := types.Rect{X: -100, Y: 0, W: 200, H: 100}
	target := types.Rect{X: 500, Y: 500, W: 200, H: 100}
	p := Plan(100, patch, target, types.IdentityCalibration(), nil)

	if !Draw(dst, src, p, FinalMode(false)) {
		t.Fatal("Expected draw to succeed")
	}

	if got := dst.NRGBAAt(55, 55); got != gray {
		t.Errorf("Expected off-sheet half to leave dst untouched, got %v", got)
	}
	if got := dst.NRGBAAt(65, 55); got != (color.NRGBA{255, 0, 0, 255}) {
		t.Errorf("Expected on-sheet half drawn in red, got %v", got)
	}
}

func TestDrawPatchFullyOffSheetIsNoop(t *testing.T) {
	src := createSheet(100, 100, image.Rect(0, 0, 10, 10))
	dst := fillCanvas(100, 100, color.NRGBA{128, 128, 128, 255})

	p := Plan(100, types.Rect{X: 1200, Y: 0, W: 100, H: 100}, types.Rect{X: 500, Y: 500, W: 100, H: 100}, types.IdentityCalibration(), nil)
	if Draw(dst, src, p, FinalMode(false)) {
		t.Error("Expected patch outside the sheet to be a no-op")
	}
}
