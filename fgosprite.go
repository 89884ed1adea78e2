// Package fgosprite locates, aligns and exports the expression patches of a
// character art sheet.
//
// A sheet holds one large body drawing and a grid of small face patches.
// Each patch is drawn over the body's face region, fine aligned against it
// with template matching, and exported as its own image.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"log"
//
//		fgosprite "github.com/alonelily/FGO-Sprite"
//		"github.com/alonelily/FGO-Sprite/internal/config"
//		"github.com/alonelily/FGO-Sprite/pkg/export"
//	)
//
//	func main() {
//		studio, err := fgosprite.New(config.Default())
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		img, err := studio.LoadImage("sheet.png")
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		analysis, err := studio.Detect(context.Background(), img)
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		sess, err := studio.AlignAll(context.Background(), img, studio.NewSession(analysis))
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		if _, err := studio.Export(context.Background(), img, sess, export.DirSaver{Dir: "out"}); err != nil {
//			log.Fatal(err)
//		}
//	}
//
// The package wires these components:
//
// 1. Coordinates (pkg/coords): normalized [0,1000] geometry scaled by image width
// 2. Grid (pkg/grid): row-major patch layout
// 3. Compositor (pkg/compositor): patch placement and drawing
// 4. Aligner (pkg/aligner): brute force template matching
// 5. Batch (pkg/batch): sequential alignment of every patch
// 6. Export (pkg/export): per-patch rendering and saving
package fgosprite

import (
	"context"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/alonelily/FGO-Sprite/internal/config"
	apperrors "github.com/alonelily/FGO-Sprite/internal/errors"
	"github.com/alonelily/FGO-Sprite/internal/logger"
	"github.com/alonelily/FGO-Sprite/internal/utils"
	"github.com/alonelily/FGO-Sprite/pkg/aligner"
	"github.com/alonelily/FGO-Sprite/pkg/batch"
	"github.com/alonelily/FGO-Sprite/pkg/compositor"
	"github.com/alonelily/FGO-Sprite/pkg/detection"
	"github.com/alonelily/FGO-Sprite/pkg/export"
	"github.com/alonelily/FGO-Sprite/pkg/llamacpp"
	"github.com/alonelily/FGO-Sprite/pkg/ollama"
	"github.com/alonelily/FGO-Sprite/pkg/processing"
	"github.com/alonelily/FGO-Sprite/pkg/session"
	"github.com/alonelily/FGO-Sprite/pkg/types"
)

// Version of the library
const Version = "1.0.0"

// MinSheetSize is the smallest accepted sheet dimension in pixels
const MinSheetSize = 16

// Studio ties the sheet components together
type Studio struct {
	cfg       *config.Config
	proc      *processing.Processor
	detector  *detection.Detector
	aligner   *aligner.Aligner
	log       logrus.FieldLogger
	observers []batch.Observer
}

// Option configures a Studio
type Option func(*Studio)

// WithLogger sets the logger
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Studio) { s.log = log }
}

// WithDetector replaces the detector built from the configuration
func WithDetector(d *detection.Detector) Option {
	return func(s *Studio) { s.detector = d }
}

// WithObserver subscribes an observer to every batch alignment
func WithObserver(o batch.Observer) Option {
	return func(s *Studio) { s.observers = append(s.observers, o) }
}

// New creates a Studio from a validated configuration
func New(cfg *config.Config, opts ...Option) (*Studio, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Studio{cfg: cfg, proc: processing.NewProcessor()}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logger.OrDiscard(s.log)

	if s.detector == nil {
		d, err := NewDetector(cfg, s.log)
		if err != nil {
			return nil, err
		}
		s.detector = d
	}

	s.aligner = aligner.New(aligner.Options{
		AlphaThreshold: uint8(cfg.Aligner.AlphaThreshold),
		Stride:         cfg.Aligner.Stride,
		YieldEvery:     cfg.Aligner.YieldEvery,
		Yield:          aligner.Gosched,
	}, s.log)
	return s, nil
}

// NewDetector builds the configured detector backend. The heuristic backend
// returns nil.
func NewDetector(cfg *config.Config, log logrus.FieldLogger) (*detection.Detector, error) {
	dc := cfg.Detector
	switch dc.Backend {
	case "", "heuristic":
		return nil, nil
	case "ollama":
		c, err := ollama.NewClient(dc.URL)
		if err != nil {
			return nil, apperrors.NewConfigurationError("invalid ollama url", err)
		}
		return detection.NewDetector(c, dc.Model, log), nil
	case "llamacpp", "openai":
		key, err := cfg.DetectorAPIKey()
		if err != nil {
			return nil, err
		}
		c, err := llamacpp.NewClient(dc.URL, llamacpp.WithAPIKey(key))
		if err != nil {
			return nil, apperrors.NewConfigurationError("invalid detector url", err)
		}
		return detection.NewDetector(c, dc.Model, log), nil
	default:
		return nil, apperrors.NewConfigurationError(fmt.Sprintf("unknown detector backend %q", dc.Backend), nil)
	}
}

// SheetInfo contains basic information about a sheet
type SheetInfo struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	AspectRatio float64 `json:"aspect_ratio"`
	// NormalizedHeight is the sheet height in width-scaled units
	NormalizedHeight float64 `json:"normalized_height"`
}

// Info returns basic information about a sheet
func (s *Studio) Info(img image.Image) SheetInfo {
	b := img.Bounds()
	info := SheetInfo{Width: b.Dx(), Height: b.Dy()}
	if info.Height > 0 {
		info.AspectRatio = float64(info.Width) / float64(info.Height)
	}
	if info.Width > 0 {
		info.NormalizedHeight = types.Scale * float64(info.Height) / float64(info.Width)
	}
	return info
}

// ValidateSheet checks that a sheet is large enough to work with
func (s *Studio) ValidateSheet(img image.Image) error {
	b := img.Bounds()
	if b.Dx() < MinSheetSize || b.Dy() < MinSheetSize {
		return apperrors.NewDecodeFailure(fmt.Sprintf("sheet too small: %dx%d (minimum: %dx%d)", b.Dx(), b.Dy(), MinSheetSize, MinSheetSize), nil)
	}
	return nil
}

// LoadImage loads and validates a sheet from a file path or URL
func (s *Studio) LoadImage(source string) (image.Image, error) {
	remote := strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
	if !remote && !utils.IsImageFile(source) {
		return nil, apperrors.NewDecodeFailure(fmt.Sprintf("unsupported sheet extension %q", utils.GetFileExtension(source)), nil)
	}
	img, err := s.proc.LoadImageSmart(source)
	if err != nil {
		return nil, err
	}
	if err := s.ValidateSheet(img); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"source": source,
		"width":  img.Bounds().Dx(),
		"height": img.Bounds().Dy(),
	}).Debug("Loaded sheet")
	return img, nil
}

// Detect produces the initial regions, with the configured model or the
// grid heuristic.
func (s *Studio) Detect(ctx context.Context, img image.Image) (types.AnalysisResult, error) {
	b := img.Bounds()
	if s.detector == nil {
		return detection.Heuristic(b.Dx(), b.Dy(), s.cfg.Grid), nil
	}

	dc := s.cfg.Detector
	b64, err := s.proc.PrepareImageForModel(img, dc.SendFormat, dc.SendSize, dc.SendQuality)
	if err != nil {
		return types.AnalysisResult{}, fmt.Errorf("failed to prepare image: %w", err)
	}
	return s.detector.Detect(ctx, b64, b.Dx(), b.Dy())
}

// NewSession starts a session with the configured grid, calibration and
// render options.
func (s *Studio) NewSession(analysis types.AnalysisResult) session.Session {
	sess := session.New(analysis).
		WithCalibration(s.cfg.Calibration).
		WithRender(s.cfg.RenderOptions()).
		WithAnchorSubRect(s.cfg.Aligner.AnchorSubRect)
	if s.cfg.Grid != nil {
		sess = sess.WithGrid(*s.cfg.Grid)
	}
	return sess
}

// AlignAll aligns every patch of the session and returns a session holding
// the new offsets. On cancellation the partial offsets are kept.
func (s *Studio) AlignAll(ctx context.Context, img image.Image, sess session.Session) (session.Session, error) {
	if !sess.AnchorSubRect().Valid() {
		return sess, apperrors.NewConfigurationError("anchor sub rect is not set", nil)
	}

	orch := batch.New(s.aligner, s.log, append([]batch.Observer{batch.NewLoggingObserver(s.log)}, s.observers...)...)
	offsets, err := orch.Run(ctx, img, batch.Job{
		Patches:       sess.EffectivePatches(),
		Anchor:        sess.Analysis().MainFace,
		AnchorSubRect: sess.AnchorSubRect(),
		Scale:         sess.Calibration().Scale,
	}, sess.Offsets())

	return sess.WithOffsets(offsets), err
}

// Preview draws patch i translucently over a copy of the whole sheet
func (s *Studio) Preview(img image.Image, sess session.Session, i int) (*image.NRGBA, error) {
	patches := sess.Patches()
	if i < 0 || i >= len(patches) {
		return nil, fmt.Errorf("patch index %d out of range", i)
	}
	pl := compositor.Plan(
		float64(img.Bounds().Dx()),
		sess.EffectivePatch(i),
		sess.Analysis().MainFace,
		sess.Calibration(),
		sess.Offset(i),
	)
	return compositor.Render(img, pl, compositor.PreviewMode(sess.Render().PreviewOpacity)), nil
}

// ExportJob snapshots the session for an export run
func (s *Studio) ExportJob(sess session.Session) export.Job {
	analysis := sess.Analysis()
	return export.Job{
		MainBody:    analysis.MainBody,
		Target:      analysis.MainFace,
		Patches:     sess.EffectivePatches(),
		Calibration: sess.Calibration(),
		Offsets:     sess.Offsets(),
	}
}

// Export renders and saves every patch and returns the saved names
func (s *Studio) Export(ctx context.Context, img image.Image, sess session.Session, saver export.Saver) ([]string, error) {
	p := export.New(export.Options{
		Export: s.cfg.ExportOptions(),
		Delay:  time.Duration(s.cfg.Export.DelayMS) * time.Millisecond,
		Mask:   sess.Render().Mask,
	}, saver, s.log)
	return p.Run(ctx, img, s.ExportJob(sess))
}

// DebugOverlay draws the session regions and offsets over a copy of the sheet
func (s *Studio) DebugOverlay(img image.Image, sess session.Session) image.Image {
	analysis := sess.Analysis()
	analysis.Patches = sess.Patches()
	return s.proc.CreateDebugOverlay(img, analysis, sess.Offsets())
}

// FaceCrop cuts the session's main face region out of the sheet
func (s *Studio) FaceCrop(img image.Image, sess session.Session) (image.Image, error) {
	return s.proc.CropRect(img, sess.Analysis().MainFace)
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
