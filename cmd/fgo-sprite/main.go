package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	fgosprite "github.com/alonelily/FGO-Sprite"
	"github.com/alonelily/FGO-Sprite/internal/config"
	"github.com/alonelily/FGO-Sprite/internal/logger"
	"github.com/alonelily/FGO-Sprite/internal/utils"
	"github.com/alonelily/FGO-Sprite/pkg/export"
	"github.com/alonelily/FGO-Sprite/pkg/processing"
	"github.com/alonelily/FGO-Sprite/pkg/types"
)

func main() {
	var in, outDir, cfgPath, envPath string
	var backend, url, model string
	var ext, prefix string
	var quality int
	var lossless bool
	var align, debug, preview, saveCfg bool
	var anchor string
	var logLevel string

	flag.StringVar(&in, "in", "", "input sheet path or URL (jpg/png/webp)")
	flag.StringVar(&outDir, "out", "", "output directory (default from config)")
	flag.StringVar(&cfgPath, "config", "", "config file (default "+config.GetConfigPath()+" when present)")
	flag.StringVar(&envPath, "env", ".env", "dotenv file with detector credentials")

	flag.StringVar(&backend, "backend", "", "detector backend: heuristic|ollama|llamacpp|openai")
	flag.StringVar(&url, "url", "", "detector server URL")
	flag.StringVar(&model, "model", "", "detector model name")

	flag.StringVar(&ext, "ext", "", "export format: png|jpg|webp")
	flag.StringVar(&prefix, "prefix", "", "export file prefix (default: sheet name)")
	flag.IntVar(&quality, "quality", 0, "JPEG/WebP export quality (1-100)")
	flag.BoolVar(&lossless, "lossless", false, "WebP lossless export")

	flag.BoolVar(&align, "align", true, "run template alignment before export")
	flag.StringVar(&anchor, "anchor", "", "anchor sub rect relative to the patch: x,y,w,h (normalized)")
	flag.BoolVar(&preview, "preview", false, "write a translucent preview per patch")
	flag.BoolVar(&debug, "debug", false, "write a debug overlay of the detected regions")
	flag.BoolVar(&saveCfg, "save-config", false, "write the effective config next to the exports")
	flag.StringVar(&logLevel, "log-level", "", "log level (default from config or LOG_LEVEL)")

	flag.Parse()
	if in == "" {
		fmt.Fprintf(os.Stderr, "usage: %s -in sheet.png [-config cfg.json] [-backend heuristic|ollama|llamacpp|openai] [-out outdir] [-ext png|jpg|webp] [-anchor x,y,w,h]\n", filepath.Base(os.Args[0]))
		os.Exit(2)
	}

	if !strings.HasPrefix(in, "http://") && !strings.HasPrefix(in, "https://") && !utils.IsImageFile(in) {
		logger.Default().WithField("in", in).Fatal("Input must be a jpg, png or webp sheet")
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Default().WithError(err).Fatal("Failed to load config")
	}
	applyFlags(cfg, backend, url, model, ext, prefix, outDir, quality, lossless, logLevel)
	if cfg.Export.Prefix == "" {
		cfg.Export.Prefix = utils.SheetName(in)
	}
	if anchor != "" {
		r, err := parseRect(anchor)
		if err != nil {
			logger.Default().WithError(err).Fatal("Invalid -anchor")
		}
		cfg.Aligner.AnchorSubRect = r
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err := config.LoadEnv(envPath); err != nil {
		log.WithError(err).Fatal("Failed to load environment")
	}

	studio, err := fgosprite.New(cfg, fgosprite.WithLogger(log))
	if err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, studio, cfg, in, align, preview, debug, saveCfg, log); err != nil {
		log.WithError(err).Fatal("Run failed")
	}
}

func run(ctx context.Context, studio *fgosprite.Studio, cfg *config.Config, in string, align, preview, debug, saveCfg bool, log *logrus.Logger) error {
	outDir := cfg.Export.OutputDir
	if err := utils.EnsureDir(outDir); err != nil {
		return err
	}

	img, err := studio.LoadImage(in)
	if err != nil {
		return err
	}
	info := studio.Info(img)
	log.WithFields(logrus.Fields{
		"width":  info.Width,
		"height": info.Height,
		"units":  fmt.Sprintf("1000x%.1f", info.NormalizedHeight),
	}).Info("Loaded sheet")

	analysis, err := studio.Detect(ctx, img)
	if err != nil {
		return err
	}
	sess := studio.NewSession(analysis)
	log.WithFields(logrus.Fields{
		"main_body": analysis.MainBody,
		"main_face": analysis.MainFace,
		"patches":   len(sess.Patches()),
	}).Info("Regions ready")

	if err := writeJSON(filepath.Join(outDir, "analysis.json"), analysis); err != nil {
		return err
	}

	if align {
		if !sess.AnchorSubRect().Valid() {
			log.Warn("No anchor sub rect configured, skipping alignment")
		} else if sess, err = studio.AlignAll(ctx, img, sess); err != nil {
			return err
		}
	}

	proc := processing.NewProcessor()
	if debug {
		path := filepath.Join(outDir, "debug_overlay.png")
		if err := proc.SaveImage(studio.DebugOverlay(img, sess), path, "png", 0, false); err != nil {
			log.WithError(err).Warn("Debug overlay save failed")
		} else {
			log.WithField("path", path).Info("Wrote debug overlay")
		}

		face, err := studio.FaceCrop(img, sess)
		if err != nil {
			log.WithError(err).Warn("Main face crop failed")
		} else if err := proc.SaveImage(face, filepath.Join(outDir, "main_face.png"), "png", 0, false); err != nil {
			log.WithError(err).Warn("Main face save failed")
		}
	}

	if preview {
		for i := range sess.Patches() {
			canvas, err := studio.Preview(img, sess, i)
			if err != nil {
				return err
			}
			path := filepath.Join(outDir, export.FileName("preview", i, "png"))
			if err := proc.SaveImage(canvas, path, "png", 0, false); err != nil {
				log.WithError(err).WithField("path", path).Warn("Preview save failed")
			}
		}
	}

	names, err := studio.Export(ctx, img, sess, export.DirSaver{Dir: outDir})
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"count": len(names), "dir": outDir}).Info("Done")

	if err := writeJSON(filepath.Join(outDir, "offsets.json"), sess.Offsets()); err != nil {
		return err
	}
	if saveCfg {
		return cfg.SaveToFile(filepath.Join(outDir, "config.json"))
	}
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = config.GetConfigPath()
		if !utils.FileExists(path) {
			return config.Default(), nil
		}
	}
	return config.LoadFromFile(path)
}

func applyFlags(cfg *config.Config, backend, url, model, ext, prefix, outDir string, quality int, lossless bool, logLevel string) {
	if backend != "" {
		cfg.Detector.Backend = backend
	}
	if url != "" {
		cfg.Detector.URL = url
	}
	if model != "" {
		cfg.Detector.Model = model
	}
	if ext != "" {
		cfg.Export.Format = utils.NormalizeFormat(ext)
	}
	if prefix != "" {
		cfg.Export.Prefix = prefix
	}
	if outDir != "" {
		cfg.Export.OutputDir = outDir
	}
	if quality > 0 {
		cfg.Export.Quality = quality
	}
	if lossless {
		cfg.Export.Lossless = true
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
}

func parseRect(s string) (types.Rect, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return types.Rect{}, fmt.Errorf("expected x,y,w,h, got %q", s)
	}
	var v [4]float64
	for i, p := range parts {
		if _, err := fmt.Sscanf(strings.TrimSpace(p), "%g", &v[i]); err != nil {
			return types.Rect{}, fmt.Errorf("bad number %q: %w", p, err)
		}
	}
	return types.Rect{X: v[0], Y: v[1], W: v[2], H: v[3]}, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
