package detection

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	apperrors "github.com/alonelily/FGO-Sprite/internal/errors"
	"github.com/alonelily/FGO-Sprite/internal/logger"
	"github.com/alonelily/FGO-Sprite/pkg/client"
	"github.com/alonelily/FGO-Sprite/pkg/grid"
	"github.com/alonelily/FGO-Sprite/pkg/types"
)

// DefaultPrompt asks a vision model for the sheet regions
const DefaultPrompt = `You are a sprite sheet region locator.

The image is a character art sheet: one large full body drawing plus a set of
small repeated face patches (expression variants) laid out in a grid.

Return JSON only:
{
  "mainBody": {"x": 0, "y": 0, "w": 0, "h": 0},
  "mainFace": {"x": 0, "y": 0, "w": 0, "h": 0},
  "patches": [{"x": 0, "y": 0, "w": 0, "h": 0}]
}

HARD RULES
- Coordinates are integers in [0,1000]: x and w relative to image width, y and h relative to image height.
- mainBody is the full body drawing.
- mainFace is the face region inside mainBody that the patches replace.
- patches lists every expression patch, row by row, left to right.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// Detector locates sheet regions with a vision model
type Detector struct {
	client client.VisionClient
	model  string
	prompt string
	log    logrus.FieldLogger
}

// NewDetector creates a new detector with a vision client
func NewDetector(c client.VisionClient, model string, log logrus.FieldLogger) *Detector {
	return &Detector{
		client: c,
		model:  model,
		prompt: DefaultPrompt,
		log:    logger.OrDiscard(log),
	}
}

// WithPrompt returns a detector using a custom prompt
func (d *Detector) WithPrompt(prompt string) *Detector {
	cp := *d
	cp.prompt = prompt
	return &cp
}

// Detect sends the encoded sheet to the model and parses its answer. imgW and
// imgH are the dimensions of the original sheet.
func (d *Detector) Detect(ctx context.Context, imageB64 string, imgW, imgH int) (types.AnalysisResult, error) {
	if d.client == nil {
		return types.AnalysisResult{}, apperrors.NewConfigurationError("no vision client configured", nil)
	}
	if d.model == "" {
		return types.AnalysisResult{}, apperrors.NewConfigurationError("no detector model configured", nil)
	}

	raw, err := d.client.Query(ctx, d.model, d.prompt, imageB64)
	if err != nil {
		return types.AnalysisResult{}, fmt.Errorf("detector query failed: %w", err)
	}

	result, err := Parse(raw, imgW, imgH)
	if err != nil {
		d.log.WithError(err).Warn("Discarding detector answer")
		return types.AnalysisResult{}, err
	}

	d.log.WithFields(logrus.Fields{
		"model":   d.model,
		"patches": len(result.Patches),
	}).Info("Detected sheet regions")
	return result, nil
}

type modelRect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

type modelAnswer struct {
	MainBody *modelRect  `json:"mainBody"`
	MainFace *modelRect  `json:"mainFace"`
	Patches  []modelRect `json:"patches"`
}

// Parse converts a model answer in per-axis [0,1000] units into an
// AnalysisResult in width-scaled units. Patches with no area are dropped.
func Parse(raw string, imgW, imgH int) (types.AnalysisResult, error) {
	if imgW <= 0 || imgH <= 0 {
		return types.AnalysisResult{}, apperrors.NewDetectorParseError(fmt.Sprintf("invalid image size %dx%d", imgW, imgH), nil)
	}

	cleaned := sanitizeModelJSON(raw)
	if !strings.HasPrefix(cleaned, "{") {
		return types.AnalysisResult{}, apperrors.NewDetectorParseError("no JSON object in model answer", nil)
	}

	var answer modelAnswer
	if err := json.Unmarshal([]byte(cleaned), &answer); err != nil {
		return types.AnalysisResult{}, apperrors.NewDetectorParseError("malformed model answer", err)
	}
	if answer.MainBody == nil || answer.MainFace == nil {
		return types.AnalysisResult{}, apperrors.NewDetectorParseError("model answer is missing mainBody or mainFace", nil)
	}

	ratio := float64(imgH) / float64(imgW)
	result := types.AnalysisResult{
		MainBody: toWidthScaled(*answer.MainBody, ratio),
		MainFace: toWidthScaled(*answer.MainFace, ratio),
	}
	if !result.MainBody.Valid() || !result.MainFace.Valid() {
		return types.AnalysisResult{}, apperrors.NewDetectorParseError("model returned an empty mainBody or mainFace", nil)
	}

	for _, p := range answer.Patches {
		r := toWidthScaled(p, ratio)
		if r.Valid() {
			result.Patches = append(result.Patches, r)
		}
	}
	return result, nil
}

// toWidthScaled clamps a per-axis rect to the image and rescales its
// vertical fields by H/W.
func toWidthScaled(r modelRect, ratio float64) types.Rect {
	x := clamp(r.X, 0, types.Scale)
	y := clamp(r.Y, 0, types.Scale)
	w := clamp(r.W, 0, types.Scale-x)
	h := clamp(r.H, 0, types.Scale-y)
	return types.Rect{X: x, Y: y * ratio, W: w, H: h * ratio}
}

// Heuristic builds regions without a model. Patches come from the grid
// when one is given; the body spans the sheet above the first patch row and
// the face is a centred box in its upper part.
func Heuristic(imgW, imgH int, g *types.GridConfig) types.AnalysisResult {
	if imgW <= 0 || imgH <= 0 {
		return types.AnalysisResult{}
	}
	fullH := types.Scale * float64(imgH) / float64(imgW)

	var patches []types.Rect
	if g != nil {
		patches = grid.Generate(*g)
	}

	bodyH := fullH
	for _, p := range patches {
		if p.Y > 0 && p.Y < bodyH {
			bodyH = p.Y
		}
	}

	side := 0.2 * types.Scale
	if side > bodyH/2 {
		side = bodyH / 2
	}
	return types.AnalysisResult{
		MainBody: types.Rect{X: 0, Y: 0, W: types.Scale, H: bodyH},
		MainFace: types.Rect{X: (types.Scale - side) / 2, Y: 0.15 * bodyH, W: side, H: side},
		Patches:  patches,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

var (
	reBlock    = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reInline   = regexp.MustCompile(`(?m)//.*$`)
	reTrailing = regexp.MustCompile(`,(\s*[}\]])`)
)

// sanitizeModelJSON removes code fences, comments, and trailing commas from JSON response
func sanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	raw = reBlock.ReplaceAllString(raw, "")
	raw = reInline.ReplaceAllString(raw, "")
	raw = reTrailing.ReplaceAllString(raw, "$1")

	// Keep only the outermost {...}
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}
