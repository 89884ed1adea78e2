package types

// Scale is the extent of the normalized coordinate space. Every field of a
// Rect is expressed in [0,Scale] units of the image WIDTH, vertical fields
// included.
const Scale = 1000.0

// Rect represents a normalized rectangle with coordinates in [0,1000] range
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Center returns the rectangle center in the same units as the rectangle
func (r Rect) Center() (float64, float64) {
	return r.X + r.W/2, r.Y + r.H/2
}

// Valid reports whether the rectangle has a positive size
func (r Rect) Valid() bool {
	return r.W > 0 && r.H > 0
}

// GridConfig defines a rows x cols evenly spaced set of patches.
// Origin is the center of the top-left patch.
type GridConfig struct {
	OriginX  float64 `json:"origin_x"`
	OriginY  float64 `json:"origin_y"`
	SpacingX float64 `json:"spacing_x"`
	SpacingY float64 `json:"spacing_y"`
	PatchW   float64 `json:"patch_w"`
	PatchH   float64 `json:"patch_h"`
	Cols     int     `json:"cols"`
	Rows     int     `json:"rows"`
}

// Count returns the number of patches the grid produces
func (g GridConfig) Count() int {
	if g.Cols <= 0 || g.Rows <= 0 {
		return 0
	}
	return g.Cols * g.Rows
}

// Calibration is a global correction applied to every patch's draw geometry
type Calibration struct {
	OffsetX float64 `json:"offset_x"`
	OffsetY float64 `json:"offset_y"`
	Scale   float64 `json:"scale"`
}

// IdentityCalibration returns a calibration that leaves geometry untouched
func IdentityCalibration() Calibration {
	return Calibration{Scale: 1}
}

// PatchOffset is a per-patch fine correction in normalized units
type PatchOffset struct {
	Dx float64 `json:"dx"`
	Dy float64 `json:"dy"`
}

// AnalysisResult contains the regions located on a sprite sheet
type AnalysisResult struct {
	MainBody Rect   `json:"mainBody"`
	MainFace Rect   `json:"mainFace"`
	Patches  []Rect `json:"patches"`
}

// RenderOptions controls how patches are overlaid onto the anchor
type RenderOptions struct {
	Mask           bool    `json:"mask"`
	PreviewOpacity float64 `json:"preview_opacity"`
	UseUniformSize bool    `json:"use_uniform_size"`
	MasterSize     Rect    `json:"master_size"`
}

// ExportOptions defines the encoding and naming of exported images
type ExportOptions struct {
	Format   string
	Prefix   string
	Quality  int
	Lossless bool
}
