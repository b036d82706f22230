package thumbs

import (
	"context"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"

	"shortform-pipeline/config"
	"shortform-pipeline/logger"
	"shortform-pipeline/providers"
	"shortform-pipeline/types"
)

const (
	thumbWidth    = 1280
	thumbHeight   = 720
	titleFontSize = 72
	textMargin    = 80.0
	lineSpacing   = 1.3
)

type colorScheme struct {
	name       string
	background color.NRGBA
	accent     color.NRGBA
	text       color.NRGBA
}

var colorSchemes = []colorScheme{
	{"midnight", color.NRGBA{R: 16, G: 19, B: 26, A: 255}, color.NRGBA{R: 255, G: 196, B: 0, A: 255}, color.NRGBA{R: 245, G: 245, B: 245, A: 255}},
	{"crimson", color.NRGBA{R: 118, G: 21, B: 38, A: 255}, color.NRGBA{R: 255, G: 214, B: 92, A: 255}, color.NRGBA{R: 255, G: 255, B: 255, A: 255}},
	{"ocean", color.NRGBA{R: 11, G: 57, B: 84, A: 255}, color.NRGBA{R: 64, G: 224, B: 208, A: 255}, color.NRGBA{R: 235, G: 244, B: 255, A: 255}},
	{"forest", color.NRGBA{R: 22, G: 58, B: 40, A: 255}, color.NRGBA{R: 255, G: 170, B: 64, A: 255}, color.NRGBA{R: 240, G: 248, B: 240, A: 255}},
}

// Generator composes title-card thumbnails locally. Variants rotate
// through a fixed palette so a run's candidates look distinct without
// any remote image service.
type Generator struct {
	cfg    *config.Config
	log    *logger.Logger
	outDir string
	face   font.Face
}

// New loads the configured title font, falling back to the built-in
// bitmap face when none is configured or the file cannot be read.
func New(cfg *config.Config, log *logger.Logger, outDir string) *Generator {
	face := font.Face(basicfont.Face7x13)
	if cfg.Thumbnails.FontPath != "" {
		loaded, err := loadFace(cfg.Thumbnails.FontPath, titleFontSize)
		if err != nil {
			log.Warn("thumbnail font unavailable, using built-in face",
				"path", cfg.Thumbnails.FontPath, "error", err)
		} else {
			face = loaded
		}
	}
	return &Generator{cfg: cfg, log: log.With("stage", "thumbs"), outDir: outDir, face: face}
}

// Generate writes the configured number of thumbnail variants and
// returns one entry per written file.
func (g *Generator) Generate(ctx context.Context, script *types.Script) ([]types.ThumbnailVariant, error) {
	title := strings.TrimSpace(script.SEO.Title)
	if title == "" {
		title = strings.TrimSpace(script.Hook)
	}
	if title == "" {
		return nil, &providers.ValidationError{Op: "thumbnail", Reason: "script has no title or hook"}
	}
	if err := os.MkdirAll(g.outDir, 0755); err != nil {
		return nil, fmt.Errorf("thumbnail output dir: %w", err)
	}

	count := g.cfg.Thumbnails.VariantCount
	variants := make([]types.ThumbnailVariant, 0, count)
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		scheme := colorSchemes[i%len(colorSchemes)]
		path := filepath.Join(g.outDir, fmt.Sprintf("thumb_%02d_%s.png", i+1, scheme.name))
		if err := g.drawVariant(title, scheme, path); err != nil {
			return nil, fmt.Errorf("thumbnail %d: %w", i+1, err)
		}
		variants = append(variants, types.ThumbnailVariant{
			VariantIndex: i + 1,
			ImageRef:     path,
			ColorScheme:  scheme.name,
		})
	}
	g.log.Info("thumbnails written", "count", len(variants), "dir", g.outDir)
	return variants, nil
}

func (g *Generator) drawVariant(title string, scheme colorScheme, path string) error {
	dc := gg.NewContext(thumbWidth, thumbHeight)

	dc.SetColor(scheme.background)
	dc.Clear()

	// accent bar down the left edge
	dc.SetColor(scheme.accent)
	dc.DrawRectangle(0, 0, 24, thumbHeight)
	dc.Fill()

	dc.SetFontFace(g.face)
	textWidth := float64(thumbWidth) - 2*textMargin
	cx, cy := textMargin, float64(thumbHeight)/2

	// shadow first, then the title over it
	dc.SetColor(color.NRGBA{A: 180})
	dc.DrawStringWrapped(title, cx+4, cy+4, 0, 0.5, textWidth, lineSpacing, gg.AlignLeft)
	dc.SetColor(scheme.text)
	dc.DrawStringWrapped(title, cx, cy, 0, 0.5, textWidth, lineSpacing, gg.AlignLeft)

	// short accent rule below the title block
	lines := len(dc.WordWrap(title, textWidth))
	blockHalf := float64(lines) * dc.FontHeight() * lineSpacing / 2
	dc.SetColor(scheme.accent)
	dc.DrawRectangle(cx, cy+blockHalf+24, 260, 10)
	dc.Fill()

	return dc.SavePNG(path)
}

func loadFace(path string, size float64) (font.Face, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	parsed, err := truetype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}
	return truetype.NewFace(parsed, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	}), nil
}
