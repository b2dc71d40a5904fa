package pdfdoc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/tgautier-sma/ai-llama/internal/cmdrun"
)

// Natural PDF resolution; zoom 1.0 renders at this DPI.
const baseDPI = 72.0

// PopplerRasterizer renders pages with pdftoppm.
type PopplerRasterizer struct {
	binary string
	runner cmdrun.Runner
}

func NewPopplerRasterizer(binary string, runner cmdrun.Runner) *PopplerRasterizer {
	if binary == "" {
		binary = "pdftoppm"
	}
	if runner == nil {
		runner = cmdrun.ExecRunner{}
	}
	return &PopplerRasterizer{binary: binary, runner: runner}
}

func (p *PopplerRasterizer) Rasterize(ctx context.Context, pdfPath string, pageIndex int, zoom float64) ([]byte, error) {
	outDir, err := os.MkdirTemp("", "raster-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create raster dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	page := strconv.Itoa(pageIndex + 1)
	prefix := filepath.Join(outDir, "page")
	args := []string{
		"-png",
		"-r", strconv.FormatFloat(baseDPI*zoom, 'f', -1, 64),
		"-f", page,
		"-l", page,
		"-singlefile",
		pdfPath,
		prefix,
	}

	if _, stderr, err := p.runner.Run(ctx, p.binary, args...); err != nil {
		return nil, fmt.Errorf("pdftoppm page %s: %w: %s", page, err, cmdrun.Truncate(string(stderr), 512))
	}

	png, err := os.ReadFile(prefix + ".png")
	if err != nil {
		return nil, fmt.Errorf("pdftoppm produced no image for page %s: %w", page, err)
	}
	return png, nil
}
