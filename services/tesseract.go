package services

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/tgautier-sma/ai-llama/internal/cmdrun"
)

// OCREngine turns a rendered page image into text.
type OCREngine interface {
	Recognize(ctx context.Context, png []byte, languages []string) (string, error)
}

// TesseractEngine runs the tesseract CLI on each page image.
type TesseractEngine struct {
	binary      string
	tessdataDir string
	runner      cmdrun.Runner
}

func NewTesseractEngine(binary, tessdataDir string, runner cmdrun.Runner) *TesseractEngine {
	if binary == "" {
		binary = "tesseract"
	}
	if runner == nil {
		runner = cmdrun.ExecRunner{}
	}
	return &TesseractEngine{binary: binary, tessdataDir: tessdataDir, runner: runner}
}

func (e *TesseractEngine) Recognize(ctx context.Context, png []byte, languages []string) (string, error) {
	f, err := os.CreateTemp("", "ocr-page-*.png")
	if err != nil {
		return "", fmt.Errorf("failed to create temp image: %w", err)
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(png); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write temp image: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close temp image: %w", err)
	}

	args := []string{f.Name(), "stdout"}
	if len(languages) > 0 {
		args = append(args, "-l", strings.Join(languages, "+"))
	}
	if e.tessdataDir != "" {
		args = append(args, "--tessdata-dir", e.tessdataDir)
	}

	stdout, stderr, err := e.runner.Run(ctx, e.binary, args...)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w: %s", err, cmdrun.Truncate(string(stderr), 512))
	}
	return string(stdout), nil
}
