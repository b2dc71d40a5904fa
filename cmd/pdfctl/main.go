// Command pdfctl runs the PDF pipeline against a local file without the HTTP
// server. It reads the same environment as the service.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/tgautier-sma/ai-llama/internal/config"
	"github.com/tgautier-sma/ai-llama/internal/logger"
	"github.com/tgautier-sma/ai-llama/models"
	"github.com/tgautier-sma/ai-llama/routes"
	"github.com/tgautier-sma/ai-llama/services"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout).RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "pdfctl:", err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:  "pdfctl",
		Usage: "extract text from a PDF or ask the configured LLM about it",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "vision",
				Usage:   "send page images instead of extracted text",
				EnvVars: []string{"VISION_MODE"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "extract",
				Usage:     "print the extracted text as JSON",
				ArgsUsage: "<file.pdf>",
				Action: func(c *cli.Context) error {
					svc, data, name, err := prepare(c)
					if err != nil {
						return err
					}
					res, pages, err := svc.ExtractText(c.Context, data)
					if err != nil {
						return err
					}
					return writeJSON(out, models.TextExtraction{
						Filename: name,
						Pages:    pages,
						Chars:    res.CharCount,
						OCRUsed:  res.OCRUsed,
						Text:     res.Text,
					})
				},
			},
			{
				Name:      "ask",
				Usage:     "ask a question about the document and print the answer as JSON",
				ArgsUsage: "<file.pdf>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "question",
						Aliases: []string{"q"},
						Value:   routes.DefaultQuestion,
					},
					&cli.IntFlag{
						Name:  "max-tokens",
						Value: routes.DefaultMaxTokens,
					},
				},
				Action: func(c *cli.Context) error {
					svc, data, _, err := prepare(c)
					if err != nil {
						return err
					}
					if c.Int("max-tokens") <= 0 {
						return fmt.Errorf("max-tokens must be positive")
					}
					res, err := svc.Analyze(c.Context, data, c.String("question"), c.Int("max-tokens"))
					if err != nil {
						return err
					}
					return writeJSON(out, res)
				},
			},
		},
	}
}

func prepare(c *cli.Context) (*services.PDFService, []byte, string, error) {
	if c.NArg() != 1 {
		return nil, nil, "", fmt.Errorf("expected exactly one PDF path")
	}
	path := c.Args().First()
	if !strings.HasSuffix(strings.ToLower(path), ".pdf") {
		return nil, nil, "", fmt.Errorf("%s: file must be a PDF", path)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, "", err
	}
	if c.IsSet("vision") {
		cfg.VisionMode = c.Bool("vision")
	}
	logger.InitLogger(cfg)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, "", fmt.Errorf("read %s: %w", path, err)
	}
	if int64(len(data)) > cfg.MaxFileSize {
		return nil, nil, "", fmt.Errorf("%s exceeds %d bytes", path, cfg.MaxFileSize)
	}

	logger.Info("pdfctl run", "run_id", uuid.NewString(), "command", c.Command.Name, "file", path)
	return services.BuildPDFService(cfg, nil), data, filepath.Base(path), nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
