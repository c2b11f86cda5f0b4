package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/urfave/cli/v3"

	"github.com/ironsheep/exam-diagrams/internal/cascade"
	"github.com/ironsheep/exam-diagrams/internal/config"
	"github.com/ironsheep/exam-diagrams/internal/detection"
	"github.com/ironsheep/exam-diagrams/internal/export"
	"github.com/ironsheep/exam-diagrams/internal/imaging"
	"github.com/ironsheep/exam-diagrams/internal/model"
	"github.com/ironsheep/exam-diagrams/internal/ocr"
	"github.com/ironsheep/exam-diagrams/internal/pipeline"
	"github.com/ironsheep/exam-diagrams/internal/server"
	"github.com/ironsheep/exam-diagrams/internal/store"
)

func processCommand() *cli.Command {
	return &cli.Command{
		Name:      "process",
		Usage:     "Read every page of an exam PDF, extract its questions and crop their diagrams",
		ArgsUsage: "<pdf>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "batch-size",
				Usage: "Pages per batch between rate-limit pauses",
			},
			&cli.BoolFlag{
				Name:  "debug-overlays",
				Usage: "Write page_N_debug.png with the diagram boxes drawn",
			},
		},
		Action: runProcess,
	}
}

func runProcess(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return fmt.Errorf("process needs a PDF path")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.IsSet("batch-size") {
		cfg.BatchSize = cmd.Int("batch-size")
	}
	if cmd.Bool("debug-overlays") {
		cfg.DebugOverlays = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Model.APIKey == "" {
		return fmt.Errorf("%s is not set", config.EnvAPIKey)
	}

	client := model.NewClient(cfg.Model)
	c := cascade.New(cfg.Detection, client, cascade.DiskSink{Dir: cfg.OutputDir}, cfg.Cascade)
	p := pipeline.New(cfg.Config, client, c)
	p.Reader = client
	if cfg.OCR.Enabled {
		p.OCR = ocr.New(cfg.OCR.Language)
	}

	slog.Info("processing", "pdf", path, "model", cfg.Model.Model, "batch_size", cfg.BatchSize)
	doc, err := p.Process(ctx, path)
	if err != nil {
		return err
	}

	jsonPath := outputPath(cfg, cfg.Export.JSON)
	if jsonPath != "" {
		if err := export.WriteJSON(jsonPath, doc); err != nil {
			return err
		}
		slog.Info("wrote questions", "path", jsonPath)
	}
	if xlsx := outputPath(cfg, cfg.Export.Workbook); xlsx != "" {
		if err := export.WriteWorkbook(xlsx, doc); err != nil {
			return err
		}
		slog.Info("wrote workbook", "path", xlsx)
	}
	if cfg.Store.Path != "" {
		if err := saveToStore(ctx, cfg.Store.Path, path, doc); err != nil {
			return err
		}
	}

	slog.Info("done",
		"pages", doc.Info.TotalPages,
		"questions", doc.Info.TotalQuestions,
		"api_calls", doc.Info.APICallsUsed)
	for _, t := range export.Topics(doc.Questions) {
		slog.Info("topic", "topic", t.Topic, "easy", t.Easy, "medium", t.Medium, "hard", t.Hard, "total", t.Total)
	}
	return nil
}

func saveToStore(ctx context.Context, dbPath, pdfPath string, doc *pipeline.Document) error {
	st, err := store.New(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	abs, err := filepath.Abs(pdfPath)
	if err != nil {
		abs = pdfPath
	}
	id, err := st.SaveDocument(ctx, abs, doc)
	if err != nil {
		return err
	}
	slog.Info("stored document", "db", dbPath, "id", id)
	return nil
}

// outputPath resolves an export path against the output directory.
func outputPath(cfg config.Config, name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(cfg.OutputDir, name)
}

func detectCommand() *cli.Command {
	return &cli.Command{
		Name:      "detect",
		Usage:     "Crop the diagrams of one rendered page, falling back to a fixed band of the page",
		ArgsUsage: "<image>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "page",
				Usage: "Page number for crop names (default: taken from page_N.png, else 1)",
			},
			&cli.BoolFlag{
				Name:  "overlay",
				Usage: "Also write page_N_debug.png with every candidate outlined",
			},
		},
		Action: runDetect,
	}
}

var pageNumber = regexp.MustCompile(`page_(\d+)`)

func pageFromFilename(path string) int {
	m := pageNumber.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return 1
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 1
	}
	return n
}

func runDetect(ctx context.Context, cmd *cli.Command) error {
	page, cfg, err := loadPage(cmd)
	if err != nil {
		return err
	}

	c := cascade.New(cfg.Detection, nil, cascade.DiskSink{Dir: cfg.OutputDir}, cfg.Cascade)
	res, err := c.Run(ctx, page, cascade.Question{RequiresDiagram: true})
	if err != nil {
		return err
	}
	slog.Info("detected", "page", page.Number, "tier", res.Tier, "crops", len(res.Records))

	if cmd.Bool("overlay") {
		cands, err := detection.RunSafe(detection.NewHybrid(cfg.Detection), page)
		if err != nil {
			return err
		}
		boxes := make([]imaging.OverlayBox, len(cands))
		for i, cd := range cands {
			boxes[i] = imaging.OverlayBox{
				Rect:  cd.BBox.Rect(),
				Label: fmt.Sprintf("%s %.0f", cd.Source, cd.Confidence),
				Group: string(cd.Source),
			}
		}
		out := filepath.Join(cfg.OutputDir, fmt.Sprintf("page_%d_debug.png", page.Number))
		if _, err := imaging.SavePNG(imaging.DrawOverlay(page.Image(), boxes, imaging.OverlayOptions{}), out); err != nil {
			return err
		}
		slog.Info("wrote overlay", "path", out)
	}
	return printJSON(res)
}

func regionsCommand() *cli.Command {
	return &cli.Command{
		Name:      "regions",
		Usage:     "Classify the regions of one rendered page as diagram, text or mixed",
		ArgsUsage: "<image>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "page",
				Usage: "Page number (default: taken from page_N.png, else 1)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			page, cfg, err := loadPage(cmd)
			if err != nil {
				return err
			}
			return printJSON(detection.ClassifyRegions(page, cfg.Detection.Regions))
		},
	}
}

func loadPage(cmd *cli.Command) (*detection.Page, config.Config, error) {
	path := cmd.Args().First()
	if path == "" {
		return nil, config.Config{}, fmt.Errorf("%s needs an image path", cmd.Name)
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, config.Config{}, err
	}
	img, err := imaging.Load(path)
	if err != nil {
		return nil, config.Config{}, err
	}
	n := pageFromFilename(path)
	if cmd.Int("page") > 0 {
		n = cmd.Int("page")
	}
	return detection.NewPage(n, img), cfg, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the page detection tools over MCP on stdin/stdout",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			opts := []server.Option{
				server.WithParams(cfg.Detection),
				server.WithCascadeOptions(cfg.Cascade),
				server.WithOutputDir(cfg.OutputDir),
				server.WithOCRLanguage(cfg.OCR.Language),
				server.WithVersion(Version),
			}
			if cfg.Model.APIKey != "" {
				opts = append(opts, server.WithLocator(model.NewClient(cfg.Model)))
			}
			slog.Debug("MCP server starting", "version", Version, "built", BuildTime, "commit", GitCommit)
			return server.New(opts...).Run(ctx)
		},
	}
}
