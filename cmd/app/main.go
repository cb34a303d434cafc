package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/othala/internal"
	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/index"
	"github.com/starford/othala/internal/mcpserver"
	"github.com/starford/othala/internal/reconcile"
	"github.com/starford/othala/internal/sidecar"
	"github.com/starford/othala/internal/storage"
	"github.com/starford/othala/internal/vault"
	"github.com/starford/othala/internal/vaultservice"
	"github.com/starford/othala/internal/visualize"
	pkgconfig "github.com/starford/othala/pkg/config"
)

// commonFlags are shared by every subcommand. A fresh slice per call;
// cli.Flag values must not be reused across commands.
func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to config file",
			DefaultText: "config/config.yaml",
			Value:       "config/config.yaml",
			Sources:     cli.EnvVars("APP_CONFIG_FILE"),
		},
		&cli.StringFlag{
			Name:    "vault",
			Usage:   "Vault directory (overrides config)",
			Sources: cli.EnvVars("OTHALA_VAULT"),
		},
	}
}

// loadConfig builds the effective configuration: defaults, then the
// config file when it exists, then flag overrides.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	configPath := cmd.String("config")
	if _, err := os.Stat(configPath); err == nil {
		if err := pkgconfig.Load(configPath, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	if v := cmd.String("vault"); v != "" {
		cfg.Vault.Path = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openVault(cfg *internal.Config) (*vault.Manager, error) {
	return vault.NewManager(cfg.Vault.Path, cfg.Vault.ManifestFile, cfg.Vault.LineageFile)
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func mcpAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	mgr, err := openVault(cfg)
	if err != nil {
		return err
	}
	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	// MCP uses stdout for the protocol; logs go to stderr.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	if err := index.Sync(db, mgr, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	svc := vaultservice.NewService(mgr, db, logger, nil)
	return mcpserver.New(svc).ServeStdio()
}

func registerAction(_ context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() < 2 {
		return fmt.Errorf("usage: register <vault-id> <file-path>")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	mgr, err := openVault(cfg)
	if err != nil {
		return err
	}
	vaultID := cmd.Args().Get(0)
	filePath := cmd.Args().Get(1)

	sum, err := mgr.Register(vaultID, filePath, cmd.String("predecessor"), nil)
	if err != nil {
		return err
	}
	fmt.Printf("registered %s (%s)\n", vaultID, sum)
	return nil
}

func verifyAction(_ context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() < 1 {
		return fmt.Errorf("usage: verify <vault-id>")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	mgr, err := openVault(cfg)
	if err != nil {
		return err
	}
	vaultID := cmd.Args().Get(0)

	valid, issues := mgr.VerifyArtifact(vaultID)
	if valid {
		fmt.Printf("%s: ok\n", vaultID)
		return nil
	}
	for _, issue := range issues {
		fmt.Printf("%s: %s\n", vaultID, issue)
	}
	return fmt.Errorf("verification failed")
}

func lineageAction(_ context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() < 1 {
		return fmt.Errorf("usage: lineage <vault-id>")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	mgr, err := openVault(cfg)
	if err != nil {
		return err
	}
	vaultID := cmd.Args().Get(0)

	dir := vault.Backward
	if cmd.String("direction") == string(vault.Forward) {
		dir = vault.Forward
	}
	chain, err := mgr.Trace(vaultID, dir)
	if err != nil && !errors.Is(err, apperr.ErrCycle) {
		return err
	}
	if chain == nil {
		return fmt.Errorf("lineage: %s: %w", vaultID, apperr.ErrNotFound)
	}
	fmt.Println(strings.Join(chain, " -> "))
	if err != nil {
		fmt.Printf("warning: %v\n", err)
	}
	return nil
}

func reportAction(_ context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	mgr, err := openVault(cfg)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{
		"report":       mgr.GenerateReport(),
		"cycles":       mgr.DetectCycles(),
		"broken_links": mgr.DetectBrokenLinks(),
	})
}

func exportAction(_ context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	mgr, err := openVault(cfg)
	if err != nil {
		return err
	}
	state, err := mgr.ExportState()
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	if path := cmd.String("output"); path != "" {
		if err := os.WriteFile(path, append(out, '\n'), 0o644); err != nil {
			return err
		}
		fmt.Printf("exported vault state to %s\n", path)
		return nil
	}
	fmt.Println(string(out))
	return nil
}

// markdownFiles collects the markdown artifacts under the vault root,
// skipping vault persistence files and sidecars (which are .json
// anyway).
func markdownFiles(root string) ([]string, error) {
	fsys, err := storage.NewFS(root)
	if err != nil {
		return nil, err
	}
	entries, err := fsys.List("")
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !strings.HasSuffix(e.Path, ".md") {
			continue
		}
		abs, err := fsys.Abs(e.Path)
		if err != nil {
			continue
		}
		files = append(files, abs)
	}
	return files, nil
}

func checksumsAction(_ context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	files := cmd.Args().Slice()
	if len(files) == 0 {
		files, err = markdownFiles(cfg.Vault.Path)
		if err != nil {
			return err
		}
	}

	rec := &reconcile.Reconciler{DryRun: cmd.Bool("dry-run")}
	source := reconcile.Source(cmd.String("source"))
	recalculate := cmd.Bool("recalculate")

	if source != "" && source != reconcile.SourceEmbedded && source != reconcile.SourceSidecar {
		return fmt.Errorf("checksums: source %q: %w", source, apperr.ErrFormat)
	}

	drifted := 0
	for _, path := range files {
		d, err := rec.Check(path)
		if err != nil {
			fmt.Printf("%s: error: %v\n", path, err)
			drifted++
			continue
		}

		switch {
		case recalculate:
			sum, err := rec.Recalculate(path)
			if err != nil {
				return err
			}
			fmt.Printf("%s: recalculated (%s)\n", path, sum)
		case source != "":
			if !d.HasDrift() && d.IsCorrect() {
				fmt.Printf("%s: in sync\n", path)
				continue
			}
			if err := rec.Sync(path, source); err != nil {
				if errors.Is(err, apperr.ErrMissingSource) {
					fmt.Printf("%s: skipped: %v\n", path, err)
					continue
				}
				return err
			}
			fmt.Printf("%s: synced from %s\n", path, source)
		default:
			switch {
			case d.HasDrift():
				fmt.Printf("%s: DRIFT embedded=%s sidecar=%s calculated=%s\n",
					path, d.Embedded, d.Sidecar, d.Calculated)
				drifted++
			case !d.IsCorrect():
				fmt.Printf("%s: STALE calculated=%s\n", path, d.Calculated)
				drifted++
			default:
				fmt.Printf("%s: ok\n", path)
			}
		}
	}

	if drifted > 0 && !recalculate && source == "" {
		return fmt.Errorf("%d file(s) with checksum issues", drifted)
	}
	return nil
}

func graphAction(_ context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	v := visualize.New()
	if scanDir := cmd.String("scan"); scanDir != "" {
		res, err := v.ScanDirectory(scanDir)
		if err != nil {
			return err
		}
		for _, skipped := range res.Skipped {
			fmt.Fprintf(os.Stderr, "skipped %s\n", skipped)
		}
	} else {
		mgr, err := openVault(cfg)
		if err != nil {
			return err
		}
		// No scan directory: render the registered lineage, enriched
		// by sidecars when they exist.
		for id, entry := range mgr.Manifest().Artifacts {
			sidePath := filepath.Join(mgr.Root(), entry.FilePath) + sidecar.Suffix
			if err := v.ParseSidecar(sidePath); err == nil {
				continue
			}
			n := v.Graph().AddNode(id)
			n.SetMetadata("checksum", mgr.Manifest().Checksums[id])
			if chain, ok := mgr.Chain(id); ok && chain.Predecessor != "" {
				v.Graph().AddEdge(chain.Predecessor, id)
			}
		}
	}

	var out []byte
	switch format := cmd.String("format"); format {
	case "dot", "":
		out = []byte(visualize.RenderDOT(v.Graph()))
	case "svg":
		out, err = v.SVG()
		if err != nil {
			return err
		}
	case "html":
		out, err = v.HTML()
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("graph: format %q: %w", format, apperr.ErrFormat)
	}

	if path := cmd.String("output"); path != "" {
		if err := visualize.WriteFile(path, out); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", path)
		return nil
	}
	_, _ = os.Stdout.Write(out)
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:  "othala",
		Usage: "Artifact vault with checksum integrity tracking and lineage visualization",
		Commands: []*cli.Command{
			{
				Name:      "register",
				Usage:     "Register an artifact in the vault",
				ArgsUsage: "<vault-id> <file-path>",
				Flags: append(commonFlags(),
					&cli.StringFlag{Name: "predecessor", Usage: "Vault id this artifact derives from"},
				),
				Action: registerAction,
			},
			{
				Name:      "verify",
				Usage:     "Verify an artifact against its recorded checksum",
				ArgsUsage: "<vault-id>",
				Flags:     commonFlags(),
				Action:    verifyAction,
			},
			{
				Name:      "lineage",
				Usage:     "Trace the lineage chain of an artifact",
				ArgsUsage: "<vault-id>",
				Flags: append(commonFlags(),
					&cli.StringFlag{Name: "direction", Value: "backward", Usage: "backward or forward"},
				),
				Action: lineageAction,
			},
			{
				Name:   "report",
				Usage:  "Print the lineage report with cycles and broken links",
				Flags:  commonFlags(),
				Action: reportAction,
			},
			{
				Name:  "export",
				Usage: "Export the vault state with its canonical state hash",
				Flags: append(commonFlags(),
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Write to file instead of stdout"},
				),
				Action: exportAction,
			},
			{
				Name:      "checksums",
				Usage:     "Reconcile frontmatter and sidecar checksum copies",
				ArgsUsage: "[files...]",
				Flags: append(commonFlags(),
					&cli.StringFlag{Name: "source", Usage: "Propagate from this copy: frontmatter or sidecar"},
					&cli.BoolFlag{Name: "recalculate", Usage: "Recompute checksums from file content"},
					&cli.BoolFlag{Name: "dry-run", Usage: "Report what would change without writing"},
				),
				Action: checksumsAction,
			},
			{
				Name:  "graph",
				Usage: "Render the lineage graph",
				Flags: append(commonFlags(),
					&cli.StringFlag{Name: "format", Value: "dot", Usage: "dot, svg, or html"},
					&cli.StringFlag{Name: "scan", Usage: "Build the graph from sidecar files in this directory"},
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Write to file instead of stdout"},
				),
				Action: graphAction,
			},
			{
				Name:   "serve",
				Usage:  "Run the HTTP API server with the drift watcher",
				Flags:  commonFlags(),
				Action: serveAction,
			},
			{
				Name:   "mcp",
				Usage:  "Run the MCP server on stdio",
				Flags:  commonFlags(),
				Action: mcpAction,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
