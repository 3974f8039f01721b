package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/amalfiblue/amalfiResults-sub000/internal/analyze"
	"github.com/amalfiblue/amalfiResults-sub000/internal/config"
	"github.com/amalfiblue/amalfiResults-sub000/internal/database"
	"github.com/amalfiblue/amalfiResults-sub000/internal/identity"
	"github.com/amalfiblue/amalfiResults-sub000/internal/logging"
	"github.com/amalfiblue/amalfiResults-sub000/internal/pipeline"
	"github.com/amalfiblue/amalfiResults-sub000/internal/report"
	"github.com/amalfiblue/amalfiResults-sub000/internal/server"
	"github.com/amalfiblue/amalfiResults-sub000/internal/tally"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "amalfi",
	Short:   "Tally sheet extraction and swing tracking",
	Long:    "amalfi turns photographed tally sheets into booth results, queues them for review, and tracks swings against the previous election.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading .env: %w", err)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			logging.Bootstrap("info", verbose)
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		logging.Bootstrap(cfg.Logging.Level, verbose)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(resultsCmd)
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(tcpCmd)
	rootCmd.AddCommand(reportCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("amalfi", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/amalfi/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to set the electorate, analysis provider and feed URLs.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Electorate: %s\n\n", cfg.Election.Electorate)
		fmt.Println("Results:")
		fmt.Printf("  Total: %d\n", stats.Results)
		fmt.Printf("  Reviewed: %d\n", stats.ReviewedResults)
		fmt.Printf("  Pending review: %d\n", stats.PendingResults)
		fmt.Printf("  Electorates: %d\n", stats.Electorates)
		fmt.Println("\nReference data:")
		fmt.Printf("  TCP assignments: %d\n", stats.TCPAssignments)
		fmt.Printf("  Candidates: %d\n", stats.Candidates)
		fmt.Printf("  Polling places: %d\n", stats.PollingPlaces)
		fmt.Printf("  Historical booths: %d\n", stats.HistoricalBooths)
		return nil
	},
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the review web server and JSON API",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if cmd.Flags().Changed("port") {
			cfg.Server.Port = servePort
		}
		fmt.Printf("Starting server at http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(cfg, pipeline.New(cfg, db), db)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

// --- ingest command ---

var ingestCmd = &cobra.Command{
	Use:   "ingest [image...]",
	Short: "Analyze tally sheet images and store the extracted results",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		pipe := pipeline.New(cfg, db)
		ctx := context.Background()
		failed := 0
		for i, path := range args {
			fmt.Printf("\nSheet %d/%d: %s\n", i+1, len(args), path)
			image, err := os.ReadFile(path)
			if err != nil {
				fmt.Printf("  Error: %v\n", err)
				failed++
				continue
			}
			res, err := pipe.Ingest(ctx, image, filepath.Base(path))
			if err != nil {
				fmt.Printf("  Error: %v\n", err)
				failed++
				continue
			}
			printIngest(res)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d sheets failed", failed, len(args))
		}
		return nil
	},
}

// --- extract command ---

var (
	extractBooth string
	extractSave  bool
)

var extractCmd = &cobra.Command{
	Use:   "extract [cells.json]",
	Short: "Extract a record from saved table cells without calling the analysis service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		analysis, err := analyze.LoadCells(f)
		if err != nil {
			return err
		}
		if extractBooth != "" {
			analysis.Label = extractBooth
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()
		pipe := pipeline.New(cfg, db)

		if extractSave {
			res, err := pipe.IngestCells(analysis.Cells, analysis.Label, nil)
			if err != nil {
				return err
			}
			printIngest(res)
			return nil
		}

		tc, err := pipe.TallyConfig(cfg.Election.Electorate)
		if err != nil {
			return err
		}
		ex, err := tally.Extract(analysis.Cells, analysis.Label, tc)
		if err != nil {
			return err
		}
		return printJSON(ex)
	},
}

func init() {
	extractCmd.Flags().StringVar(&extractBooth, "booth", "", "Booth name, overriding any label in the file")
	extractCmd.Flags().BoolVar(&extractSave, "save", false, "Store the extracted result")
}

// --- refresh command ---

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Download candidate, polling place and historical result feeds",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		result := pipeline.New(cfg, db).Refresh(context.Background())
		for i, step := range result.Steps {
			fmt.Printf("\nStep %d/%d: %s\n", i+1, len(result.Steps), step.Name)
			if step.Err != nil {
				fmt.Printf("  Error: %v\n", step.Err)
			} else {
				fmt.Printf("  %s\n", step.Summary)
			}
		}
		if result.Failed() {
			return errors.New("one or more feeds failed")
		}
		return nil
	},
}

// --- results command ---

var resultsElectorate string

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "List stored booth results",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		var results []database.Result
		if resultsElectorate != "" {
			results, err = db.GetResultsForElectorate(resultsElectorate)
		} else {
			results, err = db.GetAllResults()
		}
		if err != nil {
			return err
		}

		if len(results) == 0 {
			fmt.Println("No results stored. Add one with: amalfi ingest <image>")
			return nil
		}

		for _, r := range results {
			status := "pending"
			if r.IsReviewed {
				status = "reviewed by " + deref(r.Reviewer)
			}
			fmt.Printf("  [%d] %s / %s (%s)\n", r.ID, r.Electorate, r.BoothName, status)
			if len(r.Warnings) > 0 {
				fmt.Printf("        %d extraction warning(s)\n", len(r.Warnings))
			}
		}
		return nil
	},
}

var resultsDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a result and its uploaded image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid result ID: %s", args[0])
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := pipeline.New(cfg, db).Delete(id); err != nil {
			return err
		}
		fmt.Printf("Deleted result [%d]\n", id)
		return nil
	},
}

func init() {
	resultsCmd.Flags().StringVarP(&resultsElectorate, "electorate", "e", "", "Only list one electorate")
	resultsCmd.AddCommand(resultsDeleteCmd)
}

// --- review command ---

var (
	reviewer   string
	reviewFile string
)

var reviewCmd = &cobra.Command{
	Use:   "review [id]",
	Short: "Approve a result, optionally replacing its data with a corrected record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid result ID: %s", args[0])
		}
		if reviewer == "" {
			return errors.New("--reviewer is required")
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		result, err := db.GetResult(id)
		if err != nil {
			return err
		}
		if result == nil {
			return fmt.Errorf("result %d: %w", id, database.ErrNotFound)
		}

		rec := result.Data
		if reviewFile != "" {
			data, err := os.ReadFile(reviewFile)
			if err != nil {
				return err
			}
			if err := json.Unmarshal(data, &rec); err != nil {
				return fmt.Errorf("parsing %s: %w", reviewFile, err)
			}
		}
		if err := rec.Validate(); err != nil {
			return err
		}
		if err := db.ReviewResult(id, &rec, reviewer); err != nil {
			return err
		}
		fmt.Printf("Reviewed result [%d]: %s / %s\n", id, rec.Electorate, rec.BoothName)
		return nil
	},
}

func init() {
	reviewCmd.Flags().StringVarP(&reviewer, "reviewer", "r", os.Getenv("USER"), "Reviewer name")
	reviewCmd.Flags().StringVarP(&reviewFile, "file", "f", "", "Corrected record JSON")
}

// --- tcp command ---

var tcpElectorate string

var tcpCmd = &cobra.Command{
	Use:   "tcp",
	Short: "Manage an electorate's two TCP candidates",
}

var tcpSetCmd = &cobra.Command{
	Use:   "set [candidate 1] [candidate 2]",
	Short: `Assign the TCP candidates, e.g. "KAPTERIAN (Liberal)" "BOELE"`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		electorate := electorateFlag(tcpElectorate)
		assignments, err := pipeline.New(cfg, db).SetTCP(electorate, [2]string{args[0], args[1]})
		if err != nil {
			return err
		}
		fmt.Printf("TCP candidates for %s:\n", electorate)
		for _, a := range assignments {
			fmt.Printf("  %d. %s\n", a.Position, a.Label())
		}
		return nil
	},
}

var tcpShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the TCP candidates",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		electorate := electorateFlag(tcpElectorate)
		assignments, err := db.GetTCPCandidates(electorate)
		if err != nil {
			return err
		}
		if len(assignments) == 0 {
			labels := identity.TCPLabels(nil, cfg.FallbackTCPLabels())
			fmt.Printf("No TCP candidates set for %s; using %q and %q.\n", electorate, labels[0], labels[1])
			return nil
		}
		fmt.Printf("TCP candidates for %s:\n", electorate)
		for _, a := range assignments {
			fmt.Printf("  %d. %s\n", a.Position, a.Label())
		}
		return nil
	},
}

func init() {
	tcpCmd.PersistentFlags().StringVarP(&tcpElectorate, "electorate", "e", "", "Electorate (defaults to election.electorate)")
	tcpCmd.AddCommand(tcpSetCmd)
	tcpCmd.AddCommand(tcpShowCmd)
}

// --- report command ---

var (
	reportReviewed bool
	reportOutput   string
)

var reportCmd = &cobra.Command{
	Use:   "report [division]",
	Short: "Print a markdown division summary with swings",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		division := cfg.Election.Electorate
		if len(args) == 1 {
			division = args[0]
		}
		summary, err := pipeline.New(cfg, db).Summary(division, reportReviewed)
		if err != nil {
			return err
		}

		md := report.Markdown(summary)
		if reportOutput == "" {
			fmt.Println(md)
			return nil
		}
		if err := os.WriteFile(reportOutput, []byte(md+"\n"), 0o644); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
		fmt.Printf("Report written to %s\n", reportOutput)
		return nil
	},
}

func init() {
	reportCmd.Flags().BoolVar(&reportReviewed, "reviewed", false, "Only count reviewed results")
	reportCmd.Flags().StringVarP(&reportOutput, "output", "o", "", "Write the report to a file")
}

func printIngest(res *pipeline.IngestResult) {
	action := "Updated"
	if res.Created {
		action = "Stored"
	}
	rec := res.Extraction.Record
	fmt.Printf("  %s result [%d]: %s / %s\n", action, res.ResultID, rec.Electorate, rec.BoothName)
	fmt.Printf("  Candidates: %d\n", len(rec.Candidates))
	for _, w := range res.Extraction.Warnings {
		fmt.Printf("  Warning (%s): %s\n", w.Kind, w.Message)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func electorateFlag(v string) string {
	if v != "" {
		return v
	}
	return cfg.Election.Electorate
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "amalfi.db")
	return database.Open(dbPath)
}
