package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/amishk599/jobsieve/internal/config"
	"github.com/amishk599/jobsieve/internal/model"
	"github.com/amishk599/jobsieve/internal/tui"
)

var (
	ingestSource    string
	ingestUser      string
	ingestBatchSize int
	ingestTUI       bool

	searchSource   string
	searchKeywords string
	searchLocation string
	searchSchedule string
	searchUser     string
	searchTUI      bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Import alert messages from files as a background job",
	Long: "Reads messages from YAML or JSON files (a list of {source, body, received_at}) " +
		"or, with --source, treats each other file as one message body, then runs an ingest job.",
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Run a live search job through the access gate",
	Long:  "Runs one query (--source/--keywords/--location) or the queries of a configured schedule (--schedule).",
	RunE:  runSearch,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestSource, "source", "", "source of plain-text message files (linkedin, indeed, glassdoor, generic)")
	ingestCmd.Flags().StringVar(&ingestUser, "user", "", "user to ingest for (default: pipeline.user_id)")
	ingestCmd.Flags().IntVar(&ingestBatchSize, "batch-size", 0, "messages per step (default: pipeline.batch_size)")
	ingestCmd.Flags().BoolVar(&ingestTUI, "tui", false, "show the interactive progress view")
	rootCmd.AddCommand(ingestCmd)

	searchCmd.Flags().StringVar(&searchSource, "source", "", "source to search")
	searchCmd.Flags().StringVar(&searchKeywords, "keywords", "", "search keywords")
	searchCmd.Flags().StringVar(&searchLocation, "location", "", "search location")
	searchCmd.Flags().StringVar(&searchSchedule, "schedule", "", "run the queries of this configured schedule")
	searchCmd.Flags().StringVar(&searchUser, "user", "", "user to search for (default: pipeline.user_id)")
	searchCmd.Flags().BoolVar(&searchTUI, "tui", false, "show the interactive progress view")
	rootCmd.AddCommand(searchCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	var msgs []model.RawMessage
	for _, path := range args {
		m, err := readMessages(path, ingestSource)
		if err != nil {
			return err
		}
		msgs = append(msgs, m...)
	}

	cfg, logger := mustLoad()
	spec := &model.JobSpec{
		Name:      "ingest " + strings.Join(baseNames(args), ","),
		Kind:      model.JobIngest,
		UserID:    firstNonEmpty(ingestUser, cfg.Pipeline.UserID),
		Messages:  msgs,
		BatchSize: ingestBatchSize,
	}
	return runJob(cfg, logger, spec, ingestTUI)
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, logger := mustLoad()

	spec := &model.JobSpec{
		Name:   "search",
		Kind:   model.JobSearch,
		UserID: firstNonEmpty(searchUser, cfg.Pipeline.UserID),
	}
	switch {
	case searchSchedule != "":
		found := false
		for _, s := range cfg.Schedules {
			if s.Name == searchSchedule {
				spec.Name = s.Name
				spec.Queries = s.Queries
				if searchUser == "" {
					spec.UserID = s.UserID
				}
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("no schedule named %q in config", searchSchedule)
		}
	case searchSource != "":
		src, ok := model.ParseSourceKind(searchSource)
		if !ok {
			return fmt.Errorf("unknown source %q", searchSource)
		}
		spec.Queries = []model.SearchQuery{{Source: src, Keywords: searchKeywords, Location: searchLocation}}
	default:
		return errors.New("either --source or --schedule is required")
	}
	return runJob(cfg, logger, spec, searchTUI)
}

// runJob submits spec, runs it to the end and prints the outcome. Ctrl-C
// stops the job.
func runJob(cfg *config.Config, logger *slog.Logger, spec *model.JobSpec, withTUI bool) error {
	if withTUI {
		// Log lines would corrupt the alt-screen.
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	defer a.shutdownJobs()

	if _, err := a.driver.Plan(spec); err != nil {
		return err
	}
	id, err := a.jobs.Submit(spec)
	if err != nil {
		return err
	}

	var result *model.JobResult
	var jobErr error
	_ = a.jobs.OnCompletion(id, func(r model.JobResult) { result = &r })
	_ = a.jobs.OnError(id, func(err error) { jobErr = err })

	if withTUI {
		events, cancel, err := a.jobs.Subscribe(id)
		if err != nil {
			return err
		}
		defer cancel()
		if err := a.jobs.Start(id); err != nil {
			return err
		}
		snap, err := tui.RunJobView(a.jobs, id, events)
		if err != nil {
			return err
		}
		if !snap.State.Terminal() {
			_ = a.jobs.Stop(id)
		}
	} else {
		_ = a.jobs.OnProgress(id, func(p model.ExecutionProgress) {
			if p.StepError != "" {
				fmt.Printf("[%d/%d] %s: %s\n", p.CurrentStep, p.TotalSteps, p.StepName, p.StepError)
				return
			}
			fmt.Printf("[%d/%d] %s: %d found so far\n", p.CurrentStep, p.TotalSteps, p.StepName, p.ResultsFound)
		})
		if err := a.jobs.Start(id); err != nil {
			return err
		}
		go func() {
			<-ctx.Done()
			_ = a.jobs.Stop(id)
		}()
	}

	waitCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout+time.Minute)
	defer cancel()
	state, err := a.jobs.Wait(waitCtx, id)
	if err != nil {
		return err
	}

	switch state {
	case model.JobCompleted:
		if result != nil {
			printSummary(result)
		}
		return nil
	case model.JobFailed:
		return fmt.Errorf("job failed: %w", jobErr)
	default:
		fmt.Printf("job %s\n", state)
		return nil
	}
}

func printSummary(r *model.JobResult) {
	s := r.Summary
	fmt.Printf("\n%-18s %d\n", "Steps completed", r.CompletedSteps)
	fmt.Printf("%-18s %d\n", "Steps failed", r.FailedSteps)
	fmt.Println(strings.Repeat("─", 24))
	fmt.Printf("%-18s %d\n", "Processed", s.Processed)
	fmt.Printf("%-18s %d\n", "Found", s.Found)
	fmt.Printf("%-18s %d\n", "Added", s.Added)
	fmt.Printf("%-18s %d\n", "Below threshold", s.BelowThreshold)
	fmt.Printf("%-18s %d\n", "Duplicates", s.Duplicates)
	fmt.Printf("%-18s %d\n", "Skipped", s.Skipped)
	fmt.Printf("%-18s %d\n", "Failed", s.Failed)
}

// readMessages loads the messages of one file. YAML and JSON files hold a
// list of messages; any other file is one message body from source.
func readMessages(path, source string) ([]model.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var msgs []model.RawMessage
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &msgs); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &msgs); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		return readBody(path, source, data)
	}
	for i := range msgs {
		if msgs[i].ReceivedAt.IsZero() {
			msgs[i].ReceivedAt = time.Now().UTC()
		}
	}
	return msgs, nil
}

func readBody(path, source string, data []byte) ([]model.RawMessage, error) {
	if source == "" {
		return nil, fmt.Errorf("%s: --source is required for plain-text message files", path)
	}
	src, ok := model.ParseSourceKind(source)
	if !ok {
		return nil, fmt.Errorf("unknown source %q", source)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	return []model.RawMessage{{Source: src, Body: string(data), ReceivedAt: info.ModTime().UTC()}}, nil
}

func baseNames(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = filepath.Base(p)
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
