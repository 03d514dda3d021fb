// Package main provides the CLI entrypoint for neotype.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/verte-zerg/neotype/internal/config"
	"github.com/verte-zerg/neotype/internal/engine"
	"github.com/verte-zerg/neotype/internal/gateway"
	"github.com/verte-zerg/neotype/internal/generator"
	"github.com/verte-zerg/neotype/internal/leaderboard"
	"github.com/verte-zerg/neotype/internal/model"
	"github.com/verte-zerg/neotype/internal/replay"
	"github.com/verte-zerg/neotype/internal/stats"
	"github.com/verte-zerg/neotype/internal/statsui"
	"github.com/verte-zerg/neotype/internal/store"
	"github.com/verte-zerg/neotype/internal/telemetry"
	"github.com/verte-zerg/neotype/internal/tui"
)

const (
	defaultCurveWindow = 10
	flushTimeout       = 5 * time.Second
)

var (
	practiceDuration    int
	practiceDifficulty  string
	practiceGateway     string
	practiceOffline     bool
	practiceWordListDir string
	practiceRapidMs     int

	statsDuration    int
	statsSince       string
	statsLast        int
	statsCurveWindow int
	statsPlain       bool
	statsSession     string

	boardDuration int
	boardWatch    time.Duration

	replayJSON bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	rootCmd := newRootCmd()
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	defaults := config.Defaults()
	rootCmd := &cobra.Command{
		Use:           "neotype",
		Short:         "Timed typing tests in the terminal",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runPracticeCmd,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&practiceGateway, "gateway", "", "backend base URL")
	flags.BoolVar(&practiceOffline, "offline", defaults.Offline, "never contact the backend")
	flags.StringVar(&practiceWordListDir, "wordlist-dir", defaults.WordListDir, "directory with <difficulty>.txt word lists")
	flags.IntVar(&practiceRapidMs, "rapid-ms", defaults.RapidMs, "flag keystrokes closer together than this many milliseconds")

	rootCmd.Flags().IntVar(&practiceDuration, "duration", defaults.Duration, "test length in seconds")
	rootCmd.Flags().StringVar(&practiceDifficulty, "difficulty", string(defaults.Difficulty), "easy, medium or hard")

	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newStatsCmd())
	rootCmd.AddCommand(newLeaderboardCmd())
	rootCmd.AddCommand(newReplayCmd())

	return rootCmd
}

// loadSettings resolves defaults, then the config file, then the shared
// flags the user actually set.
func loadSettings(cmd *cobra.Command) (config.Settings, error) {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return config.Settings{}, fmt.Errorf("failed to load config: %w", err)
	}
	s, err := fileCfg.Apply(config.Defaults())
	if err != nil {
		return config.Settings{}, fmt.Errorf("invalid config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("gateway") {
		s.GatewayURL = practiceGateway
		s.Offline = practiceGateway == ""
	}
	if flags.Changed("offline") {
		s.Offline = practiceOffline
	}
	if flags.Changed("wordlist-dir") {
		s.WordListDir = practiceWordListDir
	}
	if flags.Changed("rapid-ms") {
		if practiceRapidMs <= 0 {
			return config.Settings{}, fmt.Errorf("--rapid-ms must be > 0")
		}
		s.RapidMs = practiceRapidMs
	}
	return s, nil
}

// backend bundles the gateway with the optional upload and leaderboard
// sides, which only exist when online.
type backend struct {
	gateway  gateway.Gateway
	uploader telemetry.Uploader
	board    gateway.LeaderboardSource
}

func newBackend(s config.Settings, logger *slog.Logger) (backend, error) {
	if s.Offline || s.GatewayURL == "" {
		local := gateway.NewLocal(generator.New(), s.WordListDir)
		return backend{gateway: local}, nil
	}
	h, err := gateway.NewHTTP(s.GatewayURL, s.GatewayTimeout, logger)
	if err != nil {
		return backend{}, fmt.Errorf("failed to create gateway: %w", err)
	}
	return backend{gateway: h, uploader: h, board: h}, nil
}

func openLogger(path string) (*slog.Logger, func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelInfo}))
	return logger, func() {
		if cerr := f.Close(); cerr != nil {
			logErrf("failed to close log: %v\n", cerr)
		}
	}, nil
}

func openStore() (*store.Store, func(), error) {
	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open db: %w", err)
	}
	return st, func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}, nil
}

// sessionRecorder saves finalized sessions locally and queues confirmed
// ones for upload. The spool mirrors the queue after every enqueue.
type sessionRecorder struct {
	store  *store.Store
	keep   int
	queue  *telemetry.Queue
	logger *slog.Logger
}

func (r *sessionRecorder) Record(ctx context.Context, p model.Payload) (model.Aggregate, bool, error) {
	agg, newBest, err := r.store.RecordSession(ctx, p, r.keep)
	if err != nil {
		return model.Aggregate{}, false, err
	}
	if r.queue != nil && p.ServerConfirmed {
		if _, err := r.queue.Enqueue(ctx, p); err != nil {
			r.logger.Warn("telemetry flush failed", "error", err)
		}
		if err := r.store.SpoolTelemetry(ctx, r.queue.Pending()); err != nil {
			r.logger.Error("failed to spool telemetry", "error", err)
		}
	}
	return agg, newBest, nil
}

func runPracticeCmd(cmd *cobra.Command, _ []string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("duration") {
		if practiceDuration <= 0 {
			return fmt.Errorf("--duration must be > 0")
		}
		s.Duration = practiceDuration
	}
	if cmd.Flags().Changed("difficulty") {
		if s.Difficulty, err = model.ParseDifficulty(practiceDifficulty); err != nil {
			return err
		}
	}
	logger, closeLog, err := openLogger(config.DefaultLogPath())
	if err != nil {
		return err
	}
	defer closeLog()

	st, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	be, err := newBackend(s, logger)
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	var queue *telemetry.Queue
	if be.uploader != nil {
		queue = telemetry.New(be.uploader, nil, logger, telemetry.Options{
			BatchSize:     s.BatchSize,
			FlushInterval: s.FlushInterval,
			TTL:           s.TelemetryTTL,
		})
		spooled, err := st.LoadTelemetry(ctx)
		if err != nil {
			logger.Warn("failed to load spooled telemetry", "error", err)
		}
		queue.Restore(spooled)
		defer flushTelemetry(queue, st, logger)
	}

	agg, err := st.Aggregate(ctx)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	work := engine.NewWorkQueue(ctx)
	machine := engine.New(engine.Options{
		Gateway:        be.gateway,
		Dispatcher:     work,
		Logger:         logger,
		RapidThreshold: time.Duration(s.RapidMs) * time.Millisecond,
		ProgressEvery:  s.ProgressEvery,
	})
	m := tui.NewModel(tui.Options{
		Engine:     machine,
		Queue:      work,
		Recorder:   &sessionRecorder{store: st, keep: s.HistoryLimit, queue: queue, logger: logger},
		Logger:     logger,
		Duration:   s.Duration,
		Difficulty: s.Difficulty,
		Aggregate:  agg,
	})
	program := tea.NewProgram(m, tea.WithAltScreen(), tea.WithReportFocus())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}
	return nil
}

// flushTelemetry sends what is queued and spools anything left for the
// next run.
func flushTelemetry(queue *telemetry.Queue, st *store.Store, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := queue.Flush(ctx); err != nil {
		logger.Info("telemetry not delivered, spooling", "entries", queue.Len(), "error", err)
	}
	if err := st.SpoolTelemetry(ctx, queue.Pending()); err != nil {
		logger.Error("failed to spool telemetry", "error", err)
	}
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(config.Template), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show local history",
		Args:  cobra.NoArgs,
		RunE:  runStatsCmd,
	}
	cmd.Flags().IntVar(&statsDuration, "duration", 0, "only tests of this length in seconds")
	cmd.Flags().StringVar(&statsSince, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&statsLast, "last", 0, "limit to last N sessions")
	cmd.Flags().IntVar(&statsCurveWindow, "curve-window", defaultCurveWindow, "moving average window")
	cmd.Flags().BoolVar(&statsPlain, "plain", false, "print text instead of the interactive view")
	cmd.Flags().StringVar(&statsSession, "session", "", "show the anti-cheat log of the session with this id prefix")
	return cmd
}

func runStatsCmd(cmd *cobra.Command, _ []string) error {
	var sinceTime *time.Time
	if statsSince != "" {
		parsed, err := time.ParseInLocation("2006-01-02", statsSince, time.Local)
		if err != nil {
			return fmt.Errorf("invalid --since value: %w", err)
		}
		sinceTime = &parsed
	}
	cfg := model.StatsConfig{
		Duration:    statsDuration,
		Since:       sinceTime,
		Last:        statsLast,
		CurveWindow: statsCurveWindow,
	}

	st, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	if statsSession != "" {
		return printSession(cmd.Context(), cmd.OutOrStdout(), st, statsSession)
	}

	fd := int(os.Stdout.Fd())
	if !statsPlain && term.IsTerminal(fd) {
		program := tea.NewProgram(statsui.NewModel(st, cfg), tea.WithAltScreen())
		if _, err := program.Run(); err != nil {
			return fmt.Errorf("failed to run stats TUI: %w", err)
		}
		return nil
	}

	report, err := stats.BuildReport(cmd.Context(), st, cfg)
	if err != nil {
		return fmt.Errorf("failed to build report: %w", err)
	}
	width := 60
	if w, _, err := term.GetSize(fd); err == nil && w > 20 {
		width = w - 10
	}
	out := cmd.OutOrStdout()
	if err := stats.RenderSummary(out, report.Sessions, report.Aggregate); err != nil {
		return err
	}
	if err := stats.RenderCurves(out, report.Sessions, cfg.CurveWindow, width); err != nil {
		return err
	}
	return stats.RenderHistory(out, report.Sessions, 20)
}

func printSession(ctx context.Context, w io.Writer, st *store.Store, prefix string) error {
	rec, err := st.FindSession(ctx, prefix)
	if err != nil {
		return err
	}
	events, err := st.SuspiciousEvents(ctx, rec.LocalID)
	if err != nil {
		return fmt.Errorf("failed to load suspicious events: %w", err)
	}
	best, hasBest, err := st.BestWPM(ctx, rec.Duration)
	if err != nil {
		return fmt.Errorf("failed to load best: %w", err)
	}

	lines := []string{
		fmt.Sprintf("Session %s", rec.LocalID),
		fmt.Sprintf("Ended: %s  Time: %ds  Level: %s", rec.EndedAt.Local().Format("2006-01-02 15:04"), rec.Duration, rec.Difficulty),
		fmt.Sprintf("WPM: %.0f  Accuracy: %.1f%%", rec.WPM, rec.Accuracy),
	}
	if hasBest {
		lines = append(lines, fmt.Sprintf("Best WPM (%ds): %.0f", rec.Duration, best))
	}
	lines = append(lines, "")
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return printSuspicious(w, events)
}

func newLeaderboardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Show the top results for a duration",
		Args:  cobra.NoArgs,
		RunE:  runLeaderboardCmd,
	}
	cmd.Flags().IntVar(&boardDuration, "duration", config.Defaults().Duration, "test length in seconds")
	cmd.Flags().DurationVar(&boardWatch, "watch", 0, "refresh at this interval until interrupted")
	return cmd
}

func runLeaderboardCmd(cmd *cobra.Command, _ []string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	be, err := newBackend(s, logger)
	if err != nil {
		return err
	}
	if be.board == nil {
		return fmt.Errorf("leaderboard needs a backend: set --gateway or gateway.url")
	}
	svc := leaderboard.New(be.board, s.LeaderboardTTL, nil, logger)
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if boardWatch <= 0 {
		return printLeaderboard(ctx, out, svc, boardDuration)
	}
	go svc.RefreshEvery(ctx, boardWatch)
	ticker := time.NewTicker(boardWatch)
	defer ticker.Stop()
	for {
		if err := printLeaderboard(ctx, out, svc, boardDuration); err != nil {
			logErrf("%v\n", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func printLeaderboard(ctx context.Context, w io.Writer, svc *leaderboard.Service, duration int) error {
	rows, err := svc.Top(ctx, duration)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		_, err := fmt.Fprintf(w, "No results for %ds yet.\n", duration)
		return err
	}
	table := make([][]string, len(rows))
	for i, r := range rows {
		table[i] = []string{
			fmt.Sprintf("%d", i+1),
			r.Username,
			fmt.Sprintf("%.0f", r.WPM),
			fmt.Sprintf("%.1f%%", r.Accuracy),
			fmt.Sprintf("%.2f", r.Score),
		}
	}
	headers := []string{"#", "User", "WPM", "Accuracy", "Score"}
	for _, line := range stats.FormatTable(headers, table, map[int]bool{0: true, 2: true, 3: true, 4: true}) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <script.yaml>",
		Short: "Run a recorded attempt through the engine",
		Args:  cobra.ExactArgs(1),
		RunE:  runReplayCmd,
	}
	cmd.Flags().BoolVar(&replayJSON, "json", false, "print the finalized payload as JSON")
	return cmd
}

func runReplayCmd(cmd *cobra.Command, args []string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	script, err := replay.Load(args[0])
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	be, err := newBackend(s, logger)
	if err != nil {
		return err
	}
	res, err := replay.Run(cmd.Context(), script, be.gateway, replay.Options{
		RapidThreshold: time.Duration(s.RapidMs) * time.Millisecond,
		ProgressEvery:  s.ProgressEvery,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if replayJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res.Payload)
	}
	return printReplay(out, res)
}

func printReplay(w io.Writer, res replay.Result) error {
	p := res.Payload
	lines := []string{
		fmt.Sprintf("State: %s", res.State),
		fmt.Sprintf("WPM: %.2f  Accuracy: %.2f%%  Time: %.2fs", p.Result.WPM, p.Result.Accuracy, p.ElapsedSeconds),
		fmt.Sprintf("Chars: %d correct, %d incorrect", p.Result.CorrectChars, p.Result.IncorrectChars),
		fmt.Sprintf("Keystrokes: %d  Focus lost: %d  Confirmed: %t", len(p.Keystrokes), p.FocusLostCount, p.ServerConfirmed),
		"",
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return printSuspicious(w, p.Suspicious)
}

func printSuspicious(w io.Writer, events []model.SuspiciousEvent) error {
	if len(events) == 0 {
		_, err := fmt.Fprintln(w, "No suspicious events.")
		return err
	}
	rows := make([][]string, len(events))
	for i, e := range events {
		rows[i] = []string{fmt.Sprintf("%d", e.TimestampMs), string(e.Kind), formatMetadata(e.Metadata)}
	}
	for _, line := range stats.FormatTable([]string{"At (ms)", "Kind", "Data"}, rows, map[int]bool{0: true}) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func formatMetadata(data map[string]any) string {
	if len(data) == 0 {
		return ""
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(raw)
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
