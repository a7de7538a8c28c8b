package main

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/zj00777/feishu-power-skill/internal/bitable"
	"github.com/zj00777/feishu-power-skill/internal/config"
	"github.com/zj00777/feishu-power-skill/internal/docflow"
	"github.com/zj00777/feishu-power-skill/internal/eval/cel"
	"github.com/zj00777/feishu-power-skill/internal/eval/handlebars"
	"github.com/zj00777/feishu-power-skill/internal/schedule"
)

var (
	scheduleFile  string
	scheduleForce string
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run scheduled report jobs",
	Long: `Jobs are declared in a YAML schedule file (SCHEDULE_FILE, or --file).
Run state is kept in the STATE_BACKEND store so that each job runs once per
period. Call "powerctl schedule run" from cron, or run report-worker.`,
}

var scheduleRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every due job, or one job with --force",
	RunE: func(cmd *cobra.Command, args []string) error {
		runner, closeRunner, err := newRunner()
		if err != nil {
			return err
		}
		defer closeRunner()

		results, err := runner.RunDue(cmd.Context(), scheduleForce)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		return printResult(w, results, func() {
			if len(results) == 0 {
				fmt.Fprintln(w, "ℹ️  没有到期的任务")
				return
			}
			for _, r := range results {
				if r.Status == schedule.StatusSuccess {
					fmt.Fprintf(w, "✅ %s (%s) %.1fs\n", r.JobID, r.Type, r.Elapsed)
				} else {
					fmt.Fprintf(w, "❌ %s (%s) %.1fs: %s\n", r.JobID, r.Type, r.Elapsed, r.Error)
				}
			}
		})
	},
}

var scheduleListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"status"},
	Short:   "List jobs with their last run and whether they are due",
	RunE: func(cmd *cobra.Command, args []string) error {
		runner, closeRunner, err := newRunner()
		if err != nil {
			return err
		}
		defer closeRunner()

		statuses, err := runner.Status(cmd.Context())
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		return printResult(w, statuses, func() {
			for _, s := range statuses {
				mark := "✓"
				if !s.Job.IsEnabled() {
					mark = "⏸"
				} else if s.Due {
					mark = "⏰"
				}
				last := s.State.LastRun
				if last == "" {
					last = "从未运行"
				} else if s.State.LastStatus != "" {
					last += " " + s.State.LastStatus
				}
				fmt.Fprintf(w, "%s %s\t%s\t%s\t%s\n", mark, s.Job.ID, s.Job.TypeOrDefault(), describe(s.Job.Schedule), last)
			}
		})
	},
}

var scheduleCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate a schedule file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := schedulePath()
		if err != nil {
			return err
		}
		jobs, err := schedule.Load(path)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		return printResult(w, jobs, func() {
			fmt.Fprintf(w, "✅ %s: %d 个任务\n", path, len(jobs))
		})
	},
}

func describe(s schedule.Spec) string {
	switch f := s.FrequencyOrDefault(); f {
	case schedule.Cron:
		return "cron " + s.Cron
	case schedule.Hourly:
		if s.IntervalHours > 0 {
			return fmt.Sprintf("every %gh", s.IntervalHours)
		}
		return f
	case schedule.Weekly:
		return fmt.Sprintf("weekly %d %s", s.DayOfWeek, s.Time)
	case schedule.Monthly:
		return fmt.Sprintf("monthly %d %s", s.DayOfMonth, s.Time)
	default:
		return f + " " + s.Time
	}
}

func schedulePath() (string, error) {
	if scheduleFile != "" {
		return scheduleFile, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return "", err
	}
	if cfg.ScheduleFile == "" {
		return "schedule.yaml", nil
	}
	return cfg.ScheduleFile, nil
}

// newRunner builds a runner with the default executors over the configured
// state backend. The returned func releases the backend.
func newRunner() (*schedule.Runner, func(), error) {
	e, err := loadEnv()
	if err != nil {
		return nil, nil, err
	}
	path, err := schedulePath()
	if err != nil {
		return nil, nil, err
	}
	if _, err := schedule.Load(path); err != nil {
		return nil, nil, err
	}

	store, closeStore, err := openStateStore(e.cfg)
	if err != nil {
		return nil, nil, err
	}

	deps := schedule.Deps{
		Evaluator:    cel.NewEvaluator(),
		Patterns:     handlebars.NewEngine(),
		TemplatesDir: e.cfg.TemplatesDir,
		ConfigsDir:   e.cfg.ConfigsDir,
		ScriptsDir:   e.cfg.ScriptsDir,
		Logger:       e.logger,
	}
	if client, err := e.feishu(); err == nil {
		deps.Publisher = e.publisher(client)
		deps.Source = client
		deps.Joiner = bitable.NewEngine(client, e.logger)
	} else {
		e.logger.Warn("feishu credentials not provided, bitable and publishing jobs will fail")
	}
	deps.Generator = docflow.NewGenerator(deps.Publisher, e.logger)

	runner := schedule.NewRunner(schedule.FromFile(path), store, e.logger)
	schedule.RegisterDefaults(runner, deps)
	return runner, closeStore, nil
}

func openStateStore(cfg *config.Config) (schedule.StateStore, func(), error) {
	switch cfg.StateBackend {
	case config.StateBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return schedule.NewRedisStore(client, cfg.StateKey), func() { _ = client.Close() }, nil
	case config.StateBackendSQLite:
		store, err := schedule.NewSQLiteStore(cfg.StateDB)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return schedule.NewFileStore(cfg.StateFile), func() {}, nil
	}
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
	scheduleCmd.AddCommand(scheduleRunCmd, scheduleListCmd, scheduleCheckCmd)

	scheduleCmd.PersistentFlags().StringVarP(&scheduleFile, "file", "f", "", "Schedule file (default: SCHEDULE_FILE or schedule.yaml)")
	scheduleRunCmd.Flags().StringVar(&scheduleForce, "force", "", "Run this job now even when it is not due")
}
