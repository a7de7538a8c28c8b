// Package worker implements the report worker lifecycle and Redis Streams integration.
//
// The worker reads job requests from a Redis stream consumer group, runs them
// through the schedule runner, and publishes results back:
//
//	XADD report.work * data '{"job_id": "daily_audit"}'
//	XADD report.work * data '{"job": {"type": "audit", "params": {"use_demo": true}}}'
//
// Successful results go to the result stream (report.done) and failures to
// report.done.errors. Messages are acknowledged either way. When
// SCHEDULE_FILE is set the worker also checks the schedule every
// TICK_INTERVAL and runs due jobs.
//
// Example usage:
//
//	cfg, _ := config.Load()
//	redisClient := redis.NewClient(&redis.Options{...})
//	runner := schedule.NewRunner(schedule.FromFile(cfg.ScheduleFile), store, logger)
//	metrics := worker.NewMetrics(prometheus.DefaultRegisterer)
//
//	w := worker.NewWorker(cfg, redisClient, runner, metrics, logger)
//	if err := w.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Stop()
//
// Health checks and metrics are provided via a separate HTTP server
// (/health, /ready, /metrics):
//
//	healthServer := worker.NewHealthServer(8082, redisClient, nil, logger)
//	healthServer.Start()
//	defer healthServer.Stop()
package worker
