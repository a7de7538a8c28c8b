package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/zj00777/feishu-power-skill/internal/config"
	"github.com/zj00777/feishu-power-skill/internal/schedule"
)

const stopTimeout = 10 * time.Second

// StreamClient is the part of the Redis client the worker uses.
// *redis.Client satisfies it.
type StreamClient interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// Worker represents the report worker
type Worker struct {
	id            string
	config        *config.Config
	client        StreamClient
	runner        *schedule.Runner
	metrics       *Metrics
	logger        *zap.Logger
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	streamKey     string
	consumerGroup string
	resultStream  string
}

// NewWorker creates a new worker
func NewWorker(
	cfg *config.Config,
	client StreamClient,
	runner *schedule.Runner,
	metrics *Metrics,
	logger *zap.Logger,
) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	return &Worker{
		id:            cfg.WorkerID,
		config:        cfg,
		client:        client,
		runner:        runner,
		metrics:       metrics,
		logger:        logger,
		ctx:           ctx,
		cancel:        cancel,
		streamKey:     cfg.StreamKey,
		consumerGroup: cfg.ConsumerGroup,
		resultStream:  cfg.ResultStream,
	}
}

// Start starts the stream consumer and, when a schedule file is
// configured, the schedule ticker
func (w *Worker) Start() error {
	w.logger.Info("starting report worker",
		zap.String("worker_id", w.id),
		zap.String("stream_key", w.streamKey),
		zap.String("consumer_group", w.consumerGroup),
	)

	// Create consumer group if it doesn't exist
	if err := w.ensureConsumerGroup(); err != nil {
		return fmt.Errorf("failed to ensure consumer group: %w", err)
	}

	w.wg.Add(1)
	go w.processWork()

	if w.config.ScheduleFile != "" {
		w.wg.Add(1)
		go w.runSchedule()
	}

	w.logger.Info("report worker started", zap.String("worker_id", w.id))
	return nil
}

// Stop stops the worker and waits for in-flight work
func (w *Worker) Stop() error {
	w.logger.Info("stopping report worker", zap.String("worker_id", w.id))

	w.cancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("report worker stopped", zap.String("worker_id", w.id))
		return nil
	case <-time.After(stopTimeout):
		return fmt.Errorf("timed out waiting for in-flight work")
	}
}

// ensureConsumerGroup creates the consumer group if it doesn't exist
func (w *Worker) ensureConsumerGroup() error {
	err := w.client.XGroupCreateMkStream(w.ctx, w.streamKey, w.consumerGroup, "0").Err()
	if err != nil {
		// BUSYGROUP error means the group already exists, which is fine
		if strings.HasPrefix(err.Error(), "BUSYGROUP") {
			w.logger.Debug("consumer group already exists",
				zap.String("group", w.consumerGroup),
			)
			return nil
		}
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	w.logger.Info("created consumer group",
		zap.String("group", w.consumerGroup),
		zap.String("stream", w.streamKey),
	)
	return nil
}

// processWork processes work from the Redis stream
func (w *Worker) processWork() {
	defer w.wg.Done()
	w.logger.Info("starting work processing loop")

	for {
		select {
		case <-w.ctx.Done():
			w.logger.Info("work processing loop stopped")
			return
		default:
			streams, err := w.client.XReadGroup(w.ctx, &redis.XReadGroupArgs{
				Group:    w.consumerGroup,
				Consumer: w.id,
				Streams:  []string{w.streamKey, ">"},
				Count:    1,
				Block:    w.config.BlockTime,
			}).Result()

			if err != nil {
				if errors.Is(err, redis.Nil) || w.ctx.Err() != nil {
					continue
				}
				w.logger.Error("failed to read from stream",
					zap.Error(err),
				)
				w.sleep(time.Second)
				continue
			}

			for _, stream := range streams {
				for _, message := range stream.Messages {
					w.handleMessage(message)
				}
			}
		}
	}
}

// runSchedule checks the schedule once at start and then every tick
func (w *Worker) runSchedule() {
	defer w.wg.Done()

	interval := w.config.TickInterval
	w.logger.Info("starting schedule ticker",
		zap.String("schedule", w.config.ScheduleFile),
		zap.Duration("interval", interval),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		w.tick()
		select {
		case <-w.ctx.Done():
			w.logger.Info("schedule ticker stopped")
			return
		case <-ticker.C:
		}
	}
}

func (w *Worker) tick() {
	w.metrics.ObserveTick()

	results, err := w.runner.RunDue(w.ctx, "")
	for _, r := range results {
		w.metrics.ObserveJob(r)
	}
	if err != nil {
		w.logger.Error("schedule run failed", zap.Error(err))
		return
	}
	if len(results) > 0 {
		w.logger.Info("scheduled jobs finished", zap.Int("count", len(results)))
	}
}

// handleMessage handles a single job request message. Messages are always
// acknowledged; failures are reported on the error stream.
func (w *Worker) handleMessage(message redis.XMessage) {
	messageID := message.ID
	w.logger.Info("processing job request",
		zap.String("message_id", messageID),
	)

	request, err := w.parseJobRequest(message.Values)
	if err != nil {
		w.logger.Error("failed to parse job request",
			zap.String("message_id", messageID),
			zap.Error(err),
		)
		w.metrics.ObserveRequest(OutcomeInvalid)
		w.acknowledgeMessage(messageID)
		return
	}
	if request.RequestID == "" {
		request.RequestID = messageID
	}

	results, err := w.processJobRequest(request)
	if err != nil {
		w.logger.Error("failed to process job request",
			zap.String("message_id", messageID),
			zap.String("request_id", request.RequestID),
			zap.Error(err),
		)
		w.metrics.ObserveRequest(OutcomeFailed)
		w.publishError(request, nil, err)
		w.acknowledgeMessage(messageID)
		return
	}

	outcome := OutcomeOK
	for i := range results {
		res := &results[i]
		if res.Status == schedule.StatusError {
			outcome = OutcomeFailed
			w.publishError(request, res, errors.New(res.Error))
			continue
		}
		if err := w.publishResult(request, res); err != nil {
			w.logger.Error("failed to publish result",
				zap.String("request_id", request.RequestID),
				zap.Error(err),
			)
		}
	}
	w.metrics.ObserveRequest(outcome)

	w.acknowledgeMessage(messageID)
}

// JobRequest asks the worker to run a report job. Exactly one of JobID and
// Job is set.
type JobRequest struct {
	RequestID string `json:"request_id,omitempty"`
	// JobID forces a job from the schedule; its state is recorded
	JobID string `json:"job_id,omitempty"`
	// Job is an ad-hoc job definition
	Job *schedule.Job `json:"job,omitempty"`
}

// parseJobRequest parses a job request from a Redis message
func (w *Worker) parseJobRequest(values map[string]interface{}) (*JobRequest, error) {
	dataStr, ok := values["data"].(string)
	if !ok {
		return nil, fmt.Errorf("missing or invalid 'data' field")
	}

	var request JobRequest
	if err := json.Unmarshal([]byte(dataStr), &request); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job request: %w", err)
	}

	if (request.JobID == "") == (request.Job == nil) {
		return nil, fmt.Errorf("request must name exactly one of job_id and job")
	}
	return &request, nil
}

// processJobRequest runs the requested job
func (w *Worker) processJobRequest(request *JobRequest) ([]schedule.JobResult, error) {
	var results []schedule.JobResult

	if request.JobID != "" {
		var err error
		results, err = w.runner.RunDue(w.ctx, request.JobID)
		if err != nil {
			return nil, fmt.Errorf("failed to run job %s: %w", request.JobID, err)
		}
	} else {
		job := *request.Job
		if job.ID == "" {
			job.ID = "adhoc_" + request.RequestID
		}
		res, err := w.runner.Run(w.ctx, job)
		if err != nil {
			return nil, err
		}
		results = append(results, *res)
	}

	for _, r := range results {
		w.metrics.ObserveJob(r)
	}
	return results, nil
}

// publishResult publishes a successful job result
func (w *Worker) publishResult(request *JobRequest, result *schedule.JobResult) error {
	event := map[string]interface{}{
		"request_id": request.RequestID,
		"worker_id":  w.id,
		"result":     result,
		"timestamp":  time.Now().UTC(),
	}

	if err := w.publish(w.resultStream, event); err != nil {
		return err
	}

	w.logger.Info("published job result",
		zap.String("request_id", request.RequestID),
		zap.String("job_id", result.JobID),
	)
	return nil
}

// publishError publishes an error event
func (w *Worker) publishError(request *JobRequest, result *schedule.JobResult, err error) {
	event := map[string]interface{}{
		"request_id": request.RequestID,
		"job_id":     request.JobID,
		"worker_id":  w.id,
		"error":      err.Error(),
		"timestamp":  time.Now().UTC(),
	}
	if result != nil {
		event["job_id"] = result.JobID
		event["result"] = result
	}

	if publishErr := w.publish(w.resultStream+".errors", event); publishErr != nil {
		w.logger.Error("failed to publish error event", zap.Error(publishErr))
	}
}

func (w *Worker) publish(stream string, event map[string]interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = w.client.XAdd(w.ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to stream: %w", err)
	}
	return nil
}

// acknowledgeMessage acknowledges a message from the stream
func (w *Worker) acknowledgeMessage(messageID string) {
	err := w.client.XAck(w.ctx, w.streamKey, w.consumerGroup, messageID).Err()
	if err != nil {
		w.logger.Error("failed to acknowledge message",
			zap.String("message_id", messageID),
			zap.Error(err),
		)
	}
}

func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.ctx.Done():
	case <-time.After(d):
	}
}
