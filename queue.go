/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package payq

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/payq/config"
	redis_db "github.com/blnkfinance/payq/internal/redis-db"
)

// Background task types.
const (
	TaskDequeue      = "payq:dequeue"
	TaskCleanup      = "payq:cleanup"
	TaskRequeueStale = "payq:requeue-stale"
)

// triggerWindow is how long an un-run dequeue trigger absorbs further triggers. Scheduled cycles
// share the same lock.
const triggerWindow = 30 * time.Second

// maxDrainRounds bounds the batches one dequeue task runs. Anything left is picked up by the
// next trigger or scheduled cycle.
const maxDrainRounds = 50

// paymentQueueTable is the table name published by the enqueue notification trigger.
const paymentQueueTable = "payment_queue"

// Queue schedules payq's background cycles on asynq.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
	conf      *config.Configuration
}

// NewQueue initializes a new Queue instance with the provided configuration.
func NewQueue(conf *config.Configuration) (*Queue, error) {
	redisOption, err := redis_db.AsynqRedisOpt(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return nil, err
	}

	return &Queue{
		Client:    asynq.NewClient(redisOption),
		Inspector: asynq.NewInspector(redisOption),
		conf:      conf,
	}, nil
}

// TriggerDequeue asks a worker to run a batch cycle now. A trigger that is still waiting to run
// absorbs any new ones.
func (q *Queue) TriggerDequeue(ctx context.Context) error {
	task := asynq.NewTask(TaskDequeue, nil)
	info, err := q.Client.EnqueueContext(ctx, task, cycleOptions(q.conf)...)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	if err != nil {
		return err
	}

	logrus.WithField("task_id", info.ID).Debug("dequeue triggered")
	return nil
}

func (q *Queue) Close() error {
	if err := q.Inspector.Close(); err != nil {
		return err
	}
	return q.Client.Close()
}

// cycleOptions are shared by triggered and scheduled cycles, so a pending cycle of one kind
// absorbs the other.
func cycleOptions(conf *config.Configuration) []asynq.Option {
	return []asynq.Option{
		asynq.Queue(conf.Queue.MaintenanceQueue),
		asynq.Unique(triggerWindow),
		asynq.MaxRetry(0),
	}
}

// RegisterSchedules adds the configured periodic cycles to scheduler and returns their entry ids.
// A cycle whose spec is empty or "off" is not scheduled.
func RegisterSchedules(scheduler *asynq.Scheduler, conf *config.Configuration) ([]string, error) {
	schedules := []struct {
		spec     string
		taskType string
	}{
		{conf.Schedule.Dequeue, TaskDequeue},
		{conf.Schedule.Cleanup, TaskCleanup},
		{conf.Schedule.RequeueStale, TaskRequeueStale},
	}

	var entries []string
	for _, s := range schedules {
		if !conf.Schedule.Enabled(s.spec) {
			continue
		}
		id, err := scheduler.Register(s.spec, asynq.NewTask(s.taskType, nil), cycleOptions(conf)...)
		if err != nil {
			return entries, err
		}
		logrus.WithFields(logrus.Fields{"task": s.taskType, "spec": s.spec}).Info("scheduled queue cycle")
		entries = append(entries, id)
	}
	return entries, nil
}

// RegisterTaskHandlers binds the background cycles to mux.
func (p *Payq) RegisterTaskHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskDequeue, p.processDequeueTask)
	mux.HandleFunc(TaskCleanup, p.processCleanupTask)
	mux.HandleFunc(TaskRequeueStale, p.processRequeueStaleTask)
	mux.HandleFunc(p.config.Queue.WebhookQueue, ProcessWebhook)
}

// processDequeueTask keeps claiming while batches come back full. Triggers fired while the task
// is active are absorbed by its unique lock, so a single run has to drain the backlog.
func (p *Payq) processDequeueTask(ctx context.Context, _ *asynq.Task) error {
	_, err := p.DrainQueue(ctx)
	return err
}

// DrainQueue runs batch cycles until one claims less than a full batch, or maxDrainRounds is
// reached. It returns the number of items claimed.
func (p *Payq) DrainQueue(ctx context.Context) (int, error) {
	claimed := 0
	for round := 1; round <= maxDrainRounds; round++ {
		result, err := p.ProcessBatch(ctx)
		if err != nil {
			return claimed, err
		}
		claimed += result.Claimed
		logrus.WithFields(logrus.Fields{
			"round":     round,
			"claimed":   result.Claimed,
			"successes": result.Successes,
			"failures":  result.Failures,
		}).Info("dequeue cycle finished")

		if result.Claimed < p.config.Queue.BatchSize || ctx.Err() != nil {
			break
		}
	}
	return claimed, nil
}

func (p *Payq) processCleanupTask(ctx context.Context, _ *asynq.Task) error {
	result, err := p.PurgeSettled(ctx)
	if err != nil {
		return err
	}
	logrus.WithField("deleted", result.DeletedCount).Info("cleanup cycle finished")
	return nil
}

func (p *Payq) processRequeueStaleTask(ctx context.Context, _ *asynq.Task) error {
	_, err := p.RequeueStale(ctx)
	return err
}

// HandleNotification reacts to database notifications. A newly enqueued payment triggers an
// immediate batch cycle instead of waiting for the next scheduled one.
func (p *Payq) HandleNotification(table string, data map[string]interface{}) error {
	if table != paymentQueueTable {
		return nil
	}
	logrus.WithField("queue_id", data["queue_id"]).Debug("payment enqueued")
	return p.queue.TriggerDequeue(context.Background())
}
