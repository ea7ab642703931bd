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

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.elastic.co/apm/module/apmlogrus/v2"

	"github.com/blnkfinance/payq"
	"github.com/blnkfinance/payq/config"
	pg_listener "github.com/blnkfinance/payq/internal/pg-listener"
	redis_db "github.com/blnkfinance/payq/internal/redis-db"
)

// enqueueChannel is the channel the payment_queue insert trigger notifies on.
const enqueueChannel = "payment_enqueued"

func init() {
	logrus.AddHook(&apmlogrus.Hook{})
}

func initializeQueues(conf *config.Configuration) map[string]int {
	return map[string]int{
		conf.Queue.WebhookQueue:     3,
		conf.Queue.MaintenanceQueue: 1,
	}
}

func initializeWorkerServer(redisOption asynq.RedisClientOpt, queues map[string]int) *asynq.Server {
	return asynq.NewServer(redisOption, asynq.Config{
		Concurrency: 2,
		Queues:      queues,
	})
}

// initializeScheduler registers the configured queue cycles and starts the scheduler.
func initializeScheduler(redisOption asynq.RedisClientOpt, conf *config.Configuration) (*asynq.Scheduler, error) {
	scheduler := asynq.NewScheduler(redisOption, &asynq.SchedulerOpts{Location: time.UTC})
	if _, err := payq.RegisterSchedules(scheduler, conf); err != nil {
		return nil, err
	}
	if err := scheduler.Start(); err != nil {
		return nil, err
	}
	return scheduler, nil
}

// startEnqueueListener wakes the dequeue cycle as soon as a payment is inserted.
func startEnqueueListener(ctx context.Context, p *payqInstance) {
	listener := pg_listener.NewDBListener(pg_listener.ListenerConfig{
		PgConnStr: p.cnf.DataSource.Dns,
		Channel:   enqueueChannel,
	}, p.payq)

	go func() {
		if err := listener.Start(ctx); err != nil {
			logrus.WithError(err).Error("payment enqueue listener stopped")
		}
	}()
}

func startMonitoring(redisOption asynq.RedisClientOpt, port string) {
	h := asynqmon.New(asynqmon.Options{
		RootPath:     "/monitoring",
		RedisConnOpt: redisOption,
	})

	go func() {
		monitoringAddr := fmt.Sprintf(":%s", port)
		log.Printf("Asynqmon server listening on %s/monitoring", monitoringAddr)
		if err := http.ListenAndServe(monitoringAddr, h); err != nil {
			log.Fatalf("could not start asynqmon server: %v", err)
		}
	}()
}

// workerCommands defines the "workers" command. Workers run the scheduled dequeue, cleanup and
// stale recovery cycles and deliver operator webhooks.
func workerCommands(p *payqInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start payq workers",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			conf := p.cnf

			shutdown, err := initializeObservability(ctx, conf)
			if err != nil {
				log.Fatal(err)
			}
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					log.Printf("Error during shutdown: %v", err)
				}
			}()
			defer p.payq.Close()

			redisOption, err := redis_db.AsynqRedisOpt(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
			if err != nil {
				log.Fatal(err)
			}

			scheduler, err := initializeScheduler(redisOption, conf)
			if err != nil {
				log.Fatalf("could not start scheduler: %v", err)
			}
			defer scheduler.Shutdown()

			startEnqueueListener(ctx, p)

			if conf.Queue.StaleRecoveryEnabled {
				recovery := payq.NewStaleProcessingRecoveryProcessor(p.payq)
				recovery.Start(ctx)
				defer recovery.Stop()
			}

			startMonitoring(redisOption, conf.Queue.MonitoringPort)

			mux := asynq.NewServeMux()
			p.payq.RegisterTaskHandlers(mux)

			srv := initializeWorkerServer(redisOption, initializeQueues(conf))
			if err := srv.Run(mux); err != nil {
				log.Fatalf("could not run server: %v", err)
			}
		},
	}

	return cmd
}
