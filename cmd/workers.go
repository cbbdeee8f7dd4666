/*
Copyright 2025 Pledger Authors.

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
	"fmt"
	"log"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/pledgerhq/pledger"
	"github.com/pledgerhq/pledger/config"
	redis_db "github.com/pledgerhq/pledger/internal/redis-db"
)

// initializeQueues maps queue names to priorities. Renewals outrank mail:
// a delayed invitation is an annoyance, a delayed charge is missed revenue.
func initializeQueues(conf *config.Configuration) map[string]int {
	return map[string]int{
		conf.Queue.SubscriptionQueue: 3,
		conf.Queue.MailQueue:         1,
	}
}

func initializeWorkerServer(conf *config.Configuration, queues map[string]int) (*asynq.Server, error) {
	redisOption, err := redis_db.ParseRedisURL(fmt.Sprintf("redis://%s", conf.Redis.Dns), conf.Redis.SkipTLSVerify)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}

	return asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:      redisOption.Addr,
			Password:  redisOption.Password,
			DB:        redisOption.DB,
			TLSConfig: redisOption.TLSConfig,
		},
		asynq.Config{
			Concurrency: 1,
			Queues:      queues,
		},
	), nil
}

func initializeTaskHandlers(b *pledgerInstance, mux *asynq.ServeMux) {
	mux.HandleFunc(b.cnf.Queue.SubscriptionQueue, b.pledger.ProcessSubscriptionRenewal)
	mux.HandleFunc(b.cnf.Queue.MailQueue, pledger.ProcessMail)
}

// workerCommands defines the "workers" command that runs the background
// consumers: subscription renewals and outbound mail.
func workerCommands(b *pledgerInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start pledger workers",
		Run: func(cmd *cobra.Command, args []string) {
			conf, err := config.Fetch()
			if err != nil {
				log.Fatal("Error fetching config:", err)
			}

			queues := initializeQueues(conf)

			srv, err := initializeWorkerServer(conf, queues)
			if err != nil {
				log.Fatal(err)
			}

			mux := asynq.NewServeMux()
			initializeTaskHandlers(b, mux)

			if err := srv.Run(mux); err != nil {
				log.Fatalf("could not run server: %v", err)
			}
		},
	}

	return cmd
}
