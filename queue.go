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

package pledger

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"
	"github.com/pledgerhq/pledger/config"
	redis_db "github.com/pledgerhq/pledger/internal/redis-db"
)

// Queue dispatches the asynchronous work that follows a committed mutation:
// mail delivery and scheduled subscription renewals.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
}

// SubscriptionRenewalPayload is the task body for a scheduled renewal.
type SubscriptionRenewalPayload struct {
	SubscriptionID string `json:"subscription_id"`
}

// NewQueue initializes a new Queue instance with the provided configuration.
func NewQueue(conf *config.Configuration) *Queue {
	redisOption, err := redis_db.ParseRedisURL(fmt.Sprintf("redis://%s", conf.Redis.Dns), conf.Redis.SkipTLSVerify)
	if err != nil {
		log.Fatalf("Error parsing Redis URL: %v", err)
	}

	queueOptions := asynq.RedisClientOpt{Addr: redisOption.Addr, Password: redisOption.Password, DB: redisOption.DB, TLSConfig: redisOption.TLSConfig}
	client := asynq.NewClient(queueOptions)
	inspector := asynq.NewInspector(queueOptions)
	return &Queue{
		Client:    client,
		Inspector: inspector,
	}
}

// queueMail enqueues a mail message for the notification worker. Callers
// treat failures as best-effort: a lost notification never rolls back the
// mutation that produced it.
func (q *Queue) queueMail(msg MailMessage) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	task := asynq.NewTask(cfg.Queue.MailQueue, payload, asynq.Queue(cfg.Queue.MailQueue), asynq.MaxRetry(5))
	info, err := q.Client.Enqueue(task)
	if err != nil {
		log.Println(err, info)
		return err
	}
	log.Printf(" [*] Successfully enqueued mail: %s -> %s", msg.Template, msg.To)
	return nil
}

// queueSubscriptionRenewal schedules the next charge of a subscription. The
// task id carries the charge timestamp so rescheduling the same cycle twice
// dedupes instead of double-charging.
func (q *Queue) queueSubscriptionRenewal(subscriptionID string, at time.Time) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(SubscriptionRenewalPayload{SubscriptionID: subscriptionID})
	if err != nil {
		return err
	}

	taskOptions := []asynq.Option{
		asynq.TaskID(fmt.Sprintf("%s:%d", subscriptionID, at.Unix())),
		asynq.Queue(cfg.Queue.SubscriptionQueue),
		asynq.ProcessIn(time.Until(at)),
		asynq.MaxRetry(5),
	}
	task := asynq.NewTask(cfg.Queue.SubscriptionQueue, payload, taskOptions...)
	info, err := q.Client.Enqueue(task)
	if err != nil {
		log.Println(err, info)
		return err
	}
	log.Printf(" [*] Successfully enqueued renewal: %s at %s", subscriptionID, at)
	return nil
}
