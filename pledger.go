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
	"embed"
	"fmt"

	"go.opentelemetry.io/otel"

	"github.com/pledgerhq/pledger/config"
	"github.com/pledgerhq/pledger/database"
	redis_db "github.com/pledgerhq/pledger/internal/redis-db"
	"github.com/redis/go-redis/v9"
)

// Pledger is the service layer of the platform's financial mutation core.
// Every money-moving operation goes through here: authorization first, then
// a single atomic datasource call, then best-effort notifications.
type Pledger struct {
	queue      *Queue
	redis      redis.UniversalClient
	datasource database.IDataSource
}

//go:embed sql/*.sql
var SQLFiles embed.FS

var tracer = otel.Tracer("pledger.service")

// NewPledger initializes the service layer over the provided datasource.
func NewPledger(db database.IDataSource) (*Pledger, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	redisClient, err := redis_db.NewRedisClient([]string{fmt.Sprintf("redis://%s", configuration.Redis.Dns)}, configuration.Redis.SkipTLSVerify)
	if err != nil {
		return nil, err
	}
	newQueue := NewQueue(configuration)

	return &Pledger{datasource: db, queue: newQueue, redis: redisClient.Client()}, nil
}
