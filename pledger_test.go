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
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"

	"github.com/pledgerhq/pledger/config"
	"github.com/pledgerhq/pledger/database"
	"github.com/pledgerhq/pledger/internal/cache"
)

// newTestPledger wires the service over a sqlmock database and a miniredis
// instance, one fresh pair per test so the cache never leaks across tests.
func newTestPledger(t *testing.T) (*Pledger, sqlmock.Sqlmock) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("error starting miniredis: %s", err)
	}
	t.Cleanup(mr.Close)

	config.MockConfig(&config.Configuration{
		Redis: config.RedisConfig{Dns: mr.Addr()},
		Queue: config.QueueConfig{MailQueue: "new:mail", SubscriptionQueue: "new:subscription"},
	})

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening stub database connection: %s", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	newCache, err := cache.NewCache()
	if err != nil {
		t.Fatalf("error creating cache: %s", err)
	}

	p, err := NewPledger(&database.Datasource{Conn: db, Cache: newCache})
	if err != nil {
		t.Fatalf("error creating service instance: %s", err)
	}
	return p, mock
}

var testAccountColumns = []string{"account_id", "name", "type", "currency", "host_account_id", "tags", "email", "created_at", "meta_data"}

func testAccountRow(id, accType, currency, hostID string) *sqlmock.Rows {
	tagsJSON, _ := json.Marshal([]string{})
	metaDataJSON, _ := json.Marshal(map[string]interface{}{})
	return sqlmock.NewRows(testAccountColumns).
		AddRow(id, "account "+id, accType, currency, hostID, tagsJSON, "", time.Now(), metaDataJSON)
}

func expectAccountLookup(mock sqlmock.Sqlmock, id, accType, currency, hostID string) {
	mock.ExpectQuery("FROM pledger.accounts\\s+WHERE account_id = \\$1").
		WithArgs(id).
		WillReturnRows(testAccountRow(id, accType, currency, hostID))
}
