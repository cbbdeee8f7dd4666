package database

import (
	"context"
	"database/sql"
	"log"
	"sync"

	"github.com/lib/pq"
	"github.com/pledgerhq/pledger/config"
	"github.com/pledgerhq/pledger/internal/apierror"
	"github.com/pledgerhq/pledger/internal/cache"
)

// Declare a package-level variable to hold the singleton instance.
// Ensure the instance is not accessible outside the package.
var instance *Datasource
var once sync.Once

type Datasource struct {
	Conn  *sql.DB
	Cache cache.Cache
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection provides a global access point to the instance and initializes it if it's not already.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := ConnectDB(configuration.DataSource.Dns)
		if errConn != nil {
			err = errConn
			return
		}
		newCache, errCache := cache.NewCache()
		if errCache != nil {
			log.Printf("cache init error, continuing without cache: %v", errCache)
		}
		instance = &Datasource{Conn: con, Cache: newCache}
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

// ConnectDB opens and verifies the Postgres connection. Schema management
// lives in the embedded sql migrations, applied with `pledger migrate up`.
func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, err
	}
	err = db.Ping()
	if err != nil {
		log.Printf("database connection error: %v", err)
		return nil, err
	}
	return db, nil
}

// withTransaction runs fn inside a database transaction, committing on
// success and rolling back on any error. Composite mutations go through
// here so either every write commits or none does.
func (d Datasource) withTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapPostgresError(err, "Failed to commit transaction")
	}
	return nil
}

// mapPostgresError translates driver errors into the API error taxonomy.
// Unique violations, serialization failures and deadlocks surface as
// retry-eligible conflicts.
func mapPostgresError(err error, message string) error {
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Code {
		case "23505", "40001", "40P01":
			return apierror.NewAPIError(apierror.ErrConflict, message, err)
		}
	}
	return apierror.NewAPIError(apierror.ErrInternalServer, message, err)
}
