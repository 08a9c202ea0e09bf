package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/iurnickita/paybot/internal/model"
)

type postgresStore struct {
	database *sql.DB
}

func newPostgresStore(dsn string) (*postgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	// Таблица учетных записей
	// Одна строка на ключ, запись целиком в JSONB. Сохранение снимка переписывает набор.
	_, err = db.Exec(
		"CREATE TABLE IF NOT EXISTS accounts (" +
			" key VARCHAR (15) PRIMARY KEY," +
			" data JSONB NOT NULL," +
			" updated_at TIMESTAMP NOT NULL" +
			" );")
	if err != nil {
		db.Close()
		return nil, describe(err)
	}

	// Таблица тарифов
	_, err = db.Exec(
		"CREATE TABLE IF NOT EXISTS plans (" +
			" id VARCHAR (64) PRIMARY KEY," +
			" data JSONB NOT NULL" +
			" );")
	if err != nil {
		db.Close()
		return nil, describe(err)
	}

	return &postgresStore{database: db}, nil
}

func (store *postgresStore) LoadAccounts(ctx context.Context) (map[string]*model.Account, error) {
	rows, err := store.database.QueryContext(ctx, "SELECT key, data FROM accounts")
	if err != nil {
		return nil, describe(err)
	}
	defer rows.Close()

	accounts := map[string]*model.Account{}
	for rows.Next() {
		var key string
		var data []byte
		if err := rows.Scan(&key, &data); err != nil {
			return nil, err
		}
		var acc model.Account
		if err := json.Unmarshal(data, &acc); err != nil {
			return nil, fmt.Errorf("decode account %s: %w", key, err)
		}
		acc.Key = key
		acc.Normalize()
		accounts[key] = &acc
	}
	return accounts, rows.Err()
}

func (store *postgresStore) SaveAccounts(ctx context.Context, accounts map[string]*model.Account) error {
	tx, err := store.database.BeginTx(ctx, nil)
	if err != nil {
		return describe(err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	keys := make([]string, 0, len(accounts))
	for key, acc := range accounts {
		data, err := json.Marshal(acc)
		if err != nil {
			return err
		}
		// Запись учетной записи
		_, err = tx.ExecContext(ctx,
			"INSERT INTO accounts (key, data, updated_at)"+
				" VALUES ($1, $2, $3)"+
				" ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at",
			key,
			data,
			now)
		if err != nil {
			return describe(err)
		}
		keys = append(keys, key)
	}

	// Rows absent from the snapshot are dropped
	_, err = tx.ExecContext(ctx, "DELETE FROM accounts WHERE key <> ALL($1)", keys)
	if err != nil {
		return describe(err)
	}

	return describe(tx.Commit())
}

func (store *postgresStore) LoadPlans(ctx context.Context) (map[string]model.Plan, error) {
	rows, err := store.database.QueryContext(ctx, "SELECT id, data FROM plans")
	if err != nil {
		return nil, describe(err)
	}
	defer rows.Close()

	plans := map[string]model.Plan{}
	for rows.Next() {
		var id string
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return nil, err
		}
		var plan model.Plan
		if err := json.Unmarshal(data, &plan); err != nil {
			return nil, fmt.Errorf("decode plan %s: %w", id, err)
		}
		plan.ID = id
		plans[id] = plan
	}
	return plans, rows.Err()
}

func (store *postgresStore) SavePlans(ctx context.Context, plans map[string]model.Plan) error {
	tx, err := store.database.BeginTx(ctx, nil)
	if err != nil {
		return describe(err)
	}
	defer tx.Rollback()

	ids := make([]string, 0, len(plans))
	for id, plan := range plans {
		data, err := json.Marshal(plan)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO plans (id, data)"+
				" VALUES ($1, $2)"+
				" ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data",
			id,
			data)
		if err != nil {
			return describe(err)
		}
		ids = append(ids, id)
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM plans WHERE id <> ALL($1)", ids)
	if err != nil {
		return describe(err)
	}

	return describe(tx.Commit())
}

func (store *postgresStore) Close() error {
	return store.database.Close()
}

// describe adds the Postgres error code and detail to server-side failures.
func describe(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("postgres %s: %s: %w", pgErr.Code, pgErr.Message, err)
	}
	return err
}
