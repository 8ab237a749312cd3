// Package surrealdb implements the job orchestration core's storage
// contracts (interfaces.StorageManager, JobStore, WebhookStore, UserStore,
// and the Transaction Coordinator) against SurrealDB.
package surrealdb

import (
	"context"
	"fmt"

	"github.com/careerforge/backend/internal/common"
	"github.com/careerforge/backend/internal/interfaces"
	"github.com/google/uuid"
	"github.com/surrealdb/surrealdb.go"
)

// Manager implements interfaces.StorageManager using SurrealDB.
type Manager struct {
	db     *surrealdb.DB
	logger *common.Logger

	jobStore     *JobStore
	webhookStore *WebhookStore
	userStore    *UserStore
}

// NewManager creates a new StorageManager connected to SurrealDB.
func NewManager(logger *common.Logger, config *common.Config) (*Manager, error) {
	ctx := context.Background()

	db, err := surrealdb.New(config.Storage.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}

	if config.Storage.Username != "" {
		if _, err := db.SignIn(ctx, map[string]interface{}{
			"user": config.Storage.Username,
			"pass": config.Storage.Password,
		}); err != nil {
			return nil, fmt.Errorf("failed to sign in to SurrealDB: %w", err)
		}
	}

	if err := db.Use(ctx, config.Storage.Namespace, config.Storage.Database); err != nil {
		return nil, fmt.Errorf("failed to select namespace/database: %w", err)
	}

	tables := []string{"job", "domain_record", "webhook_subscription", "webhook_delivery", "user"}
	for _, table := range tables {
		sql := fmt.Sprintf("DEFINE TABLE IF NOT EXISTS %s SCHEMALESS", table)
		if _, err := surrealdb.Query[any](ctx, db, sql, nil); err != nil {
			return nil, fmt.Errorf("failed to define table %s: %w", table, err)
		}
	}
	indexes := []string{
		"DEFINE INDEX IF NOT EXISTS job_external_id ON job FIELDS external_id UNIQUE",
		"DEFINE INDEX IF NOT EXISTS job_owner_status_created ON job FIELDS owner_id, status, created_at",
		"DEFINE INDEX IF NOT EXISTS job_owner_type ON job FIELDS owner_id, type",
	}
	for _, sql := range indexes {
		if _, err := surrealdb.Query[any](ctx, db, sql, nil); err != nil {
			return nil, fmt.Errorf("failed to define index: %w", err)
		}
	}

	m := &Manager{
		db:     db,
		logger: logger,
	}
	m.jobStore = NewJobStore(db, logger)
	m.webhookStore = NewWebhookStore(db, logger)
	m.userStore = NewUserStore(db, logger)

	logger.Info().
		Str("address", config.Storage.Address).
		Str("namespace", config.Storage.Namespace).
		Str("database", config.Storage.Database).
		Msg("SurrealDB storage manager initialized")

	return m, nil
}

func (m *Manager) JobStore() interfaces.JobStore         { return m.jobStore }
func (m *Manager) WebhookStore() interfaces.WebhookStore { return m.webhookStore }
func (m *Manager) UserStore() interfaces.UserStore       { return m.userStore }

// surrealTx is the Transaction Coordinator's handle when the backend is
// SurrealDB. Store methods that receive a non-nil surrealTx don't execute
// their statement immediately; they append it to buf. ExecuteAtomic flushes
// buf as one BEGIN TRANSACTION; ...; COMMIT TRANSACTION; round trip after fn
// returns successfully, giving the create-then-enqueue protocol (spec §9)
// real atomicity instead of best-effort sequential writes.
type surrealTx struct {
	id  string
	buf *txBuffer
}

func (t *surrealTx) TxID() string { return t.id }

// ExecuteAtomic is the Transaction Coordinator entry point (spec §4.5).
func (m *Manager) ExecuteAtomic(ctx context.Context, fn func(tx interfaces.Tx) error) error {
	tx := &surrealTx{id: uuid.New().String(), buf: &txBuffer{}}
	if err := fn(tx); err != nil {
		m.logger.Warn().Err(err).Str("tx_id", tx.id).Msg("atomic operation failed")
		return err
	}

	tx.buf.mu.Lock()
	statements := tx.buf.statements
	tx.buf.mu.Unlock()
	if len(statements) == 0 {
		return nil
	}

	sql, vars := buildTransactionSQL(statements)
	if _, err := surrealdb.Query[any](ctx, m.db, sql, vars); err != nil {
		m.logger.Warn().Err(err).Str("tx_id", tx.id).Msg("transaction commit failed")
		return fmt.Errorf("surrealdb transaction %s failed: %w", tx.id, err)
	}
	return nil
}

// Close shuts down the SurrealDB connection.
func (m *Manager) Close() error {
	m.db.Close(context.Background())
	return nil
}

var _ interfaces.StorageManager = (*Manager)(nil)
