package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	tx "github.com/Thiht/transactor/pgx"
	"github.com/jackc/pgx/v5"

	"github.com/sand/custody-wallet/backend/internal/entities"
	"github.com/sand/custody-wallet/backend/pkg/database"
)

// BalanceSnapshotsRepository caches the last seen ledger entries per user and asset.
type BalanceSnapshotsRepository struct {
	logger *slog.Logger
	db     tx.DBGetter
}

func NewBalanceSnapshotsRepository(logger *slog.Logger, pg *database.Postgres) *BalanceSnapshotsRepository {
	return &BalanceSnapshotsRepository{
		logger: logger,
		db:     pg.DBGetter,
	}
}

func (r *BalanceSnapshotsRepository) UpsertSnapshots(ctx context.Context, snapshots []entities.BalanceSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	query, args, err := upsertSnapshotsQuery(snapshots, time.Now())
	if err != nil {
		return fmt.Errorf("failed to build upsert query: %w", err)
	}

	if _, err = r.db(ctx).Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to upsert balance snapshots: %w", err)
	}
	return nil
}

func (r *BalanceSnapshotsRepository) FindSnapshotsByUser(ctx context.Context, userID string) ([]entities.BalanceSnapshot, error) {
	query, args, err := psql.Select("id", "user_id", "account_id", "asset", "amount", "captured_at").
		From("balance_snapshots").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("asset").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query balance snapshots: %w", err)
	}
	defer rows.Close()

	snapshots, err := pgx.CollectRows(rows, pgx.RowToStructByName[entities.BalanceSnapshot])
	if err != nil {
		return nil, fmt.Errorf("failed to collect balance snapshots rows: %w", err)
	}
	return snapshots, nil
}

// RemoveOldSnapshots deletes snapshots captured more than olderThan ago.
func (r *BalanceSnapshotsRepository) RemoveOldSnapshots(ctx context.Context, olderThan time.Duration) (int64, error) {
	query, args, err := removeOldSnapshotsQuery(time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to build delete query: %w", err)
	}

	tag, err := r.db(ctx).Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to remove old balance snapshots: %w", err)
	}
	return tag.RowsAffected(), nil
}

func upsertSnapshotsQuery(snapshots []entities.BalanceSnapshot, now time.Time) (string, []any, error) {
	insert := psql.Insert("balance_snapshots").
		Columns("user_id", "account_id", "asset", "amount", "captured_at")
	for _, s := range snapshots {
		insert = insert.Values(s.UserID, s.AccountID, s.Asset, s.Amount, now)
	}

	return insert.
		Suffix("ON CONFLICT (user_id, account_id, asset) DO UPDATE SET amount = EXCLUDED.amount, captured_at = EXCLUDED.captured_at").
		ToSql()
}

func removeOldSnapshotsQuery(cutoff time.Time) (string, []any, error) {
	return psql.Delete("balance_snapshots").
		Where(sq.Lt{"captured_at": cutoff}).
		ToSql()
}
