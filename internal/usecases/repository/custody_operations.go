package repository

import (
	"context"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	tx "github.com/Thiht/transactor/pgx"
	"github.com/jackc/pgx/v5"

	"github.com/sand/custody-wallet/backend/internal/entities"
	"github.com/sand/custody-wallet/backend/pkg/database"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var custodyOperationColumns = []string{
	"id", "op_id", "user_id", "chain_id", "kind", "token", "amount",
	"tx_hash", "channel_id", "status", "error", "created_at",
}

// CustodyOperationsRepository is the append-only journal of custody steps.
type CustodyOperationsRepository struct {
	logger *slog.Logger
	db     tx.DBGetter
}

func NewCustodyOperationsRepository(logger *slog.Logger, pg *database.Postgres) *CustodyOperationsRepository {
	return &CustodyOperationsRepository{
		logger: logger,
		db:     pg.DBGetter,
	}
}

func (r *CustodyOperationsRepository) InsertOperation(ctx context.Context, op *entities.CustodyOperation) error {
	query, args, err := insertOperationQuery(op)
	if err != nil {
		return fmt.Errorf("failed to build insert query: %w", err)
	}

	if err = r.db(ctx).QueryRow(ctx, query, args...).Scan(&op.ID, &op.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert custody operation: %w", err)
	}

	r.logger.DebugContext(ctx, "Custody operation journaled", "op_id", op.OpID, "kind", op.Kind, "status", op.Status)
	return nil
}

func (r *CustodyOperationsRepository) FindOperationsByUser(ctx context.Context, userID string, limit uint64) ([]entities.CustodyOperation, error) {
	query, args, err := operationsByUserQuery(userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query custody operations: %w", err)
	}
	defer rows.Close()

	ops, err := pgx.CollectRows(rows, pgx.RowToStructByName[entities.CustodyOperation])
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to collect custody operations rows", "error", err)
		return nil, fmt.Errorf("failed to collect custody operations rows: %w", err)
	}

	return ops, nil
}

func insertOperationQuery(op *entities.CustodyOperation) (string, []any, error) {
	return psql.Insert("custody_operations").
		Columns("op_id", "user_id", "chain_id", "kind", "token", "amount", "tx_hash", "channel_id", "status", "error").
		Values(op.OpID, op.UserID, op.ChainID, string(op.Kind), op.Token, op.Amount, op.TxHash, op.ChannelID, string(op.Status), op.Error).
		Suffix("RETURNING id, created_at").
		ToSql()
}

func operationsByUserQuery(userID string, limit uint64) (string, []any, error) {
	return psql.Select(custodyOperationColumns...).
		From("custody_operations").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at DESC", "id DESC").
		Limit(limit).
		ToSql()
}
