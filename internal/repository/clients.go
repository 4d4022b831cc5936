package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/bonus-manager/internal/ledger"
	"github.com/mmeshcher/bonus-manager/internal/model"
)

// ClientStore описывает операции над клиентами и журналом бонусов одной организации.
type ClientStore interface {
	ListClients(ctx context.Context, search string) ([]model.Client, error)
	GetClient(ctx context.Context, clientID int64) (*model.Client, error)
	CreateClient(ctx context.Context, c *model.Client) (*model.BonusHistory, error)
	DeleteClient(ctx context.Context, clientID int64) error
	MutateBalance(ctx context.Context, clientID int64, mutate ledger.Mutation) (*model.Client, *model.BonusHistory, error)
	SpentSince(ctx context.Context, since time.Time) (decimal.Decimal, error)
	ClientHistory(ctx context.Context, clientID int64) ([]model.BonusHistory, error)
}

// ScopedRepository реализует ClientStore; каждый запрос фильтруется по организации.
type ScopedRepository struct {
	pool  *pgxpool.Pool
	orgID int64
}

const selectClientSQL = `SELECT id, organization_id, name, phone, balance, created_at FROM clients`

func scanClient(row pgx.Row) (*model.Client, error) {
	var (
		c     model.Client
		cents int64
	)
	if err := row.Scan(&c.ID, &c.OrganizationID, &c.Name, &c.Phone, &cents, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.Balance = fromCents(cents)
	return &c, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ListClients возвращает клиентов организации; search ищет подстроку в имени или телефоне без учёта регистра.
func (s *ScopedRepository) ListClients(ctx context.Context, search string) ([]model.Client, error) {
	query := selectClientSQL + ` WHERE organization_id = $1`
	args := []any{s.orgID}

	if search != "" {
		query += ` AND (name ILIKE $2 OR phone ILIKE $2)`
		args = append(args, "%"+likeEscaper.Replace(search)+"%")
	}
	query += ` ORDER BY id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select clients: %w", err)
	}
	defer rows.Close()

	clients := make([]model.Client, 0)
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		clients = append(clients, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return clients, nil
}

// GetClient возвращает клиента организации. Клиент другой организации считается ненайденным.
func (s *ScopedRepository) GetClient(ctx context.Context, clientID int64) (*model.Client, error) {
	c, err := scanClient(s.pool.QueryRow(ctx,
		selectClientSQL+` WHERE id = $1 AND organization_id = $2`,
		clientID, s.orgID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClientNotFound
		}
		return nil, fmt.Errorf("get client: %w", err)
	}
	return c, nil
}

// CreateClient сохраняет нового клиента и заполняет его идентификатор.
// Ненулевой начальный баланс проводится первой записью журнала в той же транзакции;
// эта запись возвращается, для нулевого баланса возвращается nil.
func (s *ScopedRepository) CreateClient(ctx context.Context, c *model.Client) (*model.BonusHistory, error) {
	opening := c.Balance
	c.OrganizationID = s.orgID
	c.Balance = decimal.Zero

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: begin tx: %w", ErrTransactionFailed, err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO clients (organization_id, name, phone, balance)
		 VALUES ($1, $2, $3, 0)
		 RETURNING id, created_at`,
		s.orgID, c.Name, c.Phone,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		c.Balance = opening
		if isPgCode(err, pgerrcode.UniqueViolation) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePhone, c.Phone)
		}
		return nil, fmt.Errorf("%w: insert client: %w", ErrTransactionFailed, err)
	}

	if opening.IsZero() {
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("%w: commit tx: %w", ErrTransactionFailed, err)
		}
		return nil, nil
	}

	entry, err := ledger.Apply(opening)(c, c.CreatedAt)
	if err != nil {
		c.Balance = opening
		return nil, err
	}

	if err := s.storeMutation(ctx, tx, c, &entry); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%w: commit tx: %w", ErrTransactionFailed, err)
	}

	return &entry, nil
}

// DeleteClient удаляет клиента вместе с журналом бонусов.
func (s *ScopedRepository) DeleteClient(ctx context.Context, clientID int64) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM clients WHERE id = $1 AND organization_id = $2`,
		clientID, s.orgID,
	)
	if err != nil {
		return fmt.Errorf("delete client: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrClientNotFound
	}
	return nil
}

// MutateBalance применяет операцию к балансу клиента и добавляет запись в журнал в одной транзакции.
// Строка клиента блокируется до фиксации транзакции.
func (s *ScopedRepository) MutateBalance(ctx context.Context, clientID int64, mutate ledger.Mutation) (*model.Client, *model.BonusHistory, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: begin tx: %w", ErrTransactionFailed, err)
	}
	defer tx.Rollback(ctx)

	c, err := scanClient(tx.QueryRow(ctx,
		selectClientSQL+` WHERE id = $1 AND organization_id = $2 FOR UPDATE`,
		clientID, s.orgID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrClientNotFound
		}
		return nil, nil, fmt.Errorf("%w: lock client: %w", ErrTransactionFailed, err)
	}

	entry, err := mutate(c, time.Now().UTC().Truncate(time.Microsecond))
	if err != nil {
		return nil, nil, err
	}

	if err := s.storeMutation(ctx, tx, c, &entry); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("%w: commit tx: %w", ErrTransactionFailed, err)
	}

	return c, &entry, nil
}

// storeMutation сохраняет новый баланс клиента и запись журнала внутри транзакции tx.
func (s *ScopedRepository) storeMutation(ctx context.Context, tx pgx.Tx, c *model.Client, entry *model.BonusHistory) error {
	_, err := tx.Exec(ctx,
		`UPDATE clients SET balance = $2 WHERE id = $1`,
		c.ID, toCents(c.Balance),
	)
	if err != nil {
		return fmt.Errorf("%w: update balance: %w", ErrTransactionFailed, err)
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO bonus_history (client_id, created_at, amount, description, balance_after)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		c.ID, entry.CreatedAt, toCents(entry.Amount), string(entry.Description), toCents(entry.BalanceAfter),
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("%w: insert history: %w", ErrTransactionFailed, err)
	}
	return nil
}

// SpentSince возвращает сумму списаний по клиентам организации начиная с указанного момента.
func (s *ScopedRepository) SpentSince(ctx context.Context, since time.Time) (decimal.Decimal, error) {
	var spent int64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(-h.amount), 0)
		 FROM bonus_history h
		 JOIN clients c ON c.id = h.client_id
		 WHERE c.organization_id = $1 AND h.amount < 0 AND h.created_at >= $2`,
		s.orgID, since,
	).Scan(&spent)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum spent: %w", err)
	}
	return fromCents(spent), nil
}

// ClientHistory возвращает журнал клиента, начиная с последней записи.
func (s *ScopedRepository) ClientHistory(ctx context.Context, clientID int64) ([]model.BonusHistory, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT h.id, h.client_id, h.created_at, h.amount, h.description, h.balance_after
		 FROM bonus_history h
		 JOIN clients c ON c.id = h.client_id
		 WHERE h.client_id = $1 AND c.organization_id = $2
		 ORDER BY h.created_at DESC, h.id DESC`,
		clientID, s.orgID,
	)
	if err != nil {
		return nil, fmt.Errorf("select history: %w", err)
	}
	defer rows.Close()

	history := make([]model.BonusHistory, 0)
	for rows.Next() {
		var (
			h            model.BonusHistory
			amount       int64
			balanceAfter int64
			description  string
		)
		if err := rows.Scan(&h.ID, &h.ClientID, &h.CreatedAt, &amount, &description, &balanceAfter); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		h.Amount = fromCents(amount)
		h.BalanceAfter = fromCents(balanceAfter)
		h.Description = model.HistoryDescription(description)
		history = append(history, h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return history, nil
}
