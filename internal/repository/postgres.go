// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/bonus-manager/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserExists возвращается при попытке создать пользователя с уже существующим логином.
var (
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrOrganizationNotFound возвращается, если организация не найдена.
	ErrOrganizationNotFound = errors.New("organization not found")
	// ErrClientNotFound возвращается, если клиент не найден в организации пользователя.
	ErrClientNotFound = errors.New("client not found")
	// ErrDuplicatePhone возвращается, если в организации уже есть клиент с таким номером.
	ErrDuplicatePhone = errors.New("client with this phone already exists")
	// ErrTransactionFailed возвращается при сбое транзакции изменения баланса.
	ErrTransactionFailed = errors.New("transaction failed")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.withRetry(ctx, func() error { return pool.Ping(ctx) }); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет операцию при временных ошибках соединения.
// Транзакции изменения баланса через него не проходят.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		if i == len(delays) || !isRetryable(err) {
			break
		}

		timer := time.NewTimer(delays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgerrcode.IsConnectionException(pgErr.Code) || pgErr.Code == pgerrcode.CannotConnectNow
	}
	return isConnectionError(err)
}

// isConnectionError определяет ошибки установки соединения и сетевые ошибки,
// после которых запрос до сервера не дошёл.
func isConnectionError(err error) bool {
	var (
		connectErr *pgconn.ConnectError
		opErr      *net.OpError
	)
	return pgconn.SafeToRetry(err) || errors.As(err, &connectErr) || errors.As(err, &opErr)
}

func isPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

// Суммы хранятся в сотых долях.
func toCents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

func fromCents(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateUser создаёт нового пользователя без организации.
func (r *PostgresRepository) CreateUser(ctx context.Context, username string, passwordHash []byte) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (username, password_hash) VALUES ($1, $2) RETURNING id`,
		username, passwordHash,
	).Scan(&id)
	if err != nil {
		if isPgCode(err, pgerrcode.UniqueViolation) {
			return 0, fmt.Errorf("%w: %s", ErrUserExists, username)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

const selectUserSQL = `SELECT id, username, password_hash, organization_id, is_privileged, created_at FROM users`

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.OrganizationID, &u.IsPrivileged, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// GetUserByUsername возвращает пользователя по логину.
func (r *PostgresRepository) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return scanUser(r.pool.QueryRow(ctx, selectUserSQL+` WHERE username = $1`, username))
}

// GetUserByID возвращает пользователя по идентификатору.
func (r *PostgresRepository) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	return scanUser(r.pool.QueryRow(ctx, selectUserSQL+` WHERE id = $1`, id))
}

// CreateOrganization создаёт организацию.
func (r *PostgresRepository) CreateOrganization(ctx context.Context, name string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO organizations (name) VALUES ($1) RETURNING id`,
		name,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create organization: %w", err)
	}
	return id, nil
}

// GetOrganization возвращает организацию по идентификатору.
func (r *PostgresRepository) GetOrganization(ctx context.Context, id int64) (*model.Organization, error) {
	var org model.Organization
	err := r.pool.QueryRow(ctx,
		`SELECT id, name FROM organizations WHERE id = $1`,
		id,
	).Scan(&org.ID, &org.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("get organization: %w", err)
	}
	return &org, nil
}

// AssignOrganization привязывает пользователя к организации.
func (r *PostgresRepository) AssignOrganization(ctx context.Context, username string, orgID int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET organization_id = $2 WHERE username = $1`,
		username, orgID,
	)
	if err != nil {
		if isPgCode(err, pgerrcode.ForeignKeyViolation) {
			return fmt.Errorf("%w: %d", ErrOrganizationNotFound, orgID)
		}
		return fmt.Errorf("assign organization: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetPrivileged меняет признак администратора у пользователя.
func (r *PostgresRepository) SetPrivileged(ctx context.Context, username string, privileged bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET is_privileged = $2 WHERE username = $1`,
		username, privileged,
	)
	if err != nil {
		return fmt.Errorf("set privileged: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// GetOrCreateTemplate возвращает шаблоны сообщений пользователя, создавая их со значениями по умолчанию.
func (r *PostgresRepository) GetOrCreateTemplate(ctx context.Context, userID int64) (*model.MessageTemplate, error) {
	def := model.DefaultMessageTemplate(userID)

	_, err := r.pool.Exec(ctx,
		`INSERT INTO message_templates (user_id, accrual_template, deduction_template, reset_template)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID, def.AccrualTemplate, def.DeductionTemplate, def.ResetTemplate,
	)
	if err != nil {
		if isPgCode(err, pgerrcode.ForeignKeyViolation) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("insert template: %w", err)
	}

	var t model.MessageTemplate
	err = r.pool.QueryRow(ctx,
		`SELECT id, user_id, accrual_template, deduction_template, reset_template
		 FROM message_templates
		 WHERE user_id = $1`,
		userID,
	).Scan(&t.ID, &t.UserID, &t.AccrualTemplate, &t.DeductionTemplate, &t.ResetTemplate)
	if err != nil {
		return nil, fmt.Errorf("select template: %w", err)
	}

	return &t, nil
}

// UpdateTemplate сохраняет шаблоны сообщений пользователя.
func (r *PostgresRepository) UpdateTemplate(ctx context.Context, t *model.MessageTemplate) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO message_templates (user_id, accrual_template, deduction_template, reset_template)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id) DO UPDATE
		 SET accrual_template = EXCLUDED.accrual_template,
		     deduction_template = EXCLUDED.deduction_template,
		     reset_template = EXCLUDED.reset_template`,
		t.UserID, t.AccrualTemplate, t.DeductionTemplate, t.ResetTemplate,
	)
	if err != nil {
		if isPgCode(err, pgerrcode.ForeignKeyViolation) {
			return ErrUserNotFound
		}
		return fmt.Errorf("update template: %w", err)
	}
	return nil
}

// ForOrganization возвращает хранилище клиентов, ограниченное одной организацией.
func (r *PostgresRepository) ForOrganization(orgID int64) ClientStore {
	return &ScopedRepository{pool: r.pool, orgID: orgID}
}
