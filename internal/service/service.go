// Package service реализует бизнес-логику менеджера бонусов.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/bonus-manager/internal/ledger"
	"github.com/mmeshcher/bonus-manager/internal/message"
	"github.com/mmeshcher/bonus-manager/internal/model"
	"github.com/mmeshcher/bonus-manager/internal/repository"
	"github.com/mmeshcher/bonus-manager/internal/validation"
)

var (
	// ErrInvalidCredentials возвращается при неверном логине или пароле.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNoOrganization возвращается, если пользователю не назначена организация.
	ErrNoOrganization = errors.New("no organization assigned")
	// ErrPrivilegedActor возвращается для администратора: рабочие страницы ему недоступны.
	ErrPrivilegedActor = errors.New("privileged actor must use the administrative surface")
	// ErrValidation возвращается при некорректных входных данных.
	ErrValidation = errors.New("validation failed")
)

// FieldError привязывает ошибку проверки к полю формы.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Err.Error()
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

func fieldError(field, format string, args ...any) error {
	return &FieldError{Field: field, Err: fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)}
}

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateUser(ctx context.Context, username string, passwordHash []byte) (int64, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetOrganization(ctx context.Context, id int64) (*model.Organization, error)
	GetOrCreateTemplate(ctx context.Context, userID int64) (*model.MessageTemplate, error)
	UpdateTemplate(ctx context.Context, t *model.MessageTemplate) error
	ForOrganization(orgID int64) repository.ClientStore
}

// Tenant связывает пользователя с организацией, в рамках которой выполняются операции.
type Tenant struct {
	UserID       int64
	Organization model.Organization
}

// Outcome описывает результат изменения клиента и уведомление для него.
type Outcome struct {
	Client *model.Client       `json:"client"`
	Entry  *model.BonusHistory `json:"entry,omitempty"`
	Notice model.Notice        `json:"notice"`
}

// Service содержит бизнес-логику менеджера бонусов.
type Service struct {
	repo         Repository
	logger       *zap.Logger
	shareBaseURI string
	now          func() time.Time
}

// NewService создаёт новый сервис с указанным репозиторием.
func NewService(repo Repository, logger *zap.Logger, shareBaseURI string) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if shareBaseURI == "" {
		shareBaseURI = message.DefaultBaseURI
	}
	return &Service{
		repo:         repo,
		logger:       logger,
		shareBaseURI: shareBaseURI,
		now:          time.Now,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

const (
	maxNameLength     = 255
	maxUsernameLength = 150
	// bcrypt учитывает только первые 72 байта пароля
	maxPasswordBytes = 72
)

// RegisterUser регистрирует нового пользователя без организации.
func (s *Service) RegisterUser(ctx context.Context, username, password string) (int64, error) {
	username = strings.TrimSpace(username)
	if username == "" || utf8.RuneCountInString(username) > maxUsernameLength {
		return 0, fieldError("username", "must be 1..%d characters", maxUsernameLength)
	}
	if password == "" || len(password) > maxPasswordBytes {
		return 0, fieldError("password", "must be 1..%d bytes", maxPasswordBytes)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}

	id, err := s.repo.CreateUser(ctx, username, hashed)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return 0, repository.ErrUserExists
		}
		return 0, err
	}
	return id, nil
}

// AuthenticateUser проверяет логин и пароль пользователя и возвращает его идентификатор.
func (s *Service) AuthenticateUser(ctx context.Context, username, password string) (int64, error) {
	u, err := s.repo.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return 0, ErrInvalidCredentials
		}
		return 0, err
	}

	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return 0, ErrInvalidCredentials
	}

	return u.ID, nil
}

// Authorize определяет организацию, в рамках которой пользователь работает с клиентами.
// Администратор получает ErrPrivilegedActor, пользователь без организации — ErrNoOrganization.
func (s *Service) Authorize(ctx context.Context, userID int64) (*Tenant, error) {
	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if u.IsPrivileged {
		return nil, ErrPrivilegedActor
	}
	if u.OrganizationID == nil {
		return nil, ErrNoOrganization
	}

	org, err := s.repo.GetOrganization(ctx, *u.OrganizationID)
	if err != nil {
		if errors.Is(err, repository.ErrOrganizationNotFound) {
			return nil, ErrNoOrganization
		}
		return nil, err
	}

	return &Tenant{UserID: u.ID, Organization: *org}, nil
}

func (s *Service) clients(t Tenant) repository.ClientStore {
	return s.repo.ForOrganization(t.Organization.ID)
}

// Dashboard собирает данные главной страницы организации.
func (s *Service) Dashboard(ctx context.Context, t Tenant, search string) (*model.Dashboard, error) {
	search = strings.TrimSpace(search)

	clients, err := s.clients(t).ListClients(ctx, search)
	if err != nil {
		return nil, err
	}

	spent, err := s.MonthlySpend(ctx, t, s.now())
	if err != nil {
		return nil, err
	}

	tpl, err := s.repo.GetOrCreateTemplate(ctx, t.UserID)
	if err != nil {
		return nil, err
	}

	return &model.Dashboard{
		BusinessName: t.Organization.Name,
		Search:       search,
		Clients:      clients,
		Spent:        spent,
		Templates:    *tpl,
	}, nil
}

// MonthlySpend возвращает сумму списаний организации за месяц до asOf.
func (s *Service) MonthlySpend(ctx context.Context, t Tenant, asOf time.Time) (decimal.Decimal, error) {
	return s.clients(t).SpentSince(ctx, asOf.AddDate(0, -1, 0))
}

// ClientHistory возвращает клиента и его журнал бонусов, начиная с последней записи.
func (s *Service) ClientHistory(ctx context.Context, t Tenant, clientID int64) (*model.Client, []model.BonusHistory, error) {
	store := s.clients(t)

	c, err := store.GetClient(ctx, clientID)
	if err != nil {
		return nil, nil, err
	}

	history, err := store.ClientHistory(ctx, clientID)
	if err != nil {
		return nil, nil, err
	}

	return c, history, nil
}

// AddClient создаёт клиента организации и готовит приветственное уведомление.
// Ненулевой начальный баланс попадает в журнал первой записью.
func (s *Service) AddClient(ctx context.Context, t Tenant, name, rawPhone string, balance decimal.Decimal) (*Outcome, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return nil, fieldError("name", "must be 1..%d characters", maxNameLength)
	}

	phone, err := validation.NormalizePhone(rawPhone)
	if err != nil {
		return nil, &FieldError{Field: "phone", Err: err}
	}

	if err := validateMoney("balance", balance); err != nil {
		return nil, err
	}

	tpl, err := s.repo.GetOrCreateTemplate(ctx, t.UserID)
	if err != nil {
		return nil, err
	}

	c := &model.Client{Name: name, Phone: phone, Balance: balance}
	opening, err := s.clients(t).CreateClient(ctx, c)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicatePhone) {
			return nil, &FieldError{Field: "phone", Err: err}
		}
		return nil, err
	}

	s.logger.Debug("client created",
		zap.Int64("orgID", t.Organization.ID),
		zap.Int64("clientID", c.ID),
		zap.String("phone", c.Phone),
	)

	text := tpl.AccrualTemplate
	if c.Balance.IsNegative() {
		text = tpl.DeductionTemplate
	}
	shown := c.Balance.Abs()

	return &Outcome{
		Client: c,
		Entry:  opening,
		Notice: s.notice(c, text, &shown),
	}, nil
}

// ApplyBonus начисляет или списывает бонусы клиенту. magnitude задаётся без знака,
// направление определяется bonusType.
func (s *Service) ApplyBonus(ctx context.Context, t Tenant, clientID int64, bonusType model.BonusType, magnitude decimal.Decimal) (*Outcome, error) {
	if err := validateBonusAmount(magnitude); err != nil {
		return nil, err
	}

	amount, err := ledger.SignedAmount(bonusType, magnitude)
	if err != nil {
		return nil, &FieldError{Field: "type", Err: fmt.Errorf("%w: %w", ErrValidation, err)}
	}

	tpl, err := s.repo.GetOrCreateTemplate(ctx, t.UserID)
	if err != nil {
		return nil, err
	}

	c, entry, err := s.clients(t).MutateBalance(ctx, clientID, ledger.Apply(amount))
	if err != nil {
		if errors.Is(err, ledger.ErrBalanceLimit) {
			return nil, &FieldError{Field: "amount", Err: fmt.Errorf("%w: %w", ErrValidation, err)}
		}
		return nil, err
	}

	s.logger.Debug("bonus applied",
		zap.Int64("orgID", t.Organization.ID),
		zap.Int64("clientID", c.ID),
		zap.String("amount", amount.StringFixed(2)),
	)

	text := tpl.AccrualTemplate
	if amount.IsNegative() {
		text = tpl.DeductionTemplate
	}
	shown := amount.Abs()

	return &Outcome{
		Client: c,
		Entry:  entry,
		Notice: s.notice(c, text, &shown),
	}, nil
}

// ResetBalance обнуляет баланс клиента.
func (s *Service) ResetBalance(ctx context.Context, t Tenant, clientID int64) (*Outcome, error) {
	tpl, err := s.repo.GetOrCreateTemplate(ctx, t.UserID)
	if err != nil {
		return nil, err
	}

	c, entry, err := s.clients(t).MutateBalance(ctx, clientID, ledger.Reset())
	if err != nil {
		return nil, err
	}

	s.logger.Debug("balance reset",
		zap.Int64("orgID", t.Organization.ID),
		zap.Int64("clientID", c.ID),
		zap.String("previous", entry.Amount.Neg().StringFixed(2)),
	)

	return &Outcome{
		Client: c,
		Entry:  entry,
		Notice: s.notice(c, tpl.ResetTemplate, nil),
	}, nil
}

// DeleteClient удаляет клиента организации вместе с его журналом.
func (s *Service) DeleteClient(ctx context.Context, t Tenant, clientID int64) error {
	if err := s.clients(t).DeleteClient(ctx, clientID); err != nil {
		return err
	}

	s.logger.Debug("client deleted",
		zap.Int64("orgID", t.Organization.ID),
		zap.Int64("clientID", clientID),
	)
	return nil
}

// GetTemplates возвращает шаблоны сообщений пользователя.
func (s *Service) GetTemplates(ctx context.Context, t Tenant) (*model.MessageTemplate, error) {
	return s.repo.GetOrCreateTemplate(ctx, t.UserID)
}

// UpdateTemplates заменяет все три шаблона сообщений пользователя.
func (s *Service) UpdateTemplates(ctx context.Context, t Tenant, in model.MessageTemplate) (*model.MessageTemplate, error) {
	fields := []struct {
		name  string
		value string
	}{
		{"accrual_template", in.AccrualTemplate},
		{"deduction_template", in.DeductionTemplate},
		{"reset_template", in.ResetTemplate},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return nil, fieldError(f.name, "must not be empty")
		}
	}

	tpl, err := s.repo.GetOrCreateTemplate(ctx, t.UserID)
	if err != nil {
		return nil, err
	}

	tpl.AccrualTemplate = in.AccrualTemplate
	tpl.DeductionTemplate = in.DeductionTemplate
	tpl.ResetTemplate = in.ResetTemplate

	if err := s.repo.UpdateTemplate(ctx, tpl); err != nil {
		return nil, err
	}

	s.logger.Debug("templates updated", zap.Int64("userID", t.UserID))
	return tpl, nil
}

func (s *Service) notice(c *model.Client, template string, amount *decimal.Decimal) model.Notice {
	text := message.Render(template, c.Name, amount, c.Balance)
	return model.Notice{
		URL:     message.BuildShareableLink(s.shareBaseURI, strings.TrimPrefix(c.Phone, "+"), text),
		Message: text,
	}
}
