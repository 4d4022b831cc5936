// Package handler содержит HTTP-обработчики API менеджера бонусов.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/bonus-manager/internal/flash"
	"github.com/mmeshcher/bonus-manager/internal/middleware"
	"github.com/mmeshcher/bonus-manager/internal/model"
	"github.com/mmeshcher/bonus-manager/internal/repository"
	"github.com/mmeshcher/bonus-manager/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, username, password string) (int64, error)
	AuthenticateUser(ctx context.Context, username, password string) (int64, error)
	Authorize(ctx context.Context, userID int64) (*service.Tenant, error)
	Dashboard(ctx context.Context, t service.Tenant, search string) (*model.Dashboard, error)
	MonthlySpend(ctx context.Context, t service.Tenant, asOf time.Time) (decimal.Decimal, error)
	ClientHistory(ctx context.Context, t service.Tenant, clientID int64) (*model.Client, []model.BonusHistory, error)
	AddClient(ctx context.Context, t service.Tenant, name, rawPhone string, balance decimal.Decimal) (*service.Outcome, error)
	ApplyBonus(ctx context.Context, t service.Tenant, clientID int64, bonusType model.BonusType, magnitude decimal.Decimal) (*service.Outcome, error)
	ResetBalance(ctx context.Context, t service.Tenant, clientID int64) (*service.Outcome, error)
	DeleteClient(ctx context.Context, t service.Tenant, clientID int64) error
	GetTemplates(ctx context.Context, t service.Tenant) (*model.MessageTemplate, error)
	UpdateTemplates(ctx context.Context, t service.Tenant, in model.MessageTemplate) (*model.MessageTemplate, error)
}

// Options содержит параметры HTTP-слоя.
type Options struct {
	AdminURL           string
	CORSAllowedOrigins []string
}

// Handler реализует HTTP-обработчики API менеджера бонусов.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	notices        flash.Store
	opts           Options
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, notices flash.Store, opts Options) *Handler {
	if opts.AdminURL == "" {
		opts.AdminURL = "/admin/"
	}
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		notices:        notices,
		opts:           opts,
	}
}

// NoOrganizationMessage показывается пользователю без организации.
const NoOrganizationMessage = "Вам нужно обратиться к администратору для назначения организации."

type errorResponse struct {
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	render.Status(r, status)
	render.JSON(w, r, v)
}

// writeError отображает доменную ошибку в HTTP-ответ.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error, fields ...zap.Field) {
	var fe *service.FieldError

	switch {
	case errors.Is(err, repository.ErrClientNotFound):
		writeJSON(w, r, http.StatusNotFound, errorResponse{Error: "client not found"})
	case errors.Is(err, repository.ErrDuplicatePhone):
		writeJSON(w, r, http.StatusConflict, errorResponse{Error: repository.ErrDuplicatePhone.Error(), Field: "phone"})
	case errors.As(err, &fe):
		writeJSON(w, r, http.StatusUnprocessableEntity, errorResponse{Error: fe.Err.Error(), Field: fe.Field})
	default:
		h.logger.Error("request failed", append(fields, zap.Error(err), zap.String("path", r.URL.Path))...)
		writeJSON(w, r, http.StatusInternalServerError, errorResponse{Error: http.StatusText(http.StatusInternalServerError)})
	}
}

type tenantKeyType struct{}

var tenantKey tenantKeyType

func tenantFromContext(ctx context.Context) (service.Tenant, bool) {
	t, ok := ctx.Value(tenantKey).(*service.Tenant)
	if !ok || t == nil {
		return service.Tenant{}, false
	}
	return *t, true
}

// TenantMiddleware привязывает запрос к организации пользователя.
// Администратор перенаправляется в административный раздел, пользователь без организации получает 403.
func (h *Handler) TenantMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserIDFromContext(r.Context())
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		tenant, err := h.service.Authorize(r.Context(), userID)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrPrivilegedActor):
				http.Redirect(w, r, h.opts.AdminURL, http.StatusSeeOther)
			case errors.Is(err, service.ErrNoOrganization):
				writeJSON(w, r, http.StatusForbidden, errorResponse{
					Error:   service.ErrNoOrganization.Error(),
					Message: NoOrganizationMessage,
				})
			case errors.Is(err, repository.ErrUserNotFound):
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			default:
				h.logger.Error("authorize error", zap.Error(err), zap.Int64("userID", userID))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
			return
		}

		ctx := context.WithValue(r.Context(), tenantKey, tenant)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func decodeCredentials(r *http.Request) (credentialsRequest, bool) {
	var req credentialsRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		return req, false
	}
	return req, req.Username != "" && req.Password != ""
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCredentials(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.RegisterUser(r.Context(), req.Username, req.Password)
	if err != nil {
		var fe *service.FieldError
		switch {
		case errors.Is(err, repository.ErrUserExists):
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
		case errors.As(err, &fe):
			writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: fe.Err.Error(), Field: fe.Field})
		default:
			h.logger.Error("register user error", zap.Error(err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

// Login выполняет аутентификацию пользователя и устанавливает cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCredentials(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.AuthenticateUser(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("login user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

// Logout удаляет cookie авторизации.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.authMiddleware.ClearAuthCookie(w)
	w.WriteHeader(http.StatusOK)
}

// Dashboard возвращает данные главной страницы и непрочитанное уведомление.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	dashboard, err := h.service.Dashboard(r.Context(), tenant, r.URL.Query().Get("search"))
	if err != nil {
		h.writeError(w, r, err, zap.Int64("orgID", tenant.Organization.ID))
		return
	}

	notice, err := h.notices.Pop(r.Context(), tenant.UserID)
	if err != nil {
		h.logger.Warn("pop notice error", zap.Error(err), zap.Int64("userID", tenant.UserID))
	}
	dashboard.Notice = notice

	writeJSON(w, r, http.StatusOK, dashboard)
}

type spendResponse struct {
	Spent decimal.Decimal `json:"spent"`
	Since time.Time       `json:"since"`
}

// MonthlySpend возвращает сумму списаний организации за последний месяц.
func (h *Handler) MonthlySpend(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	asOf := time.Now()
	spent, err := h.service.MonthlySpend(r.Context(), tenant, asOf)
	if err != nil {
		h.writeError(w, r, err, zap.Int64("orgID", tenant.Organization.ID))
		return
	}

	writeJSON(w, r, http.StatusOK, spendResponse{Spent: spent, Since: asOf.AddDate(0, -1, 0).UTC()})
}

type addClientRequest struct {
	Name    string          `json:"name"`
	Phone   string          `json:"phone"`
	Balance decimal.Decimal `json:"balance"`
}

// AddClient создаёт клиента организации.
func (h *Handler) AddClient(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req addClientRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}

	outcome, err := h.service.AddClient(r.Context(), tenant, req.Name, req.Phone, req.Balance)
	if err != nil {
		h.writeError(w, r, err, zap.Int64("orgID", tenant.Organization.ID))
		return
	}

	h.stashNotice(r.Context(), tenant, outcome.Notice)
	writeJSON(w, r, http.StatusCreated, outcome)
}

type bonusRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Type   model.BonusType `json:"type"`
}

// ApplyBonus начисляет или списывает бонусы клиенту.
func (h *Handler) ApplyBonus(w http.ResponseWriter, r *http.Request) {
	tenant, clientID, ok := h.clientRequest(w, r)
	if !ok {
		return
	}

	var req bonusRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}

	outcome, err := h.service.ApplyBonus(r.Context(), tenant, clientID, req.Type, req.Amount)
	if err != nil {
		h.writeError(w, r, err, zap.Int64("clientID", clientID))
		return
	}

	h.stashNotice(r.Context(), tenant, outcome.Notice)
	writeJSON(w, r, http.StatusOK, outcome)
}

// ResetBalance обнуляет баланс клиента.
func (h *Handler) ResetBalance(w http.ResponseWriter, r *http.Request) {
	tenant, clientID, ok := h.clientRequest(w, r)
	if !ok {
		return
	}

	outcome, err := h.service.ResetBalance(r.Context(), tenant, clientID)
	if err != nil {
		h.writeError(w, r, err, zap.Int64("clientID", clientID))
		return
	}

	h.stashNotice(r.Context(), tenant, outcome.Notice)
	writeJSON(w, r, http.StatusOK, outcome)
}

// DeleteClient удаляет клиента и его историю.
func (h *Handler) DeleteClient(w http.ResponseWriter, r *http.Request) {
	tenant, clientID, ok := h.clientRequest(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteClient(r.Context(), tenant, clientID); err != nil {
		h.writeError(w, r, err, zap.Int64("clientID", clientID))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type historyResponse struct {
	Client  *model.Client        `json:"client"`
	History []model.BonusHistory `json:"history"`
}

// ClientHistory возвращает журнал бонусов клиента, начиная с последней записи.
func (h *Handler) ClientHistory(w http.ResponseWriter, r *http.Request) {
	tenant, clientID, ok := h.clientRequest(w, r)
	if !ok {
		return
	}

	c, history, err := h.service.ClientHistory(r.Context(), tenant, clientID)
	if err != nil {
		h.writeError(w, r, err, zap.Int64("clientID", clientID))
		return
	}

	writeJSON(w, r, http.StatusOK, historyResponse{Client: c, History: history})
}

// GetTemplates возвращает шаблоны сообщений текущего пользователя.
func (h *Handler) GetTemplates(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	tpl, err := h.service.GetTemplates(r.Context(), tenant)
	if err != nil {
		h.writeError(w, r, err, zap.Int64("userID", tenant.UserID))
		return
	}

	writeJSON(w, r, http.StatusOK, tpl)
}

// UpdateTemplates заменяет шаблоны сообщений текущего пользователя.
func (h *Handler) UpdateTemplates(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req model.MessageTemplate
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}

	tpl, err := h.service.UpdateTemplates(r.Context(), tenant, req)
	if err != nil {
		h.writeError(w, r, err, zap.Int64("userID", tenant.UserID))
		return
	}

	writeJSON(w, r, http.StatusOK, tpl)
}

// clientRequest извлекает организацию и идентификатор клиента из запроса.
// Некорректный идентификатор обрабатывается как отсутствующий клиент.
func (h *Handler) clientRequest(w http.ResponseWriter, r *http.Request) (service.Tenant, int64, bool) {
	tenant, ok := tenantFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return service.Tenant{}, 0, false
	}

	clientID, err := strconv.ParseInt(chi.URLParam(r, "clientID"), 10, 64)
	if err != nil || clientID <= 0 {
		writeJSON(w, r, http.StatusNotFound, errorResponse{Error: "client not found"})
		return service.Tenant{}, 0, false
	}

	return tenant, clientID, true
}

func (h *Handler) stashNotice(ctx context.Context, tenant service.Tenant, n model.Notice) {
	if err := h.notices.Put(ctx, tenant.UserID, n); err != nil {
		h.logger.Warn("stash notice error", zap.Error(err), zap.Int64("userID", tenant.UserID))
	}
}
