package service

import (
	"context"
	"errors"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/iurnickita/paybot/internal/admin"
	"github.com/iurnickita/paybot/internal/catalog"
	"github.com/iurnickita/paybot/internal/ledger"
	"github.com/iurnickita/paybot/internal/model"
	"github.com/iurnickita/paybot/internal/notify"
	"github.com/iurnickita/paybot/internal/reconcile"
	"github.com/iurnickita/paybot/internal/service/config"
)

type Service interface {
	SubmitDeposit(ctx context.Context, account string, amount int64, method, proof string) (model.PendingRequest, error)
	SubmitWithdrawal(ctx context.Context, account string, amount int64, method, destination string) (model.PendingRequest, error)
	SubmitPlanPurchase(ctx context.Context, account, planID string) (model.PendingRequest, error)
	SubmitPlanUpgrade(ctx context.Context, account, planID string) (model.PendingRequest, error)
	Submit(ctx context.Context, kind model.RequestKind, account string, p reconcile.Payload) (model.PendingRequest, error)

	GetBalance(account string) (model.BalanceSummary, error)
	GetPending(account string) (model.PendingSet, error)
	GetHistory(account string, limit int) ([]model.Transaction, error)
	GetPlans() []model.Plan
	GetPlan(id string) (model.Plan, error)

	Approve(ctx context.Context, actor string, kind model.RequestKind, account, id string) (model.Notification, error)
	Reject(ctx context.Context, actor string, kind model.RequestKind, account, id, reason string) (model.Notification, error)
	SetBalance(ctx context.Context, actor, account string, balance int64, reason string) (model.Account, error)
	SetBanned(ctx context.Context, actor, account string, banned bool) (model.Account, error)
	AddNote(ctx context.Context, actor, account, note string) error
	AddPlan(ctx context.Context, actor string, plan model.Plan) error
	UpdatePlan(ctx context.Context, actor string, plan model.Plan) error
	DeletePlan(ctx context.Context, actor, id string) error
	GetStats(actor string) (model.Stats, error)
	SearchAccounts(actor, query string) ([]model.AccountOverview, error)
	GetAccount(actor, account string, limit int) (model.AccountDetails, error)
	RecentTransactions(actor string, limit int) ([]model.AccountTransaction, error)
}

var (
	ErrInsufficientData = errors.New("insufficient data")
	ErrForbidden        = errors.New("administrator only")
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrInvalidData      = errors.New("invalid data")
)

type service struct {
	cfg      config.Config
	ledger   *ledger.Ledger
	engine   *reconcile.Engine
	catalog  *catalog.Catalog
	admins   admin.Directory
	notifier notify.Notifier
	zaplog   *zap.Logger
}

func NewService(cfg config.Config, l *ledger.Ledger, engine *reconcile.Engine, plans *catalog.Catalog,
	admins admin.Directory, notifier notify.Notifier, zaplog *zap.Logger) Service {
	return &service{
		cfg:      cfg,
		ledger:   l,
		engine:   engine,
		catalog:  plans,
		admins:   admins,
		notifier: notifier,
		zaplog:   zaplog,
	}
}

func (service *service) SubmitDeposit(ctx context.Context, account string, amount int64, method, proof string) (model.PendingRequest, error) {
	return service.Submit(ctx, model.KindDeposit, account, reconcile.Payload{Amount: amount, Method: method, Proof: proof})
}

func (service *service) SubmitWithdrawal(ctx context.Context, account string, amount int64, method, destination string) (model.PendingRequest, error) {
	return service.Submit(ctx, model.KindWithdrawal, account, reconcile.Payload{Amount: amount, Method: method, Destination: destination})
}

func (service *service) SubmitPlanPurchase(ctx context.Context, account, planID string) (model.PendingRequest, error) {
	return service.Submit(ctx, model.KindPlanPurchase, account, reconcile.Payload{PlanID: planID})
}

func (service *service) SubmitPlanUpgrade(ctx context.Context, account, planID string) (model.PendingRequest, error) {
	return service.Submit(ctx, model.KindPlanUpgrade, account, reconcile.Payload{PlanID: planID})
}

func (service *service) Submit(ctx context.Context, kind model.RequestKind, account string, p reconcile.Payload) (model.PendingRequest, error) {
	if account == "" {
		return model.PendingRequest{}, ErrInsufficientData
	}

	req, err := service.engine.Submit(ctx, kind, account, p)
	if err != nil {
		return model.PendingRequest{}, err
	}

	ctx, cancel := service.notifyContext(ctx)
	defer cancel()
	if err := service.notifier.Announce(ctx, account, req); err != nil {
		service.zaplog.Warn("announce failed",
			zap.String("account", account),
			zap.String("request", req.ID),
			zap.Error(err),
		)
	}
	return req, nil
}

func (service *service) GetBalance(account string) (model.BalanceSummary, error) {
	if account == "" {
		return model.BalanceSummary{}, ErrInsufficientData
	}
	summary, err := service.engine.BalanceSummary(account)
	return summary, mapErr(err)
}

func (service *service) GetPending(account string) (model.PendingSet, error) {
	if account == "" {
		return model.PendingSet{}, ErrInsufficientData
	}
	pending, err := service.engine.PendingRequests(account)
	return pending, mapErr(err)
}

func (service *service) GetHistory(account string, limit int) ([]model.Transaction, error) {
	if account == "" {
		return nil, ErrInsufficientData
	}
	history, err := service.engine.TransactionHistory(account, limit)
	return history, mapErr(err)
}

func (service *service) GetPlans() []model.Plan {
	return service.catalog.List()
}

func (service *service) GetPlan(id string) (model.Plan, error) {
	plan, err := service.catalog.Get(id)
	return plan, mapErr(err)
}

func (service *service) Approve(ctx context.Context, actor string, kind model.RequestKind, account, id string) (model.Notification, error) {
	if err := service.authorize(actor); err != nil {
		return model.Notification{}, err
	}
	n, err := service.engine.Approve(ctx, kind, account, id)
	if err != nil {
		return model.Notification{}, err
	}
	service.deliver(ctx, n)
	return n, nil
}

func (service *service) Reject(ctx context.Context, actor string, kind model.RequestKind, account, id, reason string) (model.Notification, error) {
	if err := service.authorize(actor); err != nil {
		return model.Notification{}, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return model.Notification{}, ErrInsufficientData
	}
	n, err := service.engine.Reject(ctx, kind, account, id, reason)
	if err != nil {
		return model.Notification{}, err
	}
	service.deliver(ctx, n)
	return n, nil
}

// deliver never fails the caller: the ledger has already committed.
func (service *service) deliver(ctx context.Context, n model.Notification) {
	ctx, cancel := service.notifyContext(ctx)
	defer cancel()
	if err := service.notifier.Notify(ctx, n); err != nil {
		service.zaplog.Warn("notification not delivered",
			zap.String("account", n.AccountKey),
			zap.String("request", n.RequestID),
			zap.Error(err),
		)
	}
}

func (service *service) notifyContext(ctx context.Context) (context.Context, context.CancelFunc) {
	// detached so a finished HTTP request does not cancel delivery
	ctx = context.WithoutCancel(ctx)
	if service.cfg.NotifyTimeout > 0 {
		return context.WithTimeout(ctx, service.cfg.NotifyTimeout)
	}
	return context.WithCancel(ctx)
}

func (service *service) SetBalance(ctx context.Context, actor, account string, balance int64, reason string) (model.Account, error) {
	if err := service.authorize(actor); err != nil {
		return model.Account{}, err
	}
	if balance < 0 {
		return model.Account{}, ErrInvalidData
	}
	acc, err := service.ledger.SetBalanceAbsolute(ctx, account, balance, strings.TrimSpace(reason))
	if err != nil {
		return model.Account{}, mapErr(err)
	}
	service.zaplog.Info("balance set by administrator",
		zap.String("actor", actor),
		zap.String("account", account),
		zap.Int64("balance", balance),
	)
	return acc, nil
}

func (service *service) SetBanned(ctx context.Context, actor, account string, banned bool) (model.Account, error) {
	if err := service.authorize(actor); err != nil {
		return model.Account{}, err
	}
	acc, err := service.ledger.SetBanned(ctx, account, banned)
	if err != nil {
		return model.Account{}, mapErr(err)
	}
	service.zaplog.Info("account ban changed",
		zap.String("actor", actor),
		zap.String("account", account),
		zap.Bool("banned", banned),
	)
	return acc, nil
}

func (service *service) AddNote(ctx context.Context, actor, account, note string) error {
	if err := service.authorize(actor); err != nil {
		return err
	}
	note = strings.TrimSpace(note)
	if note == "" {
		return ErrInsufficientData
	}
	_, err := service.ledger.AppendHistory(ctx, account, model.Transaction{
		Type:   model.TxAdminNote,
		Status: model.TxStatusNote,
		Note:   note,
	})
	return mapErr(err)
}

func (service *service) AddPlan(ctx context.Context, actor string, plan model.Plan) error {
	if err := service.authorize(actor); err != nil {
		return err
	}
	return mapErr(service.catalog.Add(ctx, plan))
}

func (service *service) UpdatePlan(ctx context.Context, actor string, plan model.Plan) error {
	if err := service.authorize(actor); err != nil {
		return err
	}
	return mapErr(service.catalog.Update(ctx, plan))
}

func (service *service) DeletePlan(ctx context.Context, actor, id string) error {
	if err := service.authorize(actor); err != nil {
		return err
	}
	return mapErr(service.catalog.Delete(ctx, id))
}

func (service *service) GetStats(actor string) (model.Stats, error) {
	if err := service.authorize(actor); err != nil {
		return model.Stats{}, err
	}

	var stats model.Stats
	for _, acc := range service.ledger.List() {
		stats.Users++
		if acc.IsBanned {
			stats.BannedUsers++
		} else {
			stats.ActiveUsers++
		}
		stats.TotalBalance += acc.Balance
		stats.PendingRequests += len(acc.PendingDeposits) + len(acc.PendingWithdrawals) + len(acc.PendingPlanRequests)

		for _, t := range acc.Transactions {
			switch t.Type {
			case model.TxDepositApproved:
				stats.TotalDeposits += t.Amount
			case model.TxWithdrawalApproved:
				stats.TotalWithdrawals += t.NetAmount + t.Fee
			case model.TxPlanPurchaseApproved, model.TxPlanUpgradeApproved:
				stats.TotalPlanPurchases++
			}
		}
	}
	return stats, nil
}

func (service *service) SearchAccounts(actor, query string) ([]model.AccountOverview, error) {
	if err := service.authorize(actor); err != nil {
		return nil, err
	}
	// поиск по логину, телефону и имени
	query = strings.ToLower(strings.TrimSpace(query))

	var found []model.AccountOverview
	for _, acc := range service.ledger.List() {
		if query == "" ||
			strings.Contains(strings.ToLower(acc.Key), query) ||
			strings.Contains(acc.Profile.Phone, query) ||
			strings.Contains(strings.ToLower(acc.Profile.FirstName), query) {
			found = append(found, acc.Overview())
		}
	}
	return found, nil
}

func (service *service) GetAccount(actor, account string, limit int) (model.AccountDetails, error) {
	if err := service.authorize(actor); err != nil {
		return model.AccountDetails{}, err
	}
	details, err := service.engine.AccountDetails(account, limit)
	return details, mapErr(err)
}

func (service *service) RecentTransactions(actor string, limit int) ([]model.AccountTransaction, error) {
	if err := service.authorize(actor); err != nil {
		return nil, err
	}

	var feed []model.AccountTransaction
	for _, acc := range service.ledger.List() {
		for _, t := range acc.Transactions {
			feed = append(feed, model.AccountTransaction{
				AccountKey:  acc.Key,
				FirstName:   acc.Profile.FirstName,
				Transaction: t,
			})
		}
	}
	slices.SortStableFunc(feed, func(a, b model.AccountTransaction) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && limit < len(feed) {
		feed = feed[:limit]
	}
	return feed, nil
}

func (service *service) authorize(actor string) error {
	if !service.admins.IsAdministrator(actor) {
		service.zaplog.Warn("administrator action refused", zap.String("actor", actor))
		return ErrForbidden
	}
	return nil
}

// Denials pass through so their reason reaches the user.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var d *reconcile.Denial
	if errors.As(err, &d) {
		return err
	}
	switch {
	case errors.Is(err, ledger.ErrAccountNotFound), errors.Is(err, catalog.ErrPlanNotFound):
		return ErrNotFound
	case errors.Is(err, catalog.ErrPlanExists):
		return ErrAlreadyExists
	case errors.Is(err, catalog.ErrInvalidPlan):
		return ErrInvalidData
	default:
		return err
	}
}
