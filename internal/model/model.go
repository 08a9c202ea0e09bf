package model

import (
	"math"
	"strconv"
	"time"
)

const Currency = "PKR"

// FormatAmount renders an amount with thousands separators, e.g. "20,000 PKR".
func FormatAmount(amount int64) string {
	digits := strconv.FormatInt(amount, 10)
	sign := ""
	if amount < 0 {
		sign, digits = "-", digits[1:]
	}
	out := make([]byte, 0, len(digits)+len(digits)/3)
	for i := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, digits[i])
	}
	return sign + string(out) + " " + Currency
}

// Учетные записи

type Account struct {
	Key                  string               `json:"key"`
	Profile              Profile              `json:"profile"`
	ChatID               int64                `json:"chatId,omitempty"`
	Balance              int64                `json:"balance"`
	IsBanned             bool                 `json:"isBanned"`
	Transactions         []Transaction        `json:"transactions"`
	PendingDeposits      []PendingRequest     `json:"pendingDeposits"`
	PendingWithdrawals   []PendingRequest     `json:"pendingWithdrawals"`
	PendingPlanRequests  []PendingRequest     `json:"pendingPlanRequests"`
	DailyDeposits        DailyCounter         `json:"dailyDeposits"`
	DailyWithdrawals     DailyCounter         `json:"dailyWithdrawals"`
	ProcessedRequestKeys map[string]time.Time `json:"processedRequestKeys"`
	ActivePlans          []ActivePlan         `json:"activePlans"`
}

type Profile struct {
	FirstName    string    `json:"firstName"`
	DateOfBirth  string    `json:"dob,omitempty"`
	Phone        string    `json:"phone"`
	PasswordHash string    `json:"passwordHash"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// DailyCounter is valid only for Date; a different date means zero activity.
type DailyCounter struct {
	Date   string `json:"date"`
	Count  int    `json:"count"`
	Amount int64  `json:"amount"`
}

// Clone returns a deep copy. Committed accounts are never mutated in place.
func (a *Account) Clone() *Account {
	c := *a
	c.Transactions = append([]Transaction(nil), a.Transactions...)
	c.PendingDeposits = append([]PendingRequest(nil), a.PendingDeposits...)
	c.PendingWithdrawals = append([]PendingRequest(nil), a.PendingWithdrawals...)
	c.PendingPlanRequests = append([]PendingRequest(nil), a.PendingPlanRequests...)
	c.ActivePlans = append([]ActivePlan(nil), a.ActivePlans...)
	c.ProcessedRequestKeys = make(map[string]time.Time, len(a.ProcessedRequestKeys))
	for k, v := range a.ProcessedRequestKeys {
		c.ProcessedRequestKeys[k] = v
	}
	for i := range c.ActivePlans {
		c.ActivePlans[i].Features = append([]string(nil), a.ActivePlans[i].Features...)
	}
	return &c
}

func (a *Account) Normalize() {
	if a.Transactions == nil {
		a.Transactions = []Transaction{}
	}
	if a.PendingDeposits == nil {
		a.PendingDeposits = []PendingRequest{}
	}
	if a.PendingWithdrawals == nil {
		a.PendingWithdrawals = []PendingRequest{}
	}
	if a.PendingPlanRequests == nil {
		a.PendingPlanRequests = []PendingRequest{}
	}
	if a.ActivePlans == nil {
		a.ActivePlans = []ActivePlan{}
	}
	if a.ProcessedRequestKeys == nil {
		a.ProcessedRequestKeys = map[string]time.Time{}
	}
}

func (a *Account) Pending(kind RequestKind) *[]PendingRequest {
	switch kind {
	case KindDeposit:
		return &a.PendingDeposits
	case KindWithdrawal:
		return &a.PendingWithdrawals
	case KindPlanPurchase, KindPlanUpgrade:
		return &a.PendingPlanRequests
	}
	return nil
}

// Заявки

type RequestKind string

const (
	KindDeposit      RequestKind = "deposit"
	KindWithdrawal   RequestKind = "withdrawal"
	KindPlanPurchase RequestKind = "plan-purchase"
	KindPlanUpgrade  RequestKind = "plan-upgrade"
)

func (k RequestKind) Valid() bool {
	switch k {
	case KindDeposit, KindWithdrawal, KindPlanPurchase, KindPlanUpgrade:
		return true
	}
	return false
}

// Reserves reports whether submission debits the amount up front.
func (k RequestKind) Reserves() bool {
	return k == KindWithdrawal || k == KindPlanPurchase || k == KindPlanUpgrade
}

type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusApproved RequestStatus = "approved"
	StatusRejected RequestStatus = "rejected"
)

type PendingRequest struct {
	ID             string        `json:"id"`
	Kind           RequestKind   `json:"kind"`
	Amount         int64         `json:"amount"`
	Status         RequestStatus `json:"status"`
	IdempotencyKey string        `json:"idempotencyKey"`
	CreatedAt      time.Time     `json:"createdAt"`

	// deposit
	Method string `json:"method,omitempty"`
	Proof  string `json:"proof,omitempty"`
	Bonus  int64  `json:"bonus,omitempty"`

	// withdrawal
	Destination string `json:"destination,omitempty"`
	Fee         int64  `json:"fee,omitempty"`
	NetAmount   int64  `json:"netAmount,omitempty"`

	// plan purchase and upgrade
	Plan       *Plan  `json:"plan,omitempty"`
	FromPlanID string `json:"fromPlanId,omitempty"`
}

type PendingSet struct {
	Deposits     []PendingRequest `json:"deposits"`
	Withdrawals  []PendingRequest `json:"withdrawals"`
	PlanRequests []PendingRequest `json:"planRequests"`
}

func (p PendingSet) Len() int {
	return len(p.Deposits) + len(p.Withdrawals) + len(p.PlanRequests)
}

// История операций

type TransactionType string

const (
	TxDepositApproved      TransactionType = "Deposit approved"
	TxDepositRejected      TransactionType = "Deposit rejected"
	TxWithdrawalReserved   TransactionType = "Withdrawal reserved"
	TxWithdrawalApproved   TransactionType = "Withdrawal approved"
	TxWithdrawalRejected   TransactionType = "Withdrawal rejected"
	TxPlanPurchaseReserved TransactionType = "Plan purchase reserved"
	TxPlanPurchaseApproved TransactionType = "Plan purchase approved"
	TxPlanPurchaseRejected TransactionType = "Plan purchase rejected"
	TxPlanUpgradeReserved  TransactionType = "Plan upgrade reserved"
	TxPlanUpgradeApproved  TransactionType = "Plan upgrade approved"
	TxPlanUpgradeRejected  TransactionType = "Plan upgrade rejected"
	TxAdminBalanceUpdate   TransactionType = "Admin balance update"
	TxAdminNote            TransactionType = "Admin note"
)

const (
	TxStatusReserved     = "reserved"
	TxStatusApproved     = "approved"
	TxStatusRejected     = "rejected"
	TxStatusAdminUpdated = "admin_updated"
	TxStatusNote         = "note"
)

// Transaction is an immutable history entry. Amount is the signed balance delta.
type Transaction struct {
	ID           string          `json:"id"`
	RequestID    string          `json:"requestId,omitempty"`
	Type         TransactionType `json:"type"`
	Status       string          `json:"status"`
	Amount       int64           `json:"amount"`
	Bonus        int64           `json:"bonus,omitempty"`
	Fee          int64           `json:"fee,omitempty"`
	NetAmount    int64           `json:"netAmount,omitempty"`
	Method       string          `json:"method,omitempty"`
	Proof        string          `json:"proof,omitempty"`
	Destination  string          `json:"destination,omitempty"`
	PlanID       string          `json:"planId,omitempty"`
	Reason       string          `json:"reason,omitempty"`
	Note         string          `json:"note,omitempty"`
	BalanceAfter int64           `json:"balanceAfter"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// Тарифы

type Plan struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Price        int64    `json:"price"`
	DurationDays int      `json:"durationDays"`
	LinkCapacity int      `json:"linkCapacity"`
	Features     []string `json:"features"`
}

// ActivePlan stores only the activation and duration; expiry is derived on read.
type ActivePlan struct {
	PlanID       string    `json:"planId"`
	Name         string    `json:"name"`
	Price        int64     `json:"price"`
	LinkCapacity int       `json:"linkCapacity"`
	Features     []string  `json:"features"`
	ActivatedAt  time.Time `json:"activatedDate"`
	DurationDays int       `json:"durationDays"`
}

func (p ActivePlan) ExpiresAt() time.Time {
	return p.ActivatedAt.AddDate(0, 0, p.DurationDays)
}

// DaysLeft rounds the remaining time up to whole days; zero once expired.
func (p ActivePlan) DaysLeft(now time.Time) int {
	left := p.ExpiresAt().Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Hours() / 24))
}

func (p ActivePlan) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt())
}

// Запросы и уведомления

type PlanStatus struct {
	ActivePlan
	ExpiresAt time.Time `json:"expiresAt"`
	DaysLeft  int       `json:"daysLeft"`
	Expired   bool      `json:"expired"`
}

type BalanceSummary struct {
	AccountKey         string       `json:"account"`
	Balance            int64        `json:"balance"`
	IsBanned           bool         `json:"isBanned"`
	DailyDeposits      DailyCounter `json:"dailyDeposits"`
	DailyWithdrawals   DailyCounter `json:"dailyWithdrawals"`
	DepositsLeft       int          `json:"depositsLeft"`
	DepositAmountLeft  int64        `json:"depositAmountLeft"`
	WithdrawalsLeft    int          `json:"withdrawalsLeft"`
	WithdrawAmountLeft int64        `json:"withdrawAmountLeft"`
	PendingCount       int          `json:"pendingCount"`
	Plans              []PlanStatus `json:"plans"`
}

type Outcome string

const (
	OutcomeApproved Outcome = "approved"
	OutcomeRejected Outcome = "rejected"
)

type Notification struct {
	AccountKey  string      `json:"account"`
	ChatID      int64       `json:"chatId,omitempty"`
	Kind        RequestKind `json:"kind"`
	RequestID   string      `json:"requestId"`
	Outcome     Outcome     `json:"outcome"`
	Amount      int64       `json:"amount"`
	Bonus       int64       `json:"bonus,omitempty"`
	Fee         int64       `json:"fee,omitempty"`
	NetAmount   int64       `json:"netAmount,omitempty"`
	Method      string      `json:"method,omitempty"`
	Proof       string      `json:"proof,omitempty"`
	Destination string      `json:"destination,omitempty"`
	PlanName    string      `json:"planName,omitempty"`
	DaysLeft    int         `json:"daysLeft,omitempty"`
	Reason      string      `json:"reason,omitempty"`
	OldBalance  int64       `json:"oldBalance"`
	NewBalance  int64       `json:"newBalance"`
	At          time.Time   `json:"at"`
}

type Stats struct {
	Users              int   `json:"users"`
	ActiveUsers        int   `json:"activeUsers"`
	BannedUsers        int   `json:"bannedUsers"`
	TotalBalance       int64 `json:"totalBalance"`
	TotalDeposits      int64 `json:"totalDeposits"`
	TotalWithdrawals   int64 `json:"totalWithdrawals"`
	TotalPlanPurchases int64 `json:"totalPlanPurchases"`
	PendingRequests    int   `json:"pendingRequests"`
}

// AccountOverview is an account as the administrator sees it. Credentials are left out.
type AccountOverview struct {
	Key          string    `json:"account"`
	FirstName    string    `json:"firstName"`
	Phone        string    `json:"phone"`
	DateOfBirth  string    `json:"dob,omitempty"`
	RegisteredAt time.Time `json:"registeredAt"`
	Balance      int64     `json:"balance"`
	IsBanned     bool      `json:"isBanned"`
	PendingCount int       `json:"pendingCount"`
}

func (a *Account) Overview() AccountOverview {
	return AccountOverview{
		Key:          a.Key,
		FirstName:    a.Profile.FirstName,
		Phone:        a.Profile.Phone,
		DateOfBirth:  a.Profile.DateOfBirth,
		RegisteredAt: a.Profile.RegisteredAt,
		Balance:      a.Balance,
		IsBanned:     a.IsBanned,
		PendingCount: len(a.PendingDeposits) + len(a.PendingWithdrawals) + len(a.PendingPlanRequests),
	}
}

type AccountDetails struct {
	AccountOverview
	Plans        []PlanStatus  `json:"plans"`
	Pending      PendingSet    `json:"pending"`
	Transactions []Transaction `json:"transactions"`
}

type AccountTransaction struct {
	AccountKey string `json:"account"`
	FirstName  string `json:"firstName"`
	Transaction
}
