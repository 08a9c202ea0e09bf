package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/iurnickita/paybot/internal/admin"
	"github.com/iurnickita/paybot/internal/auth"
	"github.com/iurnickita/paybot/internal/model"
	"github.com/iurnickita/paybot/internal/session"
)

const defaultHistory = 10

func (b *Bot) register(ctx context.Context, msg *tgbotapi.Message, args []string) string {
	if len(args) < 4 {
		return "Usage: /register <username> <password> <phone> <name>"
	}
	defer b.forget(msg)

	acc, err := b.registrar.Register(ctx, auth.Registration{
		Username:  args[0],
		Password:  args[1],
		Phone:     args[2],
		FirstName: strings.Join(args[3:], " "),
	})
	if err != nil {
		return authErrorText(err)
	}
	if err := b.bind(ctx, acc.Key, msg.Chat.ID); err != nil {
		return errorText(err)
	}
	return fmt.Sprintf("Welcome, %s! Your account %s is ready.", acc.Profile.FirstName, acc.Key)
}

func (b *Bot) login(ctx context.Context, msg *tgbotapi.Message, args []string) string {
	if len(args) != 2 {
		return "Usage: /login <username> <password>"
	}
	defer b.forget(msg)

	acc, err := b.registrar.Login(args[0], args[1])
	if err != nil {
		return authErrorText(err)
	}
	if err := b.bind(ctx, acc.Key, msg.Chat.ID); err != nil {
		return errorText(err)
	}
	return fmt.Sprintf("Logged in as %s.", acc.Key)
}

// bind attaches the chat to key, detaching whichever account used it before.
func (b *Bot) bind(ctx context.Context, key string, chatID int64) error {
	if prev, ok := b.accounts.FindByChat(chatID); ok && prev != key {
		if err := b.accounts.BindChat(ctx, prev, 0); err != nil {
			return err
		}
		b.sessions.Cancel(prev)
	}
	return b.accounts.BindChat(ctx, key, chatID)
}

func (b *Bot) logout(ctx context.Context, msg *tgbotapi.Message) string {
	account, ok := b.accounts.FindByChat(msg.Chat.ID)
	if !ok {
		return "You are not logged in."
	}
	b.sessions.Cancel(account)
	if err := b.accounts.BindChat(ctx, account, 0); err != nil {
		return errorText(err)
	}
	return "Logged out."
}

func authErrorText(err error) string {
	switch {
	case errors.Is(err, auth.ErrInvalidUsername), errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, auth.ErrInvalidPhone), errors.Is(err, auth.ErrInvalidName),
		errors.Is(err, auth.ErrInvalidDateOfBirth), errors.Is(err, auth.ErrUserExists),
		errors.Is(err, auth.ErrPhoneTaken), errors.Is(err, auth.ErrInvalidCredentials):
		return err.Error() + "."
	case errors.Is(err, auth.ErrBanned):
		return "Your account has been suspended by admin."
	}
	return errorText(err)
}

var flowCommands = map[string]session.Flow{
	"deposit":  session.FlowDeposit,
	"withdraw": session.FlowWithdrawal,
	"buy":      session.FlowPlanPurchase,
	"upgrade":  session.FlowPlanUpgrade,
}

func (b *Bot) userCommand(command, account string, args []string) string {
	if flow, ok := flowCommands[command]; ok {
		r, err := b.sessions.Start(account, flow)
		if err != nil {
			return errorText(err)
		}
		if flow == session.FlowPlanPurchase || flow == session.FlowPlanUpgrade {
			return renderPlans(b.service.GetPlans()) + "\n\n" + r.Text
		}
		return r.Text
	}

	switch command {
	case "cancel":
		if b.sessions.Cancel(account) {
			return "Cancelled."
		}
		return "Nothing to cancel."

	case "balance":
		summary, err := b.service.GetBalance(account)
		if err != nil {
			return errorText(err)
		}
		return renderBalance(summary)

	case "pending":
		pending, err := b.service.GetPending(account)
		if err != nil {
			return errorText(err)
		}
		return renderPending(pending)

	case "history":
		limit, ok := countArg(args, defaultHistory)
		if !ok {
			return "Usage: /history [n]"
		}
		history, err := b.service.GetHistory(account, limit)
		if err != nil {
			return errorText(err)
		}
		return renderHistory(history)
	}
	return ""
}

func (b *Bot) adminCommand(ctx context.Context, command string, userID int64, args []string) string {
	actor := admin.ChatActor(userID)

	switch command {
	case "approve":
		if len(args) != 3 {
			return "Usage: /approve <kind> <account> <id>"
		}
		n, err := b.service.Approve(ctx, actor, model.RequestKind(args[0]), args[1], args[2])
		if err != nil {
			return errorText(err)
		}
		return fmt.Sprintf("Approved %s for %s. Balance: %s", n.RequestID, n.AccountKey, model.FormatAmount(n.NewBalance))

	case "reject":
		if len(args) < 4 {
			return "Usage: /reject <kind> <account> <id> <reason>"
		}
		n, err := b.service.Reject(ctx, actor, model.RequestKind(args[0]), args[1], args[2], strings.Join(args[3:], " "))
		if err != nil {
			return errorText(err)
		}
		return fmt.Sprintf("Rejected %s for %s. Balance: %s", n.RequestID, n.AccountKey, model.FormatAmount(n.NewBalance))

	case "setbalance":
		if len(args) < 2 {
			return "Usage: /setbalance <account> <amount> [reason]"
		}
		amount, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return "Amount must be a whole number."
		}
		acc, err := b.service.SetBalance(ctx, actor, args[0], amount, strings.Join(args[2:], " "))
		if err != nil {
			return errorText(err)
		}
		return fmt.Sprintf("Balance of %s is now %s.", acc.Key, model.FormatAmount(acc.Balance))

	case "ban", "unban":
		if len(args) != 1 {
			return fmt.Sprintf("Usage: /%s <account>", command)
		}
		acc, err := b.service.SetBanned(ctx, actor, args[0], command == "ban")
		if err != nil {
			return errorText(err)
		}
		if acc.IsBanned {
			return fmt.Sprintf("%s is banned.", acc.Key)
		}
		return fmt.Sprintf("%s is unbanned.", acc.Key)

	case "note":
		if len(args) < 2 {
			return "Usage: /note <account> <text>"
		}
		if err := b.service.AddNote(ctx, actor, args[0], strings.Join(args[1:], " ")); err != nil {
			return errorText(err)
		}
		return "Note added."

	case "stats":
		stats, err := b.service.GetStats(actor)
		if err != nil {
			return errorText(err)
		}
		return renderStats(stats)

	case "users":
		accounts, err := b.service.SearchAccounts(actor, strings.Join(args, " "))
		if err != nil {
			return errorText(err)
		}
		return renderAccounts(accounts)

	case "user":
		if len(args) == 0 || len(args) > 2 {
			return "Usage: /user <account> [n]"
		}
		limit, ok := countArg(args[1:], defaultHistory)
		if !ok {
			return "Usage: /user <account> [n]"
		}
		details, err := b.service.GetAccount(actor, args[0], limit)
		if err != nil {
			return errorText(err)
		}
		return renderAccount(details)

	case "transactions":
		limit, ok := countArg(args, defaultHistory)
		if !ok {
			return "Usage: /transactions [n]"
		}
		feed, err := b.service.RecentTransactions(actor, limit)
		if err != nil {
			return errorText(err)
		}
		return renderFeed(feed)
	}

	b.zaplog.Debug("unhandled admin command", zap.String("command", command))
	return ""
}

// countArg reads an optional positive count from the first argument.
func countArg(args []string, def int) (int, bool) {
	if len(args) == 0 {
		return def, true
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
