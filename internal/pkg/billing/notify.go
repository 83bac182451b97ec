package billing

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ManuelReschke/SubGate/app/models"
	"github.com/ManuelReschke/SubGate/internal/pkg/metrics"
	"github.com/gofiber/fiber/v2/log"
)

const defaultMessageTimeout = 10 * time.Second

// MessageSender delivers a chat message to a single chat.
type MessageSender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// OperatorDirectory lists the chat ids that receive operator messages.
type OperatorDirectory interface {
	OperatorChatIDs(ctx context.Context) ([]int64, error)
}

// Notifier sends user and operator messages. Every send is best effort: errors
// are logged and counted, never returned.
type Notifier struct {
	Sender        MessageSender
	Operators     OperatorDirectory
	ChatInviteURL string
	Timeout       time.Duration
}

// SuccessNotice describes a completed payment for the user and operator messages.
type SuccessNotice struct {
	Subscription *models.Subscription
	Payment      *models.Payment
	Window       Window
	Grants       GrantReport
	Source       string
}

func (n *Notifier) PaymentConfirmed(ctx context.Context, notice SuccessNotice) {
	user := notice.Subscription.User
	n.sendUser(ctx, user, successUserText(notice, n.ChatInviteURL))
	n.broadcast(ctx, successOperatorText(notice))
}

func (n *Notifier) PaymentFailed(ctx context.Context, sub *models.Subscription, payment *models.Payment) {
	text := fmt.Sprintf("❌ Оплата подписки «%s» не завершена: %s.\nВы можете оформить новый платеж в боте.",
		sub.Tariff.Name, payment.ErrorMessage)
	n.sendUser(ctx, sub.User, text)
}

func (n *Notifier) PaymentRefunded(ctx context.Context, sub *models.Subscription, payment *models.Payment) {
	n.sendUser(ctx, sub.User, fmt.Sprintf("↩️ Платеж по подписке «%s» возвращен, подписка отменена.", sub.Tariff.Name))

	user := sub.User
	var b strings.Builder
	b.WriteString("↩️ Возврат платежа\n")
	fmt.Fprintf(&b, "Пользователь: %s\n", user.DisplayName())
	fmt.Fprintf(&b, "Тариф: %s\n", sub.Tariff.Name)
	fmt.Fprintf(&b, "Платеж: #%d (%s)\n", payment.ID, payment.ExternalID)
	fmt.Fprintf(&b, "Telegram ID: %s\n", telegramIDText(user))
	fmt.Fprintf(&b, "Discord ID: %s\n", orDash(user.DiscordID))
	fmt.Fprintf(&b, "Email (база знаний): %s\n", orDash(user.Email))
	fmt.Fprintf(&b, "Email (хранилище): %s\n", orDash(user.StorageEmail))
	b.WriteString("Доступы не отозваны автоматически, отзовите их вручную.")
	n.broadcast(ctx, b.String())
}

func (n *Notifier) PartialPayment(ctx context.Context, sub *models.Subscription, ev *IPNEvent) {
	remaining := ev.Remaining()
	if remaining <= 0 {
		return
	}
	currency := strings.ToUpper(strings.TrimSpace(ev.PayCurrency))
	text := fmt.Sprintf("⚠️ Платеж получен не полностью. Осталось доплатить %s %s.\nПереведите оставшуюся сумму на тот же адрес: %s",
		formatAmount(remaining), currency, orDash(ev.PayAddress))
	n.sendUser(ctx, sub.User, text)
}

func successUserText(notice SuccessNotice, inviteURL string) string {
	sub := notice.Subscription
	user := sub.User
	var b strings.Builder
	if notice.Window.Renewal {
		fmt.Fprintf(&b, "✅ Подписка «%s» продлена до %s.\n", sub.Tariff.Name, formatDate(notice.Window.End))
	} else {
		fmt.Fprintf(&b, "✅ Оплата подтверждена! Подписка «%s» активна до %s.\n", sub.Tariff.Name, formatDate(notice.Window.End))
	}

	g := notice.Grants
	switch {
	case g.ChatRole.Granted:
		b.WriteString("Роль в чате выдана.\n")
	case !user.HasDiscord() && inviteURL != "":
		fmt.Fprintf(&b, "Вступите в чат: %s\n", inviteURL)
	case g.ChatRole.Attempted:
		b.WriteString("Роль в чате выдать не удалось, мы уже разбираемся.\n")
	}
	if g.KnowledgeBase.Granted {
		fmt.Fprintf(&b, "Приглашение в базу знаний отправлено на %s.\n", user.Email)
	} else if g.KnowledgeBase.Attempted {
		b.WriteString("Приглашение в базу знаний не отправлено, мы уже разбираемся.\n")
	}
	if g.FileStorage.Granted {
		fmt.Fprintf(&b, "Доступ к хранилищу отправлен на %s.\n", user.StorageEmail)
	} else if g.FileStorage.Attempted {
		b.WriteString("Доступ к хранилищу не выдан, мы уже разбираемся.\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func successOperatorText(notice SuccessNotice) string {
	sub := notice.Subscription
	p := notice.Payment
	user := sub.User
	var b strings.Builder
	if notice.Window.Renewal {
		b.WriteString("🔁 Продление подписки\n")
	} else {
		b.WriteString("💰 Новая покупка\n")
	}
	fmt.Fprintf(&b, "Пользователь: %s (Telegram ID: %s)\n", user.DisplayName(), telegramIDText(user))
	fmt.Fprintf(&b, "Тариф: %s, %d мес.\n", sub.Tariff.Name, p.Period())
	fmt.Fprintf(&b, "Сумма: %s %s\n", formatAmount(p.Amount), strings.ToUpper(p.Currency))
	if p.ProviderData.ActuallyPaid > 0 {
		fmt.Fprintf(&b, "Оплачено: %s %s\n", formatAmount(p.ProviderData.ActuallyPaid), strings.ToUpper(p.ProviderData.PayCurrency))
	}
	fmt.Fprintf(&b, "Действует до: %s\n", formatDate(notice.Window.End))
	fmt.Fprintf(&b, "Чат: %s, база знаний: %s, хранилище: %s\n",
		grantMark(notice.Grants.ChatRole), grantMark(notice.Grants.KnowledgeBase), grantMark(notice.Grants.FileStorage))
	fmt.Fprintf(&b, "Источник: %s", notice.Source)
	return b.String()
}

func (n *Notifier) sendUser(ctx context.Context, user models.User, text string) {
	if n.Sender == nil || !user.HasTelegram() {
		return
	}
	n.send(ctx, "user", *user.TelegramID, text)
}

func (n *Notifier) broadcast(ctx context.Context, text string) {
	if n.Sender == nil || n.Operators == nil {
		return
	}
	ids, err := n.Operators.OperatorChatIDs(ctx)
	if err != nil {
		log.Warnf("[Billing] load operator chat ids: %v", err)
		return
	}
	for _, id := range ids {
		n.send(ctx, "operator", id, text)
	}
}

func (n *Notifier) send(parent context.Context, audience string, chatID int64, text string) {
	timeout := n.Timeout
	if timeout <= 0 {
		timeout = defaultMessageTimeout
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("send panicked: %v", r)
			}
		}()
		return n.Sender.SendMessage(ctx, chatID, text)
	}()
	if err != nil {
		log.Warnf("[Billing] %s message to %d failed: %v", audience, chatID, err)
	}
	metrics.Notifications.WithLabelValues(audience, metrics.Result(err)).Inc()
}

func grantMark(r GrantResult) string {
	switch {
	case !r.Attempted:
		return "-"
	case r.Granted:
		return "✅"
	default:
		return "❌"
	}
}

func telegramIDText(u models.User) string {
	if u.TelegramID == nil {
		return "-"
	}
	return strconv.FormatInt(*u.TelegramID, 10)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func formatDate(t time.Time) string {
	return t.Format("02.01.2006")
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
