package notification

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"tradesignals/internal/model"
)

// EmailNotifier sends one plain-text message per signal over SMTP with
// STARTTLS (the usual port 587 setup).
type EmailNotifier struct {
	Host string
	Port int
	User string
	Pass string
	From string
	To   []string
}

func (n *EmailNotifier) Notify(_ context.Context, sig model.Signal) error {
	if len(n.To) == 0 {
		return fmt.Errorf("email: no recipients configured")
	}

	msg := n.render(sig)
	addr := fmt.Sprintf("%s:%d", n.Host, n.Port)
	auth := smtp.PlainAuth("", n.User, n.Pass, n.Host)
	if err := smtp.SendMail(addr, auth, n.From, n.To, []byte(msg)); err != nil {
		return fmt.Errorf("email: send: %w", err)
	}
	return nil
}

func (n *EmailNotifier) render(sig model.Signal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", n.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(n.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject(sig))
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")

	fmt.Fprintf(&b, "Symbol:     %s\r\n", sig.Symbol)
	fmt.Fprintf(&b, "Timeframe:  %s\r\n", sig.Timeframe)
	fmt.Fprintf(&b, "Side:       %s\r\n", sig.Side)
	fmt.Fprintf(&b, "Action:     %s\r\n", sig.Action)
	fmt.Fprintf(&b, "Price:      %.2f\r\n", sig.Price)
	fmt.Fprintf(&b, "Conditions: %d/3 (%s)\r\n", sig.ConditionsMet, sig.Summary)
	if sig.PnL != nil {
		fmt.Fprintf(&b, "\r\nOpened at:  %.2f\r\n", sig.PnL.OpeningPrice)
		fmt.Fprintf(&b, "Closed at:  %.2f\r\n", sig.PnL.ClosingPrice)
		fmt.Fprintf(&b, "P&L:        %+.2f (%+.2f%%)\r\n", sig.PnL.Dollar, sig.PnL.Percent)
		fmt.Fprintf(&b, "Total P&L:  %+.2f\r\n", sig.PnL.Total)
	}
	fmt.Fprintf(&b, "\r\nTime: %s\r\n", sig.At.Format(time.RFC3339))
	return b.String()
}
