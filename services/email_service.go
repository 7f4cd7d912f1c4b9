package services

import (
	"context"
	"fmt"
	"time"

	"bancomunay/config"
	"bancomunay/models"
	"bancomunay/utils"

	"github.com/shopspring/decimal"
	"gopkg.in/gomail.v2"
)

// Movement описывает движение средств для уведомления владельца счета
type Movement struct {
	UserID        string
	AccountNumber string
	Kind          models.TransactionKind
	Amount        decimal.Decimal
	Balance       decimal.Decimal
	Incoming      bool
}

// Notifier получает движения уже после фиксации транзакции.
// Ошибка доставки не влияет на результат операции.
type Notifier interface {
	NotifyMovement(m Movement)
}

// NopNotifier ничего не отправляет
type NopNotifier struct{}

func (NopNotifier) NotifyMovement(Movement) {}

// maxInflightEmails ограничивает число одновременных отправок.
// gomail не задает дедлайн на SMTP диалог, поэтому зависший сервер
// удерживает не больше этого числа горутин, остальные письма отбрасываются.
const maxInflightEmails = 8

// EmailService отправляет уведомления по SMTP
type EmailService struct {
	dialer     *gomail.Dialer
	from       string
	identities IdentityProvider
	timeout    time.Duration
	inflight   chan struct{}
	send       func(to, subject, body string) error
}

// NewNotifier возвращает EmailService или NopNotifier, если SMTP не настроен
func NewNotifier(cfg *config.Config, identities IdentityProvider) Notifier {
	if cfg.SMTP.Host == "" {
		return NopNotifier{}
	}
	return NewEmailService(cfg, identities)
}

// NewEmailService создает новый экземпляр EmailService
func NewEmailService(cfg *config.Config, identities IdentityProvider) *EmailService {
	dialer := gomail.NewDialer(
		cfg.SMTP.Host,
		cfg.SMTP.Port,
		cfg.SMTP.Username,
		cfg.SMTP.Password,
	)

	s := &EmailService{
		dialer:     dialer,
		from:       cfg.SMTP.From,
		identities: identities,
		timeout:    10 * time.Second,
		inflight:   make(chan struct{}, maxInflightEmails),
	}
	s.send = s.SendEmail
	return s
}

// SendEmail отправляет email
func (s *EmailService) SendEmail(to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("ошибка отправки email: %v", err)
	}

	return nil
}

// NotifyMovement отправляет уведомление в фоне, чтобы не задерживать ответ
func (s *EmailService) NotifyMovement(m Movement) {
	select {
	case s.inflight <- struct{}{}:
	default:
		utils.LogError("Notification for user %s dropped: %d e-mails in flight", m.UserID, cap(s.inflight))
		return
	}

	go func() {
		defer func() { <-s.inflight }()
		s.deliver(m)
	}()
}

// deliver находит адрес владельца и отправляет письмо
func (s *EmailService) deliver(m Movement) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	identity, err := s.identities.GetIdentity(ctx, m.UserID)
	if err != nil {
		utils.LogError("Notification skipped for user %s: %v", m.UserID, err)
		return
	}

	subject, body := renderMovement(m, time.Now())
	if err := s.send(identity.Email, subject, body); err != nil {
		utils.LogError("Notification to %s failed: %v", identity.Email, err)
	}
}

// renderMovement формирует тему и тело письма
func renderMovement(m Movement, at time.Time) (string, string) {
	subject := "Movimiento en su cuenta"
	direction := "Cargo"
	if m.Incoming {
		direction = "Abono"
	}
	body := fmt.Sprintf(`
		<h2>Movimiento en su cuenta</h2>
		<p>Cuenta: %s</p>
		<p>Tipo: %s (%s)</p>
		<p>Monto: %s</p>
		<p>Saldo: %s</p>
		<p>Fecha: %s</p>
	`, m.AccountNumber, m.Kind, direction, m.Amount.StringFixed(2), m.Balance.StringFixed(2), at.Format("02.01.2006 15:04:05"))
	return subject, body
}
