package config

import (
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	StoreMemory = "memory"
	StoreRedis  = "redis"

	TransportLog     = "log"
	TransportSMTP    = "smtp"
	TransportMailgun = "mailgun"
	TransportAMQP    = "amqp"
)

func (b BaseConfig) Validate() error {
	return validation.Errors{
		"persistence": b.Persistence.Validate(),
		"password":    b.Password.Validate(),
		"lockout":     b.Lockout.Validate(),
		"tokens":      b.Tokens.Validate(),
		"session":     b.Session.Validate(),
		"email":       b.Email.Validate(),
		"server":      b.Server.Validate(),
	}.Filter()
}

func (s Server) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Addr, validation.Required),
		validation.Field(&s.BaseURL, validation.Required, is.URL),
		validation.Field(&s.LoginRateLimit, validation.Min(0)),
		validation.Field(&s.LoginRateWindowExpression, validation.By(durationExpression)),
	)
}

func (p Persistence) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Driver, validation.Required, validation.In(DriverSQLite, DriverPostgres)),
		validation.Field(&p.DSN, validation.Required),
		validation.Field(&p.PingTimeoutExpression, validation.By(durationExpression)),
	)
}

func (p Password) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.MinLength, validation.Min(1)),
		validation.Field(&p.BcryptCost, validation.Min(0), validation.Max(31)),
	)
}

func (l Lockout) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.MaxFailedAttempts, validation.Required, validation.Min(1)),
		validation.Field(&l.DurationExpression, validation.Required, validation.By(durationExpression)),
	)
}

func (t Tokens) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.SigningKey, validation.Required, validation.Length(16, 0)),
		validation.Field(&t.ConfirmationTTLExpression, validation.Required, validation.By(durationExpression)),
		validation.Field(&t.ResetTTLExpression, validation.Required, validation.By(durationExpression)),
	)
}

func (s Session) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.CookieName, validation.Required),
		validation.Field(&s.ExpirationExpression, validation.Required, validation.By(durationExpression)),
		validation.Field(&s.Store, validation.In(StoreMemory, StoreRedis)),
	)
}

func (e Email) Validate() error {
	err := validation.ValidateStruct(&e,
		validation.Field(&e.Transport, validation.Required,
			validation.In(TransportLog, TransportSMTP, TransportMailgun, TransportAMQP)),
		validation.Field(&e.From, validation.Required, is.Email),
		validation.Field(&e.TimeoutExpression, validation.By(durationExpression)),
	)
	if err != nil {
		return err
	}

	switch e.Transport {
	case TransportSMTP:
		return e.SMTP.Validate()
	case TransportMailgun:
		return e.Mailgun.Validate()
	case TransportAMQP:
		return e.AMQP.Validate()
	}
	return nil
}

func (s SMTP) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Host, validation.Required),
		validation.Field(&s.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

func (m Mailgun) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Domain, validation.Required),
		validation.Field(&m.APIKey, validation.Required),
	)
}

func (a AMQP) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.URL, validation.Required),
		validation.Field(&a.Queue, validation.Required),
	)
}

func (s Server) GetLoginRateWindow() time.Duration {
	return mustParse(s.LoginRateWindowExpression, time.Minute)
}

func (p Persistence) GetPingTimeout() time.Duration {
	return mustParse(p.PingTimeoutExpression, 5*time.Second)
}

func (l Lockout) GetLockoutDuration() time.Duration {
	return mustParse(l.DurationExpression, 5*time.Minute)
}

func (t Tokens) GetConfirmationTTL() time.Duration {
	return mustParse(t.ConfirmationTTLExpression, 7*24*time.Hour)
}

func (t Tokens) GetResetTTL() time.Duration {
	return mustParse(t.ResetTTLExpression, 24*time.Hour)
}

func (s Session) GetExpiration() time.Duration {
	return mustParse(s.ExpirationExpression, 30*24*time.Hour)
}

func (e Email) GetTimeout() time.Duration {
	return mustParse(e.TimeoutExpression, 10*time.Second)
}

func mustParse(expr string, def time.Duration) time.Duration {
	if expr == "" {
		return def
	}
	dur, err := time.ParseDuration(expr)
	if err != nil {
		panic(
			fmt.Sprintf("unable to parse time: expr %s", expr),
		)
	}
	return dur
}

func durationExpression(value any) error {
	expr, _ := value.(string)
	if expr == "" {
		return nil
	}
	if _, err := time.ParseDuration(expr); err != nil {
		return errors.New("must be a valid duration")
	}
	return nil
}
