package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	account "github.com/goliatone/go-account"
	"github.com/goliatone/go-account/config"
	"github.com/goliatone/go-account/mailer"
	gconfig "github.com/goliatone/go-config/config"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/joho/godotenv"
)

// DeliveryTransportEnv selects the transport used to deliver queued jobs.
// The server config points at the queue, so the worker needs its own choice.
const DeliveryTransportEnv = "EMAIL_WORKER_TRANSPORT"

func main() {
	_ = godotenv.Load()

	lgr := glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(glog.Trace),
		glog.WithName("email-worker"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(errors.ToSlogAttributes),
	)
	logger := lgr.GetLogger("worker")

	cfg := gconfig.New(&config.BaseConfig{}).
		WithLogger(lgr.GetLogger("config"))

	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	defer cancel()

	if err := cfg.Load(ctx); err != nil {
		panic(err)
	}

	ecfg := cfg.Raw().GetEmail()

	gateway, err := deliveryGateway(ecfg, os.Getenv(DeliveryTransportEnv), lgr.GetLogger("email"))
	if err != nil {
		panic(err)
	}

	q := ecfg.GetAMQP()
	consumer, err := mailer.NewConsumer(q.GetURL(), q.GetQueue(), gateway, logger)
	if err != nil {
		panic(err)
	}
	defer consumer.Close()

	consumer.WithTimeout(ecfg.GetTimeout())

	if err := consumer.Run(ctx); err != nil {
		logger.Error("email worker stopped", "error", err)
		os.Exit(1)
	}

	logger.Info("email worker stopped")
}

func deliveryGateway(ecfg config.Email, transport string, logger account.Logger) (account.NotificationGateway, error) {
	if transport == "" {
		transport = config.TransportMailgun
		if ecfg.GetMailgun().GetAPIKey() == "" {
			transport = config.TransportSMTP
		}
	}

	switch transport {
	case config.TransportMailgun:
		mg := ecfg.GetMailgun()
		if err := mg.Validate(); err != nil {
			return nil, err
		}
		return mailer.NewMailgunGateway(mailer.MailgunConfig{
			Domain:  mg.GetDomain(),
			APIKey:  mg.GetAPIKey(),
			APIBase: mg.GetAPIBase(),
			Sender:  fmt.Sprintf("%s <%s>", ecfg.GetFromName(), ecfg.GetFrom()),
		}), nil
	case config.TransportSMTP:
		smtp := ecfg.GetSMTP()
		if err := smtp.Validate(); err != nil {
			return nil, err
		}
		return mailer.NewSMTPGateway(mailer.SMTPConfig{
			Host:      smtp.GetHost(),
			Port:      smtp.GetPort(),
			EnableSSL: smtp.GetEnableSSL(),
			Username:  smtp.GetUsername(),
			Password:  smtp.GetPassword(),
			From:      ecfg.GetFrom(),
			FromName:  ecfg.GetFromName(),
		}), nil
	case config.TransportLog:
		return mailer.NewLogGateway(logger), nil
	default:
		return nil, errors.New("unsupported delivery transport "+transport, errors.CategoryBadInput)
	}
}
