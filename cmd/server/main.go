package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"github.com/cyvote/backend-cyvote-sub001/internal/audit"
	ballothandler "github.com/cyvote/backend-cyvote-sub001/internal/ballot/handler"
	ballotservice "github.com/cyvote/backend-cyvote-sub001/internal/ballot/service"
	ballotstore "github.com/cyvote/backend-cyvote-sub001/internal/ballot/store"
	"github.com/cyvote/backend-cyvote-sub001/internal/capability"
	"github.com/cyvote/backend-cyvote-sub001/internal/credential/distributor"
	credentialhandler "github.com/cyvote/backend-cyvote-sub001/internal/credential/handler"
	"github.com/cyvote/backend-cyvote-sub001/internal/credential/issuer"
	"github.com/cyvote/backend-cyvote-sub001/internal/credential/resend"
	credstore "github.com/cyvote/backend-cyvote-sub001/internal/credential/store"
	"github.com/cyvote/backend-cyvote-sub001/internal/election"
	"github.com/cyvote/backend-cyvote-sub001/internal/handshake"
	handshakehandler "github.com/cyvote/backend-cyvote-sub001/internal/handshake/handler"
	"github.com/cyvote/backend-cyvote-sub001/internal/mailer"
	"github.com/cyvote/backend-cyvote-sub001/internal/platform/config"
	"github.com/cyvote/backend-cyvote-sub001/internal/platform/database"
	"github.com/cyvote/backend-cyvote-sub001/internal/platform/httpserver"
	"github.com/cyvote/backend-cyvote-sub001/internal/platform/kafka"
	"github.com/cyvote/backend-cyvote-sub001/internal/platform/logger"
	"github.com/cyvote/backend-cyvote-sub001/internal/platform/metrics"
	"github.com/cyvote/backend-cyvote-sub001/internal/platform/redis"
	voterstore "github.com/cyvote/backend-cyvote-sub001/internal/voter/store"
)

// main wires dependencies and runs the process lifecycle. All business logic
// lives in the internal services.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Stores: PostgreSQL when a DSN is configured, in-memory otherwise.
	var (
		voters      voterstore.Store
		credentials credstore.Store
		credTx      credstore.Tx
		ballots     ballotstore.Store
		ballotTx    ballotstore.Tx
	)
	health := make(map[string]healthChecker)

	if cfg.Postgres.DSN != "" {
		db, err := database.Open(cfg.Postgres)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer db.Close()

		voters = voterstore.NewPostgres(db)
		credentials = credstore.NewPostgres(db)
		credTx = newCredentialPostgresTx(db)
		ballots = ballotstore.NewPostgres(db)
		ballotTx = newBallotPostgresTx(db)
		health["postgres"] = dbHealth{db}
		log.Info("using postgres storage")
	} else {
		voterMem := voterstore.NewMemory()
		credMem := credstore.NewMemory()
		ballotMem := ballotstore.NewMemory()
		voters = voterMem
		credentials = credMem
		credTx = credstore.NewMemoryTx(credMem)
		ballots = ballotMem
		ballotTx = ballotstore.NewMemoryTx(ballotMem, voterMem)
		log.Warn("no postgres DSN configured, using in-memory storage")
	}

	// Revocation list: Redis when configured, in-memory otherwise.
	var revoked capability.RevocationList
	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		revoked = capability.NewRedisRevocationList(redisClient.Client)
		health["redis"] = redisClient
		log.Info("using redis revocation list")
	} else {
		revoked = capability.NewMemoryRevocationList()
		log.Warn("no redis URL configured, using in-memory revocation list")
	}

	// Audit pipeline: always the queryable memory sink, plus Kafka when
	// brokers are configured.
	auditStore := audit.NewMemoryStore()
	sinks := []audit.Sink{auditStore}
	producer, err := kafka.NewProducer(cfg.Kafka)
	if err != nil {
		return fmt.Errorf("kafka: %w", err)
	}
	if producer != nil {
		defer producer.Close()
		sinks = append(sinks, audit.NewKafkaSink(producer, cfg.Kafka.AuditTopic))
		log.Info("audit events forwarded to kafka", "topic", cfg.Kafka.AuditTopic)
	}
	publisher := audit.NewPublisher(1024, log)
	worker := audit.NewWorker(publisher.Inbox(), log, sinks...)

	// Outbound mail: SMTP when configured, log-only otherwise.
	var mail mailer.Mailer
	if cfg.SMTP.Host != "" {
		mail = mailer.NewSMTP(cfg.SMTP)
	} else {
		mail = mailer.NewLog(log)
		log.Warn("no SMTP host configured, credentials will not be mailed")
	}

	schedule := election.NewWindow(cfg.Election)
	capabilities := capability.NewService(cfg.Capability)

	issueSvc := issuer.New(voters, credentials, cfg.Credential, log, m,
		issuer.WithAuditPublisher(publisher))
	distributeSvc := distributor.New(credentials, voters, mail, cfg.Credential, log, m,
		distributor.WithAuditPublisher(publisher))
	resendSvc := resend.New(voters, credentials, credTx, mail, schedule, cfg.Credential, log, m,
		resend.WithAuditPublisher(publisher))
	handshakeSvc := handshake.New(voters, credentials, capabilities, schedule, log, m,
		handshake.WithAuditPublisher(publisher))
	ballotSvc := ballotservice.New(voters, ballots, ballotTx, schedule, cfg.Ballot.VoteSalt, log, m,
		ballotservice.WithAuditPublisher(publisher))

	router := newRouter(
		log,
		m,
		handshakehandler.New(handshakeSvc, capabilities, cfg.Capability.AuthenticatedTTL, log),
		ballothandler.New(ballotSvc, capabilities, revoked, cfg.Capability.AuthenticatedTTL, log),
		credentialhandler.New(issueSvc, distributeSvc, resendSvc, cfg.Admin.TokenHash, log),
		health,
	)
	srv := httpserver.New(cfg.Server.Addr, router)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return worker.Run(gctx)
	})

	g.Go(func() error {
		return distributeSvc.Run(gctx)
	})

	g.Go(func() error {
		log.Info("server listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("shutdown complete")
	return nil
}

type dbHealth struct {
	db *sql.DB
}

func (h dbHealth) Health(ctx context.Context) error {
	return h.db.PingContext(ctx)
}
