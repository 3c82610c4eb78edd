package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"go.uber.org/zap"

	"github.com/waffleoffice/wopihost/internal/app"
	"github.com/waffleoffice/wopihost/internal/config"
	"github.com/waffleoffice/wopihost/internal/lock"
	"github.com/waffleoffice/wopihost/internal/secret"
)

func main() {
	devMode := os.Getenv("DEV_MODE") == "true"

	var log *zap.Logger
	var err error
	if devMode {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The AWS SDK is only touched outside DEV_MODE or when a shared lock
	// table is configured.
	lockTable := os.Getenv("LOCK_TABLE")
	needAWS := !devMode || lockTable != ""

	var resolver secret.Resolver
	var dynamoClient *dynamodb.Client
	if needAWS {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			log.Fatal("load aws config", zap.Error(err))
		}
		dynamoClient = dynamodb.NewFromConfig(awsCfg)
		resolver = secret.FromParameterStore(ssm.NewFromConfig(awsCfg))
	}
	if devMode {
		resolver = secret.FromEnvironment()
		log.Info("using environment secret resolver")
	}

	cfg, err := config.Load(ctx, resolver)
	if err != nil {
		log.Fatal("load configuration", zap.Error(err))
	}

	var locks lock.Table
	if lockTable != "" {
		locks = lock.NewDynamo(dynamoClient, lockTable)
		log.Info("using shared lock table", zap.String("table", lockTable))
	} else {
		locks = lock.NewMemory()
	}

	application, err := app.New(ctx, cfg, locks, log)
	if err != nil {
		log.Fatal("assemble application", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           application.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown", zap.Error(err))
		}
	}()

	log.Info("listening", zap.String("addr", cfg.Addr), zap.String("public_url", cfg.PublicURL))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("serve", zap.Error(err))
	}
}
