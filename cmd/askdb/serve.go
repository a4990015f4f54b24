// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/ferdnandolima/llm-sql-skeleton/services/askdb"
	"github.com/ferdnandolima/llm-sql-skeleton/services/askdb/catalog"
	"github.com/ferdnandolima/llm-sql-skeleton/services/askdb/config"
	"github.com/ferdnandolima/llm-sql-skeleton/services/askdb/dbexec"
	"github.com/ferdnandolima/llm-sql-skeleton/services/askdb/gate"
	"github.com/ferdnandolima/llm-sql-skeleton/services/askdb/nlu"
	"github.com/ferdnandolima/llm-sql-skeleton/services/askdb/resolver"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Loads the intent catalog and the runtime policy, connects to the
primary and replica databases, and serves the question API.

Environment:
  ASKDB_PRIMARY_DSN   MySQL DSN of the primary (required)
  ASKDB_REPLICA_DSN   MySQL DSN of the read replica (defaults to the primary)
  ASKDB_CACHE_DIR     result cache directory (empty keeps the cache in memory)
  ASKDB_LLM_API_KEY   API key for LLM escalation, when enabled in the policy
  ASKDB_TRACE_STDOUT  set to 1 to export spans to stdout`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address")
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := slog.Default()

	policy, err := config.Load(policyPath)
	if err != nil {
		return err
	}

	cat, err := catalog.Load(intentsDir, logger)
	if err != nil {
		return err
	}
	logger.Info("catalog loaded", "intents", cat.Len(), "dir", intentsDir)

	primaryDSN := os.Getenv("ASKDB_PRIMARY_DSN")
	if primaryDSN == "" {
		return errors.New("ASKDB_PRIMARY_DSN is not set")
	}
	replicaDSN := os.Getenv("ASKDB_REPLICA_DSN")
	if replicaDSN == "" {
		logger.Warn("ASKDB_REPLICA_DSN not set; routing all reads to the primary")
		replicaDSN = primaryDSN
	}

	primaryDB, err := openPool(primaryDSN)
	if err != nil {
		return fmt.Errorf("open primary: %w", err)
	}
	defer primaryDB.Close()

	replicaDB, err := openPool(replicaDSN)
	if err != nil {
		return fmt.Errorf("open replica: %w", err)
	}
	defer replicaDB.Close()

	// Schema drift check: refuse to start when an intent references a
	// table or period column the database no longer has.
	schemaCtx, cancelSchema := context.WithTimeout(cmd.Context(), 10*time.Second)
	schema, err := catalog.LoadSchema(schemaCtx, primaryDB, logger)
	cancelSchema()
	if err != nil {
		return err
	}
	if err := schema.Check(cat); err != nil {
		return err
	}

	// Result cache. A zero cache TTL disables it; a nil *ResultCache is a
	// no-op for the router.
	var cache *dbexec.ResultCache
	if ttl := policy.Executor.CacheTTL.Std(); ttl > 0 {
		opts := badger.DefaultOptions(os.Getenv("ASKDB_CACHE_DIR")).WithLogger(nil)
		if opts.Dir == "" {
			opts = opts.WithInMemory(true)
		}
		cacheDB, err := badger.Open(opts)
		if err != nil {
			return fmt.Errorf("open result cache: %w", err)
		}
		defer cacheDB.Close()
		cache = dbexec.NewResultCache(cacheDB, ttl, logger)
	}

	heuristic := nlu.NewHeuristicClassifier(cat, logger)
	var picker nlu.Picker
	if policy.LLM.Enabled {
		chat, err := nlu.NewChatClassifier(nlu.ChatClassifierConfig{
			BaseURL: policy.LLM.BaseURL,
			APIKey:  os.Getenv("ASKDB_LLM_API_KEY"),
			Model:   policy.LLM.Model,
			Timeout: policy.LLM.Timeout.Std(),
		}, logger)
		if err != nil {
			return fmt.Errorf("configure LLM escalation: %w", err)
		}
		picker = chat
		logger.Info("LLM escalation enabled", "model", policy.LLM.Model)
	}
	classifier := nlu.NewEscalatingClassifier(heuristic, picker, cat,
		policy.Resolver.ConfidenceFloor, policy.Resolver.TieMargin, logger)

	res := resolver.New(classifier, cat, resolver.Config{
		ConfidenceFloor: policy.Resolver.ConfidenceFloor,
		TieMargin:       policy.Resolver.TieMargin,
		LimitCap:        policy.Resolver.LimitCap,
	}, logger)

	// EXPLAIN runs against the primary: it is the target of last resort, so
	// a query the gate admits stays executable even with the replica down.
	planGate := gate.New(
		gate.NewMySQLExplainer(primaryDB, policy.Gate.ExplainTimeout.Std()),
		gate.Config{MaxEstimatedRows: policy.Gate.MaxEstimatedRows},
		logger,
	)

	replicaRunner := dbexec.NewSQLRunner(replicaDB, policy.Executor.QueryTimeout.Std(), policy.Executor.MaxRowsPayload)
	primaryRunner := dbexec.NewSQLRunner(primaryDB, policy.Executor.QueryTimeout.Std(), policy.Executor.MaxRowsPayload)
	router := dbexec.NewRouter(
		replicaRunner,
		primaryRunner,
		dbexec.NewHealthCache(policy.Executor.HealthTTL.Std()),
		cache,
		logger,
	)

	pipeline := askdb.NewPipeline(res, planGate, router, logger)

	shutdownTracing, err := setupTracing()
	if err != nil {
		return err
	}
	defer shutdownTracing()

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), otelgin.Middleware("askdb"))
	askdb.RegisterRoutes(engine, pipeline, primaryRunner.Ping, logger)

	server := &http.Server{
		Addr:              serveAddr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", serveAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// openPool opens a MySQL pool with conservative sizing. Connectivity is not
// verified here; the readiness endpoint pings on demand.
func openPool(dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)
	return db, nil
}

// setupTracing installs a stdout span exporter when ASKDB_TRACE_STDOUT=1.
// Without it the default no-op tracer provider stays in place and the
// instrumentation costs nothing.
func setupTracing() (func(), error) {
	if os.Getenv("ASKDB_TRACE_STDOUT") != "1" {
		return func() {}, nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(ctx)
	}, nil
}
