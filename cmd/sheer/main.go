package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sheer/internal/api/graphql"
	"sheer/internal/api/rest"
	"sheer/internal/config"
	"sheer/internal/engine"
	"sheer/internal/engine/elastic"
	"sheer/internal/engine/local"
	"sheer/internal/logger"
	"sheer/internal/permalink"
	"sheer/internal/query"
)

var (
	configPath string
	pageNum    int
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "sheer",
		Short:        "Serve JSON query templates against a search index",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default config/$ENV.yaml)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}

	indexCmd := &cobra.Command{
		Use:   "index [type] [id] [json]",
		Short: "Index a document",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd.Context(), args[0], args[1], args[2])
		},
	}

	queryCmd := &cobra.Command{
		Use:   "query [name] [key=value...]",
		Short: "Run a query template and print the results",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd.Context(), args[0], args[1:])
		},
	}
	queryCmd.Flags().IntVarP(&pageNum, "page", "p", 0, "Result page")

	templatesCmd := &cobra.Command{
		Use:   "templates",
		Short: "List the query templates on the search path",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTemplates()
		},
	}

	rootCmd.AddCommand(serveCmd, indexCmd, queryCmd, templatesCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// runtime is everything a command needs, built from the config file.
type runtime struct {
	cfg    config.Config
	log    *zap.Logger
	engine engine.Engine
	app    *query.App
	finder *query.Finder
	close  func()
}

func setup() (*runtime, error) {
	env := config.GetEnv()
	cfg, err := config.Load(configPath, env)
	if err != nil {
		return nil, err
	}

	log, err := logger.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return nil, err
	}

	rules, err := permalink.FromPatterns(cfg.Permalinks)
	if err != nil {
		return nil, err
	}

	rt := &runtime{cfg: cfg, log: log, close: func() { _ = log.Sync() }}
	switch cfg.Engine.Driver {
	case config.DriverElastic:
		rt.engine = elastic.New(cfg.Engine.URL, time.Duration(cfg.Engine.TimeoutSec)*time.Second)
	default:
		eng, err := local.New(cfg.Engine.DataPath, cfg.Engine.Shards, log)
		if err != nil {
			return nil, fmt.Errorf("open local engine: %w", err)
		}
		rt.engine = eng
		rt.close = func() {
			if err := eng.Close(); err != nil {
				log.Error("close engine", zap.Error(err))
			}
			_ = log.Sync()
		}
	}

	rt.app = query.NewApp(rt.engine, cfg.Index, cfg.Root, rules, log)
	rt.finder = query.NewFinder(rt.app, cfg.Queries.SearchPath...)
	return rt, nil
}

func runServer() error {
	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.close()

	gqlService, err := graphql.NewService(rt.app, rt.finder, rt.log)
	if err != nil {
		return fmt.Errorf("build graphql schema: %w", err)
	}
	restService := rest.NewService(rt.app, rt.finder, rt.log)

	if rt.cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	restService.RegisterHandlers(r)
	r.POST("/graphql", gqlService.Handler())

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", rt.cfg.HTTP.Port),
		Handler:      r,
		ReadTimeout:  time.Duration(rt.cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(rt.cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		rt.log.Info("sheer server starting",
			zap.Int("port", rt.cfg.HTTP.Port),
			zap.String("driver", rt.cfg.Engine.Driver),
			zap.String("index", rt.cfg.Index),
			zap.Strings("search_path", rt.finder.SearchPath()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		rt.log.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(rt.cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func runIndex(ctx context.Context, docType, id, data string) error {
	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.close()

	indexer, ok := rt.engine.(engine.Indexer)
	if !ok {
		return fmt.Errorf("engine %s does not accept documents", rt.cfg.Engine.Driver)
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return fmt.Errorf("parse document: %w", err)
	}
	if err := indexer.IndexDocument(ctx, rt.cfg.Index, docType, id, doc); err != nil {
		return err
	}
	fmt.Printf("indexed %s/%s into %s\n", docType, id, rt.cfg.Index)
	return nil
}

func runQuery(ctx context.Context, name string, pairs []string) error {
	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.close()

	q, err := rt.finder.Lookup(name)
	if err != nil {
		return err
	}

	req := query.Request{Path: "/queries/" + name, Args: make(map[string][]string)}
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("argument %q: expected key=value", pair)
		}
		req.Args.Add(k, v)
	}
	if pageNum > 0 {
		req.Args.Set("page", fmt.Sprint(pageNum))
	}

	rs, err := q.SearchWithURLArguments(ctx, req, nil)
	if err != nil {
		return err
	}
	body, err := query.Marshal(ctx, rs)
	if err != nil {
		return err
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		return err
	}
	fmt.Println(pretty.String())
	return nil
}

func runTemplates() error {
	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.close()

	names, err := rt.finder.Names()
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Println(n)
	}
	return nil
}
