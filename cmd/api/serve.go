package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/drone/signal"
	"golang.org/x/sync/errgroup"
	"gopkg.in/alecthomas/kingpin.v2"

	"oncycle.org/delay-api/internal/app"
	"oncycle.org/delay-api/internal/featurestore"
	"oncycle.org/delay-api/internal/logging"
	"oncycle.org/delay-api/internal/restapi"
)

const (
	shutdownTimeout = 10 * time.Second
	probeTimeout    = 30 * time.Second
)

type serveCommand struct {
	envFile string
}

func (c *serveCommand) run(*kingpin.ParseContext) error {
	application, closer, err := setup(c.envFile, os.Stdout)
	if err != nil {
		return err
	}
	defer logging.SafeCloseWithLogging(closer, application.Logger, "log_file")

	ctx, cancel := context.WithCancel(nocontext)
	defer cancel()

	// listen for termination signals to gracefully shutdown the server.
	ctx = signal.WithContextFunc(ctx, func() {
		application.Logger.Info("received signal, terminating process")
		cancel()
	})

	return serve(ctx, application)
}

// serve loads the models, then runs the HTTP server until ctx is cancelled.
// A model loading failure aborts startup.
func serve(ctx context.Context, application *app.Application) error {
	logger := application.Logger
	logger.Info("starting application",
		slog.String("app", application.Config.AppName),
		slog.String("version", application.Config.Version),
		slog.String("env", string(application.Config.Env)),
		slog.String("feature_store", application.FeatureStore.Name()))

	// reachability is informational only
	go func() {
		if err := featurestore.WaitReachable(ctx, application.FeatureStore, probeTimeout, logger); err != nil {
			logging.LogError(logger, "feature store unreachable at startup", err)
			return
		}
		logger.Info("feature store reachable")
	}()

	if err := application.ModelService.LoadModels(ctx); err != nil {
		return err
	}

	api := restapi.NewRestAPI(application)
	defer api.Close()

	srv := &http.Server{
		Addr:              application.Config.Addr(),
		Handler:           api.Handler(),
		IdleTimeout:       time.Minute,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting server", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	if err != nil {
		logging.LogError(logger, "server stopped", err)
		return err
	}
	logger.Info("application shutdown complete")
	return nil
}

func registerServe(app *kingpin.Application) {
	c := new(serveCommand)

	cmd := app.Command("serve", "start the prediction API server").
		Default().
		Action(c.run)

	cmd.Flag("env-file", "environment file").
		Default(".env").
		StringVar(&c.envFile)
}
