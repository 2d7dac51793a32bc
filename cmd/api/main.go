package main

import (
	"context"
	"io"
	"os"

	"gopkg.in/alecthomas/kingpin.v2"

	"oncycle.org/delay-api/internal/app"
	"oncycle.org/delay-api/internal/appconf"
	"oncycle.org/delay-api/internal/logging"
)

// empty context
var nocontext = context.Background()

func main() {
	cli := kingpin.New("oncycle-api", "ONCycle train delay prediction API")
	registerServe(cli)
	registerPredict(cli, os.Stdout)

	cli.Version(appconf.BuildVersion)
	cli.HelpFlag.Short('h')
	kingpin.MustParse(cli.Parse(os.Args[1:]))
}

// setup loads the configuration and builds the application with a logger
// writing to w. The returned closer releases the log file, if any.
func setup(envFile string, w io.Writer) (*app.Application, io.Closer, error) {
	cfg, err := appconf.Load(envFile)
	if err != nil {
		return nil, nil, err
	}

	logger, closer, err := logging.New(w, cfg.LoggingOptions())
	if err != nil {
		return nil, nil, err
	}

	application, err := app.New(cfg, logger)
	if err != nil {
		_ = closer.Close()
		return nil, nil, err
	}
	return application, closer, nil
}
