package main

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"gopkg.in/alecthomas/kingpin.v2"

	"oncycle.org/delay-api/internal/app"
	"oncycle.org/delay-api/internal/logging"
	"oncycle.org/delay-api/internal/models"
)

type predictCommand struct {
	envFile string
	req     models.SingleStationPredictionRequest
	out     io.Writer
}

// run logs to stderr so that stdout carries only the JSON result.
func (c *predictCommand) run(*kingpin.ParseContext) error {
	application, closer, err := setup(c.envFile, os.Stderr)
	if err != nil {
		return err
	}
	defer logging.SafeCloseWithLogging(closer, application.Logger, "log_file")

	return predict(nocontext, application, c.req, c.out)
}

// predict loads the models and writes one single station prediction as
// indented JSON to w.
func predict(ctx context.Context, application *app.Application, req models.SingleStationPredictionRequest, w io.Writer) error {
	req.Normalize()
	if errs := req.Validate(); len(errs) > 0 {
		return errs
	}
	if err := application.ModelService.LoadModels(ctx); err != nil {
		return err
	}

	resp, err := application.ModelService.PredictSingleStation(ctx, req)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

func registerPredict(app *kingpin.Application, out io.Writer) {
	c := &predictCommand{out: out}

	cmd := app.Command("predict", "predict the delay of one departure and print it as JSON").
		Action(c.run)

	cmd.Flag("env-file", "environment file").
		Default(".env").
		StringVar(&c.envFile)

	cmd.Flag("train-id", "train number").
		Required().
		StringVar(&c.req.TrainID)

	cmd.Flag("time", "scheduled departure time, HH:MM").
		Required().
		StringVar(&c.req.ScheduledDepartureTime)

	cmd.Flag("date", "trip date, YYYY-MM-DD").
		Required().
		StringVar(&c.req.TripDate)
}
