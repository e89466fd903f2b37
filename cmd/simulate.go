package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/autoaid/auth"
	"github.com/kilianp07/autoaid/core/model"
	"github.com/kilianp07/autoaid/simulator"
)

var simCfg simulator.Config

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a simulated mechanic fleet over MQTT",
	RunE:  runSimulate,
}

func init() {
	f := simulateCmd.Flags()
	f.StringVar(&simCfg.Broker, "broker", "", "MQTT broker URL (defaults to mqtt.broker)")
	f.StringVar(&simCfg.APIURL, "api", "", "API base URL used to report job progress")
	f.IntVar(&simCfg.Count, "count", 5, "number of mechanics")
	f.Float64Var(&simCfg.Center.Lat, "lat", 48.8566, "fleet center latitude")
	f.Float64Var(&simCfg.Center.Lng, "lng", 2.3522, "fleet center longitude")
	f.Float64Var(&simCfg.SpreadMeters, "spread", 3000, "fleet radius in meters")
	f.DurationVar(&simCfg.Interval, "interval", 0, "heartbeat interval")
	f.DurationVar(&simCfg.AcceptLatency, "accept-latency", 0, "delay before answering an offer")
	f.Float64Var(&simCfg.DeclineRate, "decline-rate", 0, "offer decline probability")
	f.Float64Var(&simCfg.DropRate, "drop-rate", 0, "offer ignore probability")
	f.Float64Var(&simCfg.DisconnectRate, "disconnect-rate", 0, "disconnect probability per heartbeat")
	f.DurationVar(&simCfg.JobStep, "job-step", 0, "delay between job progress events")
	f.StringVar(&simCfg.AvailabilityFile, "availability-file", "", "hourly availability JSON")
	f.StringVar(&simCfg.TemplateFile, "template-file", "", "mechanic template overrides")
	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if simCfg.Broker == "" {
		simCfg.Broker = cfg.MQTT.Broker
	}
	var progress simulator.ProgressReporter
	if simCfg.APIURL != "" {
		p := simulator.NewHTTPProgress(simCfg.APIURL)
		if cfg.Auth.Enabled() {
			tokens := auth.NewTokenService(cfg.Auth)
			p.Token = func(id string) (string, error) { return tokens.Issue(id, string(model.RoleMechanic)) }
		}
		progress = p
	}
	return simulator.Run(ctx, simCfg, progress)
}
