package cmd

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	scenarioPath  string  // Path to the scenario YAML file
	until         int64   // Total simulated duration in seconds (overrides scenario)
	rtFactor      float64 // Real-time pacing factor (0 = run as fast as possible)
	logLevel      string  // Log verbosity level
	printProgress bool    // Log progress on every tick
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "microgrid-sim",
	Short: "Time-stepped co-simulator for microgrids",
}

// runCmd executes one simulation scenario
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a microgrid simulation scenario",
	Run: func(cmd *cobra.Command, args []string) {
		// Set up logging
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		if scenarioPath == "" {
			logrus.Fatalf("No scenario file provided. Exiting simulation.")
		}

		spec, err := LoadScenarioSpec(scenarioPath)
		if err != nil {
			logrus.Fatalf("Unable to load scenario: %v", err)
		}

		// CLI flags override scenario scalars
		if until > 0 {
			spec.Until = until
		}
		if cmd.Flags().Changed("rt-factor") {
			spec.RTFactor = rtFactor
		}

		env, monitors, err := spec.Build()
		if err != nil {
			logrus.Fatalf("Invalid scenario: %v", err)
		}

		startTime := time.Now()
		if err := env.Run(spec.Until, spec.RTFactor, printProgress); err != nil {
			logrus.Fatalf("Simulation failed: %v", err)
		}

		for i, monitor := range monitors {
			records := monitor.Records()
			if len(records) == 0 {
				continue
			}
			last := records[len(records)-1]
			logrus.Infof("Monitor %d: %d steps, final total power=%.3fW, charge level=%.3fWs",
				i, len(records), last.Result.TotalPower, last.ChargeLevel)
		}

		logrus.Infof("Simulation complete in %v.", time.Since(startTime))
	},
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	runCmd.Flags().StringVar(&scenarioPath, "scenario", "", "Path to scenario YAML file")
	runCmd.Flags().Int64Var(&until, "until", 0, "Total simulated duration in seconds (overrides scenario)")
	runCmd.Flags().Float64Var(&rtFactor, "rt-factor", 0, "Real-time pacing factor (0 = as fast as possible)")
	runCmd.Flags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")
	runCmd.Flags().BoolVar(&printProgress, "progress", false, "Log progress on every tick")

	rootCmd.AddCommand(runCmd)
}
