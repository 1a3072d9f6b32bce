package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configInitOutput string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and scaffold configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a commented starter configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(configInitOutput); err == nil {
			return fmt.Errorf("%s already exists, not overwriting", configInitOutput)
		}
		if err := os.WriteFile(configInitOutput, []byte(configTemplate), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", configInitOutput, err)
		}
		fmt.Printf("wrote %s\n", configInitOutput)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration after defaults and overrides",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("encode config: %w", err)
		}
		os.Stdout.Write(out)
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration without starting the pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := loadConfig(); err != nil {
			return err
		}
		fmt.Println("configuration OK")
		return nil
	},
}

func init() {
	configInitCmd.Flags().StringVar(&configInitOutput, "output", "simtel.yaml", "destination file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(configCmd)
}

const configTemplate = `# simtel pipeline configuration
# Every value is optional; omitted fields take built-in defaults.

# session_id: ""        # empty = generated per run
log_level: info         # debug | info | warn | error
log_format: json        # json | console

ingest:
  queue_capacity: 10000 # full queue drops samples, never blocks producers
  buffer_capacity: 8192 # ring depth, rounded up to a power of two
  workers: 1 # more workers can reorder samples with near-identical timestamps

detection:
  window_size: 64
  interval: 250ms
  event_log_capacity: 4096
  thresholds:
    overspeed_kt: 340
    max_bank_deg: 60
    max_pitch_up_deg: 30
    max_pitch_down_deg: -20
    altitude_deviation_ft: 300
    heading_deviation_deg: 15
    speed_deviation_kt: 15
    gear_extended_kt: 200
    flaps_extended_kt: 230
    nav_deviation_dots: 1.0

anomaly:
  interval: 1s
  log_capacity: 4096
  models:
    - name: baseline
      type: statistical
      enabled: true
      settings:
        sigma_threshold: 3.0
        min_train_count: 30
    - name: limits
      type: rule
      enabled: true
      rules:
        - parameter: bank
          min: -60
          max: 60
          enabled: true
        - parameter: vertical_speed
          min: -4000
          max: 4000
          enabled: true

recording:
  directory: ""         # set to auto-record sessions here
  queue_capacity: 10000

stats:
  interval: 1s
`
