package cmd

import (
	"fmt"
	"os"

	"github.com/samsaffron/markview/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configInitForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage markview configuration",
	Long: `View or create your markview configuration.

Examples:
  markview config                     # show effective config
  markview config path                # print config file path
  markview config init                # write defaults to the config path`,
	RunE: configShow, // Default to show
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	RunE:  configShow,
}

var configPathCmd = &cobra.Command{
	Use:         "path",
	Short:       "Print configuration file path",
	Annotations: map[string]string{skipConfigAnnotation: "true"},
	RunE:        configPath,
}

var configInitCmd = &cobra.Command{
	Use:         "init",
	Short:       "Write a default configuration file",
	Annotations: map[string]string{skipConfigAnnotation: "true"},
	RunE:        configInit,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configInitCmd)

	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing config file")
}

func configShow(cmd *cobra.Command, args []string) error {
	data, err := yaml.Marshal(appConfig)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	path, err := resolvedConfigPath()
	if err != nil {
		return err
	}
	if _, statErr := os.Stat(path); statErr != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "# %s (not found, showing defaults)\n", path)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", path)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func configPath(cmd *cobra.Command, args []string) error {
	path, err := resolvedConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

func configInit(cmd *cobra.Command, args []string) error {
	path, err := resolvedConfigPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil && !configInitForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.Save(config.Defaults(), path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", path)
	return nil
}

func resolvedConfigPath() (string, error) {
	if configFile != "" {
		return configFile, nil
	}
	return config.GetConfigPath()
}
