package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nexusfleet/nexus/internal/config"
)

// backendsCmd edits the backends[] list of the YAML config file directly:
// Nexus has no runtime backend-mutation API (backends are wired at
// process start, §4.1), so "add"/"remove" are config-file operations
// that take effect on the next `nexus serve`.
func backendsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backends",
		Short: "Inspect or edit the configured static backend list",
	}
	cmd.AddCommand(backendsListCmd())
	cmd.AddCommand(backendsAddCmd())
	cmd.AddCommand(backendsRemoveCmd())
	return cmd
}

func backendsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List statically configured backends",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath, loadOverrides())
			if err != nil {
				return err
			}
			for _, b := range cfg.Backends {
				fmt.Printf("%-20s %-10s %-30s priority=%d\n", b.Name, b.Type, b.URL, b.Priority)
			}
			return nil
		},
	}
}

func backendsAddCmd() *cobra.Command {
	var name, url, backendType, apiKeyEnv string
	var priority int

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a static backend to the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("--config is required to mutate a backend list")
			}
			cfg, err := loadRawConfig()
			if err != nil {
				return err
			}
			cfg.Backends = append(cfg.Backends, config.BackendSeed{
				Name: name, URL: url, Type: backendType, Priority: priority, APIKeyEnv: apiKeyEnv,
			})
			return writeRawConfig(cfg)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "backend name")
	cmd.Flags().StringVar(&url, "url", "", "backend base URL")
	cmd.Flags().StringVar(&backendType, "type", "", "backend type (ollama, llamacpp, vllm, openai, anthropic, google, ...)")
	cmd.Flags().IntVar(&priority, "priority", 0, "scheduling priority, lower wins ties")
	cmd.Flags().StringVar(&apiKeyEnv, "api-key-env", "", "environment variable holding the backend's API key")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("url")
	cmd.MarkFlagRequired("type")
	return cmd
}

func backendsRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a backend from the config file by name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("--config is required to mutate a backend list")
			}
			cfg, err := loadRawConfig()
			if err != nil {
				return err
			}
			kept := cfg.Backends[:0]
			for _, b := range cfg.Backends {
				if b.Name != args[0] {
					kept = append(kept, b)
				}
			}
			cfg.Backends = kept
			return writeRawConfig(cfg)
		},
	}
}

func loadRawConfig() (config.Config, error) {
	cfg := config.Default()
	raw, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return config.Config{}, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func writeRawConfig(cfg config.Config) error {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(configPath, out, 0o644)
}
