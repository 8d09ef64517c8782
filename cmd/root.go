package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/glowus/planpress/internal/app"
	"github.com/glowus/planpress/internal/config"
	"github.com/glowus/planpress/internal/event"
	"github.com/glowus/planpress/internal/job"
	"github.com/glowus/planpress/internal/logger"
	"github.com/glowus/planpress/internal/pipeline"
	"github.com/glowus/planpress/internal/stages"
	"github.com/glowus/planpress/internal/template"
	"github.com/glowus/planpress/models"
	"github.com/glowus/planpress/store"
)

var (
	// cfgFile is the path to the configuration file.
	cfgFile string
	// verbose enables debug logging.
	verbose bool
	// version is the application version.
	version = "0.3.0"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "planpress",
	Short: "planpress generates multi-section business plan documents",
	Long: `planpress runs an eight-stage generation pipeline that drafts,
validates and assembles multi-section business plan documents, streaming
progress to observers while a job runs.`,
	Version: version,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	defer logger.HandlePanic()
	logger.SetVersion(version)
	if len(os.Args) > 1 {
		logger.SetCommand(os.Args[1])
	}
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./.planpress.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	_ = viper.BindPFlag(config.KeyVerbose, rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig reads the config file and environment.
func initConfig() {
	// Optional .env for local development; ignored when absent.
	_ = godotenv.Load()

	viper.SetDefault(config.KeyServerPort, config.DefaultServerPort)
	viper.SetDefault(config.KeyDataDir, config.DefaultDataDir)
	viper.SetDefault(config.KeyTemplatesDir, config.DefaultTemplatesDir)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName(config.ConfigFileName)
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
	}
	viper.SetEnvPrefix("PLANPRESS")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		slog.Debug("config file loaded", "file", viper.ConfigFileUsed())
	}
	logger.SetBasePath(viper.GetString(config.KeyDataDir))

	level := slog.LevelInfo
	if viper.GetBool(config.KeyVerbose) {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// buildApp wires the store, template library, job manager and app service
// from the active configuration.
func buildApp() (*app.App, *template.Library, func(), error) {
	st, err := store.NewSQLiteStore(viper.GetString(config.KeyDataDir))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open store: %w", err)
	}

	library, err := template.NewLibrary(afero.NewOsFs(), viper.GetString(config.KeyTemplatesDir))
	if err != nil {
		_ = st.Close()
		return nil, nil, nil, fmt.Errorf("load templates: %w", err)
	}

	registry := pipeline.DefaultRegistry()
	bus := event.NewBroadcaster()
	manager := job.NewManager(st, bus, registry, func(plan *models.Plan) pipeline.ExecutorSet {
		return stages.NewSet(library, stages.NewTemplateGenerator())
	})
	if err := manager.Recover(); err != nil {
		_ = st.Close()
		return nil, nil, nil, fmt.Errorf("recover jobs: %w", err)
	}

	application := app.New(st, library, manager)
	cleanup := func() { _ = st.Close() }
	return application, library, cleanup, nil
}
