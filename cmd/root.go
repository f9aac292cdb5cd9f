package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/shawkym/councilpipe/internal/version"
	"github.com/shawkym/councilpipe/pkg/log"
)

var (
	cfgFile     string
	showVersion bool
)

var rootCmd = &cobra.Command{
	Use:   "councilpipe",
	Short: "Query a council of LLM backends and synthesize their answers",
	Long: `councilpipe fans a prompt out to multiple OpenRouter-compatible model
backends, optionally runs peer-revision consensus rounds and a synthesis
pass, and reports the combined answer along with token and cost accounting.`,
	Run: func(cmd *cobra.Command, args []string) {
		if showVersion {
			fmt.Println(version.GetVersionString())
			os.Exit(0)
		}
		cmd.Help()
	},
}

func Execute() {
	PrintLogo()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.councilpipe.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable verbose logging")
	rootCmd.Flags().BoolVarP(&showVersion, "version", "V", false, "show version information")

	if err := viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose")); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding verbose flag: %v\n", err)
	}
}

func initConfig() {
	level := "info"
	if viper.GetBool("verbose") {
		level = "debug"
	}
	log.Configure("text", level, os.Stderr)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			log.WithError(err).Error("failed to get home directory")
			fmt.Fprintf(os.Stderr, "Error getting home directory: %v\n", err)
			os.Exit(1)
		}

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".councilpipe")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		log.WithField("config_file", viper.ConfigFileUsed()).Info("loaded configuration file")
	} else {
		log.WithError(err).Debug("no config file found, using defaults")
	}
}
