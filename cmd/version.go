package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shawkym/councilpipe/internal/version"
)

var checkUpdate bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long:  `Display the current version of councilpipe and check for updates.`,
	Run:   runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVar(&checkUpdate, "check-update", true, "Check for newer versions")
}

func runVersion(cmd *cobra.Command, args []string) {
	fmt.Println(version.GetVersionString())

	if !checkUpdate {
		return
	}

	fmt.Println("\nChecking for updates...")
	hasUpdate, latestVersion, err := version.CheckForUpdate()
	if err != nil {
		fmt.Printf("   could not check for updates: %v\n", err)
		return
	}

	switch {
	case hasUpdate:
		fmt.Printf("\nUpdate available!\n")
		fmt.Printf("   Current version: %s\n", version.GetShortVersion())
		fmt.Printf("   Latest version:  %s\n", latestVersion)
		fmt.Printf("   Download from: https://github.com/shawkym/councilpipe/releases/latest\n")
	case latestVersion != "":
		fmt.Printf("   you're running the latest version (%s)\n", latestVersion)
	default:
		fmt.Printf("   update check unavailable at this time\n")
	}
}
