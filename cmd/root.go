package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "face-verify",
	Short: "Register faces and verify new captures against them",
	Long: `Face Verify keeps a registry of captured face images and answers the
question "is this person already registered?" by comparing a new capture with
every registered face through a face verification service (DeepFace or an
embedding server).

Faces can be registered and verified from the command line or from the
browser capture page served by "face-verify serve".`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
