package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"
)

func BuildCmd() *cobra.Command {
	var (
		output  string
		version string
		goos    string
		goarch  string
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build a static server binary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return buildServer(output, version, goos, goarch)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "bin/fileshare", "output path")
	cmd.Flags().StringVar(&version, "version", "", "version stamped into the binary (defaults to git describe)")
	cmd.Flags().StringVar(&goos, "os", "", "target GOOS")
	cmd.Flags().StringVar(&goarch, "arch", "", "target GOARCH")
	return cmd
}

func buildServer(output, version, goos, goarch string) error {
	if version == "" {
		version = gitVersion()
	}

	ldflags := "-s -w -X main.version=" + version
	fmt.Printf("==> Building %s (%s)...\n", output, version)

	cmd := exec.Command("go", "build", "-trimpath", "-ldflags", ldflags, "-o", output, "./cmd/server")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	// modernc sqlite is pure Go
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
	if goos != "" {
		cmd.Env = append(cmd.Env, "GOOS="+goos)
	}
	if goarch != "" {
		cmd.Env = append(cmd.Env, "GOARCH="+goarch)
	}

	err := cmd.Run()
	if err != nil {
		return fmt.Errorf("go build failed: %w", err)
	}

	fmt.Println("==> Done!")
	return nil
}

func gitVersion() string {
	out, err := exec.Command("git", "describe", "--tags", "--always", "--dirty").Output()
	if err != nil {
		return "dev"
	}
	return strings.TrimSpace(string(out))
}
