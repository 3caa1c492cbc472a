package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
)

type checker struct {
	name  string
	bin   string
	args  []string
	empty bool // output must be empty to pass (gofmt -l)
}

func CheckCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run gofmt, go vet and go test in parallel",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(short)
		},
	}
	cmd.Flags().BoolVar(&short, "short", false, "pass -short to go test")
	return cmd
}

func runCheck(short bool) error {
	testArgs := []string{"test", "-race", "./..."}
	if short {
		testArgs = append(testArgs, "-short")
	}

	checkers := []checker{
		{name: "gofmt", bin: "gofmt", args: []string{"-l", "cmd", "internal"}, empty: true},
		{name: "vet", bin: "go", args: []string{"vet", "./..."}},
		{name: "test", bin: "go", args: testArgs},
	}

	start := time.Now()
	var wg sync.WaitGroup
	errCh := make(chan error, len(checkers))

	for _, c := range checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			checkStart := time.Now()
			var out bytes.Buffer
			cmd := exec.Command(c.bin, c.args...)
			cmd.Stdout = &out
			cmd.Stderr = &out
			err := cmd.Run()
			if err == nil && c.empty && strings.TrimSpace(out.String()) != "" {
				err = fmt.Errorf("unformatted files:\n%s", out.String())
			}

			if err != nil {
				_, _ = os.Stdout.Write(out.Bytes())
				errCh <- fmt.Errorf("%s: %w", c.name, err)
				return
			}

			fmt.Printf("[%s] ok (%s)\n", c.name, time.Since(checkStart).Round(time.Millisecond))
		}()
	}

	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Println("error:", err)
		}
		return fmt.Errorf("checks failed")
	}

	fmt.Printf("done (%s)\n", time.Since(start).Round(time.Millisecond))
	return nil
}
