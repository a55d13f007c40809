// worksim-executor runs on the worker VM. In serve mode it accepts a
// persistent connection from the simulation engine; in exec mode it runs a
// single action from stdin, which is how the ssh fallback transport
// invokes it.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hochfrequenz/worksim/internal/executor"
)

var (
	servePort    int
	serveWorkDir string
	allowExec    bool

	rootCmd = &cobra.Command{
		Use:   "worksim-executor",
		Short: "Worksim action executor",
		Long: `The executor performs the concrete OS actions of a simulated workday:
launching applications, fetching pages, writing documents and shuffling
files, each inside a per-worker directory.`,
	}
)

func init() {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept actions over a persistent connection",
		RunE:  runServe,
	}
	serveCmd.Flags().IntVar(&servePort, "port", 8765, "port to listen on")
	serveCmd.Flags().StringVar(&serveWorkDir, "workdir", "", "root directory for worker files")
	serveCmd.Flags().BoolVar(&allowExec, "allow-exec", false, "launch real applications")
	rootCmd.AddCommand(serveCmd)

	execCmd := &cobra.Command{
		Use:   "exec",
		Short: "Execute one JSON action from stdin",
		RunE:  runExec,
	}
	execCmd.Flags().StringVar(&serveWorkDir, "workdir", "", "root directory for worker files")
	execCmd.Flags().BoolVar(&allowExec, "allow-exec", false, "launch real applications")
	rootCmd.AddCommand(execCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := executor.NewServer(executor.Config{
		Port:      servePort,
		WorkDir:   serveWorkDir,
		AllowExec: allowExec,
	})
	return server.Start(ctx)
}

func runExec(cmd *cobra.Command, args []string) error {
	payload, err := io.ReadAll(os.Stdin)
	if err != nil {
		return err
	}

	out, err := executor.ExecuteOnce(executor.Config{
		WorkDir:   serveWorkDir,
		AllowExec: allowExec,
	}, payload)
	if err != nil {
		return err
	}

	_, err = fmt.Println(string(out))
	return err
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
