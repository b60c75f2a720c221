package main

import (
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/covenant-oss/covenant/internal/app/configuration"
	"github.com/covenant-oss/covenant/internal/app/mockserver"
	"github.com/covenant-oss/covenant/internal/app/verifier"
)

func main() {
	root := &cobra.Command{
		Use:   "covenant",
		Short: "Consumer-driven contract testing: mock servers and provider verification",
	}
	root.AddCommand(serveCommand(), verifyCommand())

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

// serveCommand runs the admin API until interrupted. Mock servers are
// created and torn down through its HTTP surface.
func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the admin API for managing mock servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := configuration.NewFromEnv()
			if err != nil {
				return err
			}

			log.Infof("admin API listening on port %d", config.AdminPort)
			adminServer := configuration.ServeAdminAPI(config)

			c := make(chan os.Signal, 2)
			signal.Notify(c, os.Interrupt, syscall.SIGTERM)
			<-c

			if err := adminServer.Close(); err != nil {
				log.Error(err)
			}
			mockserver.DefaultManager.StopAll()
			return nil
		},
	}
}

func verifyCommand() *cobra.Command {
	var (
		providerName   string
		hostname       string
		port           int
		scheme         string
		files          []string
		dirs           []string
		urls           []string
		stateChangeURL string
		filter         string
		timeout        string
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Replay pact interactions against a running provider",
		Run: func(cmd *cobra.Command, args []string) {
			lines := []string{
				"--hostname", hostname,
				"--port", strconv.Itoa(port),
				"--scheme", scheme,
			}
			if providerName != "" {
				lines = append(lines, "--provider-name", providerName)
			}
			for _, f := range files {
				lines = append(lines, "--file", f)
			}
			for _, d := range dirs {
				lines = append(lines, "--dir", d)
			}
			for _, u := range urls {
				lines = append(lines, "--url", u)
			}
			if stateChangeURL != "" {
				lines = append(lines, "--state-change-url", stateChangeURL)
			}
			if filter != "" {
				lines = append(lines, "--filter-description", filter)
			}
			if timeout != "" {
				lines = append(lines, "--timeout", timeout)
			}

			os.Exit(verifier.Verify(strings.Join(lines, "\n")))
		},
	}

	cmd.Flags().StringVar(&providerName, "provider-name", "", "only verify pacts for this provider")
	cmd.Flags().StringVar(&hostname, "hostname", "localhost", "provider hostname")
	cmd.Flags().IntVar(&port, "port", 8080, "provider port")
	cmd.Flags().StringVar(&scheme, "scheme", "http", "provider scheme (http or https)")
	cmd.Flags().StringSliceVar(&files, "file", nil, "pact file to verify (repeatable)")
	cmd.Flags().StringSliceVar(&dirs, "dir", nil, "directory of pact files to verify (repeatable)")
	cmd.Flags().StringSliceVar(&urls, "url", nil, "pact URL to verify (repeatable)")
	cmd.Flags().StringVar(&stateChangeURL, "state-change-url", "", "endpoint that sets up provider states")
	cmd.Flags().StringVar(&filter, "filter-description", "", "only verify interactions whose description contains this text")
	cmd.Flags().StringVar(&timeout, "timeout", "", "provider call timeout, e.g. 30s")
	return cmd
}
