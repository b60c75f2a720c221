package verifier

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// Status codes returned by Verify.
const (
	StatusOK            = 0
	StatusFailures      = 1
	StatusNullInput     = 2
	StatusInternalFault = 3
	StatusInvalidArgs   = 4
)

// Verify parses a newline-delimited argument string, runs the
// verification, and maps the outcome to a status code. It never
// panics; an escaped panic is reported as an internal fault.
func Verify(args string) (code int) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("verifier panicked: %v", r)
			code = StatusInternalFault
		}
	}()

	if strings.TrimSpace(args) == "" {
		return StatusNullInput
	}

	cfg, err := parseArgs(args)
	if err != nil {
		log.WithError(err).Error("invalid verifier arguments")
		return StatusInvalidArgs
	}

	report, err := Execute(context.Background(), cfg)
	if err != nil {
		log.WithError(err).Error("verification could not run")
		return StatusInternalFault
	}

	fmt.Print(report.Summary())
	if !report.Passed() {
		return StatusFailures
	}
	return StatusOK
}

// parseArgs understands the flag-per-line form:
//
//	--provider-name
//	orders
//	--hostname
//	localhost
//	--port
//	8080
//	--file
//	pacts/consumer-orders.json
//
// Flags: --provider-name, --hostname, --port, --scheme, --file, --dir,
// --url, --state-change-url, --filter-description, --timeout,
// --retries.
func parseArgs(args string) (Config, error) {
	cfg := Config{}
	hostname := "localhost"
	port := 8080
	scheme := "http"

	lines := strings.Split(args, "\n")
	for i := 0; i < len(lines); i++ {
		flag := strings.TrimSpace(lines[i])
		if flag == "" {
			continue
		}
		if !strings.HasPrefix(flag, "--") {
			return cfg, fmt.Errorf("expected a flag, got %q", flag)
		}
		i++
		if i >= len(lines) {
			return cfg, fmt.Errorf("flag %s is missing its value", flag)
		}
		arg := strings.TrimSpace(lines[i])

		switch flag {
		case "--provider-name":
			cfg.ProviderName = arg
		case "--hostname":
			hostname = arg
		case "--port":
			p, err := strconv.Atoi(arg)
			if err != nil {
				return cfg, fmt.Errorf("invalid port %q", arg)
			}
			port = p
		case "--scheme":
			if arg != "http" && arg != "https" {
				return cfg, fmt.Errorf("invalid scheme %q", arg)
			}
			scheme = arg
		case "--file":
			cfg.Sources = append(cfg.Sources, Source{Kind: SourceFile, Location: arg})
		case "--dir":
			cfg.Sources = append(cfg.Sources, Source{Kind: SourceDir, Location: arg})
		case "--url":
			cfg.Sources = append(cfg.Sources, Source{Kind: SourceURL, Location: arg})
		case "--state-change-url":
			cfg.StateChangeURL = arg
		case "--filter-description":
			cfg.FilterDesc = arg
		case "--timeout":
			d, err := time.ParseDuration(arg)
			if err != nil {
				return cfg, fmt.Errorf("invalid timeout %q", arg)
			}
			cfg.Timeout = d
		case "--retries":
			n, err := strconv.Atoi(arg)
			if err != nil || n < 1 {
				return cfg, fmt.Errorf("invalid retries %q", arg)
			}
			cfg.Retries = uint(n)
		default:
			return cfg, fmt.Errorf("unknown flag %s", flag)
		}
	}

	if len(cfg.Sources) == 0 {
		return cfg, fmt.Errorf("no pact sources given: use --file, --dir or --url")
	}
	cfg.BaseURL = fmt.Sprintf("%s://%s:%d", scheme, hostname, port)
	return cfg, nil
}
