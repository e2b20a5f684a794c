package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Sriram-PR/cookie-scanner/pkg/mcp"
)

// runMcpServer handles the mcp-server subcommand
func runMcpServer(args []string) {
	fs := flag.NewFlagSet("mcp-server", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	transport := fs.String("transport", "", "Transport type (stdio, sse); overrides mcp.transport")
	port := fs.Int("port", 0, "HTTP port (for sse transport); overrides mcp.port")
	logLevel := fs.String("loglevel", "", "Log level (debug, info, warn, error); overrides log_level")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: cookie-scanner mcp-server [options]

Start an MCP (Model Context Protocol) server for AI tool integration.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # Start with stdio transport
  cookie-scanner mcp-server -config config.yaml

  # Start with SSE transport on port 8080
  cookie-scanner mcp-server -config config.yaml -transport sse -port 8080

Available MCP Tools:
  list_sites       List all configured sites
  scan_site        Start a background compliance scan
  get_job_status   Check progress of a scan job
  get_scan_report  Fetch the report of a finished scan
  list_scans       List recorded scans
  cancel_job       Cancel a running scan
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	explicitConfig := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			explicitConfig = true
		}
	})

	exitCode := doMcpServer(*configFile, explicitConfig, *transport, *port, *logLevel, os.Stderr)
	os.Exit(exitCode)
}

// doMcpServer is the testable implementation of the MCP server. The protocol
// owns stdout, so every log line goes to stderr.
func doMcpServer(configPath string, explicitConfig bool, transport string, port int, logLevel string, stderr io.Writer) int {
	appCfg, err := loadConfigOrDefault(configPath, explicitConfig)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return 1
	}
	if transport != "" {
		appCfg.MCP.Transport = transport
	}
	if port > 0 {
		appCfg.MCP.Port = port
	}

	log := setupLogger(appCfg, logLevel, stderr)
	if err := validateConfig(appCfg, log); err != nil {
		fmt.Fprintf(stderr, "Config error: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rt, err := openRuntime(ctx, appCfg, log.WithField("component", "mcp_runtime"))
	if err != nil {
		fmt.Fprintf(stderr, "Error initializing scanner: %v\n", err)
		return 1
	}
	defer rt.Close()

	server, err := mcp.NewServer(&mcp.ServerConfig{
		AppConfig:  appCfg,
		ConfigPath: configPath,
		Transport:  appCfg.MCP.Transport,
		Port:       appCfg.MCP.Port,
		Logger:     log,
		Runner:     rt.runner,
		Store:      rt.store,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error creating MCP server: %v\n", err)
		return 1
	}
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		server.Shutdown(shutdownCtx)
	}()

	log.Infof("Starting MCP server (transport: %s)", appCfg.MCP.Transport)
	if err := server.Run(); err != nil {
		fmt.Fprintf(stderr, "MCP server error: %v\n", err)
		return 1
	}
	return 0
}
