// Package mcp exposes scanning to agents as Model Context Protocol tools.
package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/cookie-scanner/pkg/config"
	"github.com/Sriram-PR/cookie-scanner/pkg/orchestrate"
	"github.com/Sriram-PR/cookie-scanner/pkg/storage"
)

const (
	serverName    = "cookie-scanner"
	serverVersion = "1.0.0"
)

// ServerConfig holds configuration for the MCP server
type ServerConfig struct {
	AppConfig  *config.AppConfig
	ConfigPath string
	Transport  string // "stdio" or "sse"
	Port       int
	Logger     *logrus.Logger
	Runner     *orchestrate.Runner
	Store      storage.Store
}

// Server wraps the MCP server with the scanner's tools
type Server struct {
	mcpServer  *server.MCPServer
	cfg        *ServerConfig
	log        *logrus.Entry
	jobManager *JobManager
}

// NewServer creates a new MCP server instance
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg.AppConfig == nil {
		return nil, fmt.Errorf("AppConfig is required")
	}
	if cfg.Runner == nil || cfg.Store == nil {
		return nil, fmt.Errorf("Runner and Store are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	mcpServer := server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithLogging(),
	)

	s := &Server{
		mcpServer:  mcpServer,
		cfg:        cfg,
		log:        cfg.Logger.WithField("component", "mcp"),
		jobManager: NewJobManager(),
	}
	s.registerTools()
	return s, nil
}

func (s *Server) registerTools() {
	tools := []server.ServerTool{
		{
			Tool: mcp.NewTool("list_sites",
				mcp.WithDescription("List configured sites with their most recent scan"),
			),
			Handler: s.handleListSites,
		},
		{
			Tool: mcp.NewTool("scan_site",
				mcp.WithDescription("Start a background cookie compliance scan. Returns immediately with a job ID that is also the scan ID."),
				mcp.WithString("url",
					mcp.Description("URL to scan (http or https). Either url or site_key is required."),
				),
				mcp.WithString("site_key",
					mcp.Description("Site key from the config file"),
				),
				mcp.WithString("depth",
					mcp.Description("Scan depth: lite, medium, deep or enterprise"),
				),
			),
			Handler: s.handleScanSite,
		},
		{
			Tool: mcp.NewTool("get_job_status",
				mcp.WithDescription("Get the status of a scan job with its most recent progress lines"),
				mcp.WithString("job_id",
					mcp.Required(),
					mcp.Description("The job ID returned by scan_site"),
				),
				mcp.WithNumber("log_lines",
					mcp.Description("Number of recent log lines to include (default: 20, max: 200)"),
				),
			),
			Handler: s.handleGetJobStatus,
		},
		{
			Tool: mcp.NewTool("get_scan_report",
				mcp.WithDescription("Return the stored report of a completed scan"),
				mcp.WithString("scan_id",
					mcp.Required(),
					mcp.Description("Scan ID (same as the job ID)"),
				),
				mcp.WithBoolean("include_screenshot",
					mcp.Description("Include the base64 screenshot (default: false)"),
				),
			),
			Handler: s.handleGetScanReport,
		},
		{
			Tool: mcp.NewTool("list_scans",
				mcp.WithDescription("List recorded scans, newest first"),
				mcp.WithNumber("limit",
					mcp.Description("Maximum number of scans to return (default: 20, max: 200)"),
				),
			),
			Handler: s.handleListScans,
		},
		{
			Tool: mcp.NewTool("cancel_job",
				mcp.WithDescription("Cancel a running scan job"),
				mcp.WithString("job_id",
					mcp.Required(),
					mcp.Description("The job ID returned by scan_site"),
				),
			),
			Handler: s.handleCancelJob,
		},
	}
	s.mcpServer.AddTools(tools...)
	s.log.Infof("Registered %d MCP tools", len(tools))
}

// Run starts the MCP server with the configured transport
func (s *Server) Run() error {
	switch s.cfg.Transport {
	case "stdio":
		s.log.Info("Starting MCP server with stdio transport")
		return server.ServeStdio(s.mcpServer)
	case "sse":
		addr := fmt.Sprintf(":%d", s.cfg.Port)
		s.log.Infof("Starting MCP server with SSE transport on %s", addr)
		sseServer := server.NewSSEServer(s.mcpServer)
		return sseServer.Start(addr)
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio, sse)", s.cfg.Transport)
	}
}

// Shutdown cancels running jobs
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down MCP server...")
	s.jobManager.CancelAll()
	return nil
}
