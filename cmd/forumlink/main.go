// Package main provides the ForumLink CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/geofora/forumlink/pkg/auth"
	"github.com/geofora/forumlink/pkg/config"
	"github.com/geofora/forumlink/pkg/content"
	"github.com/geofora/forumlink/pkg/forumlink"
	"github.com/geofora/forumlink/pkg/server"
	"github.com/geofora/forumlink/pkg/strategy"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "forumlink",
		Short: "ForumLink - Bidirectional content interlinking core",
		Long: `ForumLink connects forum content (questions, answers) with main-site
pages through scored, bidirectional interlinks.

Features:
  • Ranked link suggestions with a per-item cap
  • Write-once link registry with by-source/by-target views
  • Forward + derived reverse link application
  • Full strategy runs: collect, score, apply, invalidate
  • Cached read views with batched invalidation`,
	}

	rootCmd.PersistentFlags().String("config", "", "Path to YAML config file")

	// Version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ForumLink v%s (%s)\n", version, commit)
		},
	})

	// Serve command
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the ForumLink HTTP API server",
		RunE:  runServe,
	}
	serveCmd.Flags().Int("http-port", 8080, "HTTP API port")
	serveCmd.Flags().String("data-dir", "./data", "Registry data directory")
	serveCmd.Flags().Bool("in-memory", false, "Keep the registry in memory")
	serveCmd.Flags().String("content-url", "", "Content service base URL")
	serveCmd.Flags().String("relevance-url", "", "Relevance service base URL")
	serveCmd.Flags().Bool("no-auth", false, "Disable authentication")
	rootCmd.AddCommand(serveCmd)

	// Strategy commands
	strategyCmd := &cobra.Command{
		Use:   "strategy",
		Short: "Interlinking strategy runs",
	}
	previewCmd := &cobra.Command{
		Use:   "preview [forum-id]",
		Short: "Compute ranked candidates without writing",
		Args:  cobra.ExactArgs(1),
		RunE:  runStrategyPreview,
	}
	addStrategyFlags(previewCmd)
	strategyCmd.AddCommand(previewCmd)

	runCmd := &cobra.Command{
		Use:   "run [forum-id]",
		Short: "Run the full strategy and commit links",
		Args:  cobra.ExactArgs(1),
		RunE:  runStrategyCommit,
	}
	addStrategyFlags(runCmd)
	strategyCmd.AddCommand(runCmd)
	rootCmd.AddCommand(strategyCmd)

	// Content command
	contentCmd := &cobra.Command{
		Use:   "content [forum|main_site]",
		Short: "List interlinkable content from a source",
		Args:  cobra.ExactArgs(1),
		RunE:  runContentList,
	}
	contentCmd.Flags().Int("limit", content.DefaultListLimit, "Maximum items to list")
	rootCmd.AddCommand(contentCmd)

	// Links command
	linksCmd := &cobra.Command{
		Use:   "links",
		Short: "List registered interlinks for a content item",
		RunE:  runLinksList,
	}
	linksCmd.Flags().String("type", "", "Content type (question, answer, main_page)")
	linksCmd.Flags().Int64("id", 0, "Content ID")
	linksCmd.Flags().String("view", "source", "View: source or target")
	linksCmd.Flags().String("data-dir", "./data", "Registry data directory")
	rootCmd.AddCommand(linksCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addStrategyFlags(cmd *cobra.Command) {
	cmd.Flags().Int("per-item-cap", 0, "Suggestions per content item (0 = configured default)")
	cmd.Flags().Int("content-limit", 0, "Items per collected pool (0 = configured default)")
	cmd.Flags().String("data-dir", "./data", "Registry data directory")
	cmd.Flags().Bool("in-memory", false, "Keep the registry in memory")
}

// loadConfig builds the effective configuration: env first, optional YAML
// overlay, then command-line flags on top.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.LoadFromEnv()

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		if err := cfg.LoadFromFile(path); err != nil {
			return nil, err
		}
	} else if path := os.Getenv("FORUMLINK_CONFIG"); path != "" {
		if err := cfg.LoadFromFile(path); err != nil {
			return nil, err
		}
	}

	if cmd.Flags().Changed("http-port") {
		cfg.Server.Port, _ = cmd.Flags().GetInt("http-port")
	}
	if cmd.Flags().Changed("data-dir") {
		cfg.Registry.DataDir, _ = cmd.Flags().GetString("data-dir")
	}
	if cmd.Flags().Changed("in-memory") {
		cfg.Registry.InMemory, _ = cmd.Flags().GetBool("in-memory")
	}
	if cmd.Flags().Changed("content-url") {
		cfg.Content.BaseURL, _ = cmd.Flags().GetString("content-url")
	}
	if cmd.Flags().Changed("relevance-url") {
		cfg.Relevance.BaseURL, _ = cmd.Flags().GetString("relevance-url")
	}
	if noAuth, _ := cmd.Flags().GetBool("no-auth"); noAuth {
		cfg.Auth.Enabled = false
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func openService(cmd *cobra.Command) (*forumlink.Service, *config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}

	if !cfg.Registry.InMemory {
		if err := os.MkdirAll(cfg.Registry.DataDir, 0755); err != nil {
			return nil, nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	svc, err := forumlink.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	return svc, cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	svc, cfg, err := openService(cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	fmt.Printf("Starting ForumLink v%s\n", version)
	fmt.Printf("   Data directory: %s (in-memory: %v)\n", cfg.Registry.DataDir, cfg.Registry.InMemory)
	fmt.Printf("   Content URL:    %s\n", cfg.Content.BaseURL)
	fmt.Printf("   Relevance URL:  %s\n", cfg.Relevance.BaseURL)
	fmt.Println()

	var tokens *auth.TokenStore
	if cfg.Auth.Enabled {
		tokens = auth.NewTokenStore(auth.DefaultConfig())
		if err := tokens.Register("primary", cfg.Auth.Token); err != nil {
			return fmt.Errorf("registering API token: %w", err)
		}
	} else {
		fmt.Println("Authentication disabled")
	}

	serverConfig := server.DefaultConfig()
	serverConfig.Address = cfg.Server.Address
	serverConfig.Port = cfg.Server.Port
	serverConfig.ReadTimeout = cfg.Server.ReadTimeout
	serverConfig.WriteTimeout = cfg.Server.WriteTimeout

	httpServer, err := server.New(svc, tokens, serverConfig)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	if err := httpServer.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}

	fmt.Println("ForumLink is ready")
	fmt.Printf("  • HTTP API: http://localhost:%d\n", cfg.Server.Port)
	fmt.Printf("  • Health:   http://localhost:%d/health\n", cfg.Server.Port)
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nShutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return httpServer.Stop(ctx)
}

func runStrategyPreview(cmd *cobra.Command, args []string) error {
	return runStrategy(cmd, args, true)
}

func runStrategyCommit(cmd *cobra.Command, args []string) error {
	return runStrategy(cmd, args, false)
}

func runStrategy(cmd *cobra.Command, args []string, previewOnly bool) error {
	var forumID int64
	if _, err := fmt.Sscanf(args[0], "%d", &forumID); err != nil || forumID <= 0 {
		return fmt.Errorf("invalid forum id %q", args[0])
	}

	svc, _, err := openService(cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	perItemCap, _ := cmd.Flags().GetInt("per-item-cap")
	contentLimit, _ := cmd.Flags().GetInt("content-limit")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	result, err := svc.GenerateInterlinkingStrategy(ctx, forumID, strategy.RunOptions{
		PreviewOnly:  previewOnly,
		PerItemCap:   perItemCap,
		ContentLimit: contentLimit,
	})
	if err != nil {
		return err
	}

	return printJSON(result)
}

func runContentList(cmd *cobra.Command, args []string) error {
	source := content.Source(args[0])
	if !source.Valid() {
		return fmt.Errorf("unknown source %q (want forum or main_site)", args[0])
	}

	// Content listing talks to the content service directly; no registry
	// needed, so a running server's badger lock is never touched.
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	provider := content.NewHTTPProvider(&content.HTTPConfig{
		BaseURL: cfg.Content.BaseURL,
		APIKey:  cfg.Content.APIKey,
		Timeout: cfg.Content.Timeout,
	})

	limit, _ := cmd.Flags().GetInt("limit")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	items, err := provider.ListInterlinkable(ctx, source, limit)
	if err != nil {
		return err
	}

	for _, item := range items {
		fmt.Printf("%-10s %6d  %s\n", item.Type, item.ID, item.Title)
	}
	fmt.Printf("%d items\n", len(items))
	return nil
}

func runLinksList(cmd *cobra.Command, args []string) error {
	typeStr, _ := cmd.Flags().GetString("type")
	id, _ := cmd.Flags().GetInt64("id")
	view, _ := cmd.Flags().GetString("view")

	ct := content.ContentType(typeStr)
	if !ct.Valid() {
		return fmt.Errorf("unknown content type %q", typeStr)
	}
	if id <= 0 {
		return fmt.Errorf("positive --id required")
	}

	svc, _, err := openService(cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	ref := content.Ref{Type: ct, ID: id}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch view {
	case "source":
		result, err := svc.ListLinksBySource(ctx, ref)
		if err != nil {
			return err
		}
		return printJSON(result)
	case "target":
		result, err := svc.ListLinksByTarget(ctx, ref)
		if err != nil {
			return err
		}
		return printJSON(result)
	default:
		return fmt.Errorf("view must be source or target, got %q", view)
	}
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
