// Package main provides the datasheet-search CLI: ingest component
// datasheets into a vector collection and search them.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bull/datasheet-search/internal/embedding"
	"github.com/bull/datasheet-search/internal/extract"
	ghclient "github.com/bull/datasheet-search/internal/github"
	"github.com/bull/datasheet-search/internal/ingest"
	"github.com/bull/datasheet-search/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "datasheet",
	Short: "Component datasheet ingestion and semantic search",
	Long: `Ingests component datasheets into a persisted vector collection and
searches them by meaning.

Environment variables:
  STORAGE_BACKEND  "embedded" (default) or "qdrant"
  DATA_DIR         storage directory for the embedded backend (default: ./data)
  QDRANT_HOST      Qdrant hostname (default: localhost)
  QDRANT_PORT      Qdrant gRPC port (default: 6334)
  COLLECTION_NAME  collection name (default: component_datasheets)
  OPENAI_API_KEY   OpenAI API key for embeddings (required)
  GITHUB_TOKEN     GitHub token for higher sync rate limits (optional)
  LOG_LEVEL        debug, info, warn, or error (default: warn)`,
}

var (
	ingestInfo ingest.ComponentInfo

	searchLimit    int
	searchCategory string

	syncOwner    string
	syncRepo     string
	syncBasePath string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Ingest one datasheet document",
	Args:  cobra.ExactArgs(1),
	RunE:  runIngest,
}

var batchCmd = &cobra.Command{
	Use:   "batch <manifest.yaml>",
	Short: "Ingest all documents listed in a YAML manifest",
	Args:  cobra.ExactArgs(1),
	RunE:  runBatch,
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search stored datasheet chunks by meaning",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show collection statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

var dropCmd = &cobra.Command{
	Use:   "drop",
	Short: "Delete all stored records",
	Args:  cobra.NoArgs,
	RunE:  runDrop,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Ingest every datasheet document from a GitHub repository",
	Long: `Lists all markdown and text files under the given repository path and
ingests each one. Component identity is derived from the file layout:
<category>/<part-number>.md`,
	RunE: runSync,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestInfo.MPN, "mpn", "", "manufacturer part number")
	ingestCmd.Flags().StringVar(&ingestInfo.Manufacturer, "manufacturer", "", "component manufacturer")
	ingestCmd.Flags().StringVar(&ingestInfo.Category, "category", "", "component category (sensor, microcontroller, ...)")
	ingestCmd.Flags().StringVar(&ingestInfo.Description, "description", "", "short component description")
	ingestCmd.Flags().StringVar(&ingestInfo.DatasheetURL, "url", "", "canonical datasheet URL")

	searchCmd.Flags().IntVarP(&searchLimit, "limit", "k", 5, "maximum number of results")
	searchCmd.Flags().StringVar(&searchCategory, "category", "", "restrict results to one component category")

	syncCmd.Flags().StringVar(&syncOwner, "owner", "", "repository owner (required)")
	syncCmd.Flags().StringVar(&syncRepo, "repo", "", "repository name (required)")
	syncCmd.Flags().StringVar(&syncBasePath, "path", "", "directory within the repository (default: repository root)")
	_ = syncCmd.MarkFlagRequired("owner")
	_ = syncCmd.MarkFlagRequired("repo")

	rootCmd.AddCommand(ingestCmd, batchCmd, searchCmd, statsCmd, dropCmd, syncCmd)
}

func main() {
	// Load .env file if present (local development), ignore if missing
	_ = godotenv.Load()

	initLogger()

	// Cancel in-flight ingestion on SIGTERM/SIGINT
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// initLogger routes internal logs to stderr so command output on stdout
// stays clean. Default level is warn; LOG_LEVEL overrides.
func initLogger() {
	level := slog.LevelWarn
	switch strings.ToLower(getEnv("LOG_LEVEL", "warn")) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// openCollection builds the collection from environment configuration.
func openCollection() (*store.Collection, error) {
	name := getEnv("COLLECTION_NAME", store.DefaultCollectionName)

	var backend store.Backend
	var err error
	switch backendKind := getEnv("STORAGE_BACKEND", "embedded"); backendKind {
	case "embedded":
		backend, err = store.NewEmbeddedBackend(getEnv("DATA_DIR", "./data"), name, nil)
	case "qdrant":
		backend, err = store.NewQdrantBackend(getEnv("QDRANT_HOST", "localhost"), getEnvInt("QDRANT_PORT", 6334), name, nil)
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q", backendKind)
	}
	if err != nil {
		return nil, fmt.Errorf("open storage backend: %w", err)
	}

	provider := embedding.NewProvider(func() (embedding.Encoder, error) {
		return embedding.NewOpenAIEncoder()
	}, 0, nil)

	return store.NewCollection(name, provider, backend, nil), nil
}

func newPipeline(collection *store.Collection) *ingest.Pipeline {
	return ingest.NewPipeline(collection, extract.New(), nil, nil)
}

func runIngest(cmd *cobra.Command, args []string) error {
	collection, err := openCollection()
	if err != nil {
		return err
	}
	defer collection.Close()

	ids, err := newPipeline(collection).IngestFile(cmd.Context(), args[0], ingestInfo)
	if err != nil {
		return fmt.Errorf("ingest %s: %w", args[0], err)
	}

	fmt.Printf("Ingested %s: %d chunks\n", args[0], len(ids))
	return nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	manifest, err := ingest.LoadManifest(args[0])
	if err != nil {
		return err
	}

	collection, err := openCollection()
	if err != nil {
		return err
	}
	defer collection.Close()

	start := time.Now()
	results := newPipeline(collection).BatchIngest(cmd.Context(), manifest.Datasheets)

	paths := make([]string, 0, len(results))
	for path := range results {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var chunks, failed int
	for _, path := range paths {
		ids := results[path]
		if len(ids) == 0 {
			failed++
			fmt.Printf("  FAILED  %s\n", path)
			continue
		}
		chunks += len(ids)
		fmt.Printf("  ok      %s (%d chunks)\n", path, len(ids))
	}

	fmt.Println()
	fmt.Printf("Batch complete: %d/%d documents, %d chunks, %s\n",
		len(results)-failed, len(results), chunks, time.Since(start).Round(time.Millisecond))
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	collection, err := openCollection()
	if err != nil {
		return err
	}
	defer collection.Close()

	query := strings.Join(args, " ")
	var results []store.SearchResult
	if searchCategory != "" {
		results, err = collection.SearchByCategory(cmd.Context(), query, searchCategory, searchLimit)
	} else {
		results, err = collection.Search(cmd.Context(), query, searchLimit, nil)
	}
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("No results.")
		return nil
	}

	for i, result := range results {
		meta := result.Metadata
		fmt.Printf("%d. %s", i+1, meta.MPN)
		if meta.Manufacturer != "" {
			fmt.Printf(" (%s)", meta.Manufacturer)
		}
		if meta.Category != "" {
			fmt.Printf(" [%s]", meta.Category)
		}
		fmt.Printf("  distance=%.4f\n", result.Distance)
		if meta.SourceFile != "" {
			fmt.Printf("   source: %s (chunk %d)\n", meta.SourceFile, meta.ChunkIndex)
		}
		fmt.Printf("   %s\n\n", snippet(result.Text, 200))
	}
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	collection, err := openCollection()
	if err != nil {
		return err
	}
	defer collection.Close()

	stats, err := collection.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("collection stats: %w", err)
	}

	fmt.Printf("Collection: %s\n", stats.CollectionName)
	fmt.Printf("Records:    %d\n", stats.TotalRecords)
	fmt.Printf("Storage:    %s\n", stats.StorageLocation)
	return nil
}

func runDrop(cmd *cobra.Command, args []string) error {
	collection, err := openCollection()
	if err != nil {
		return err
	}
	defer collection.Close()

	if err := collection.Drop(cmd.Context()); err != nil {
		return fmt.Errorf("drop collection: %w", err)
	}
	fmt.Printf("Dropped collection %s\n", collection.Name())
	return nil
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	start := time.Now()

	collection, err := openCollection()
	if err != nil {
		return err
	}
	defer collection.Close()

	client, err := ghclient.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("create GitHub client: %w", err)
	}
	source := ghclient.NewSource(client, syncOwner, syncRepo, syncBasePath)
	syncer := ghclient.NewSyncer(source, newPipeline(collection), nil)

	fmt.Printf("Syncing %s/%s...\n", syncOwner, syncRepo)
	result, err := syncer.Sync(ctx)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	fmt.Println()
	fmt.Println("Sync complete!")
	fmt.Printf("  Documents: %d\n", result.Documents)
	fmt.Printf("  Chunks:    %d\n", result.Chunks)
	fmt.Printf("  Commit:    %s\n", result.CommitSHA)
	fmt.Printf("  Duration:  %s\n", time.Since(start).Round(time.Second))

	if len(result.Failed) > 0 {
		fmt.Println()
		fmt.Println("Failed documents:")
		for _, path := range result.Failed {
			fmt.Printf("  - %s\n", path)
		}
	}
	return nil
}

// snippet truncates text to at most n runes for display, never cutting
// through a multi-byte character.
func snippet(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		var i int
		if _, err := fmt.Sscanf(v, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}
