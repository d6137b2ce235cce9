package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cognivyu/cognivyu/internal/config"
	"github.com/cognivyu/cognivyu/internal/domain"
	"github.com/cognivyu/cognivyu/internal/rag"
)

var (
	retrieveDomain string
	retrieveLimit  int
	retrieveJSON   bool
	catalogPath    string
)

var domainsCmd = &cobra.Command{
	Use:   "domains",
	Short: "List domain labels and their metadata tags",
	Args:  cobra.NoArgs,
	RunE:  runDomains,
}

var retrieveCmd = &cobra.Command{
	Use:   "retrieve [query]",
	Short: "Run a filtered retrieval without generating an answer",
	Long: `Embeds the query and searches the vector collection restricted to the
tag of --domain. Useful for checking what context a question would get.`,
	Args: cobra.ExactArgs(1),
	RunE: runRetrieve,
}

func init() {
	domainsCmd.Flags().StringVar(&catalogPath, "catalog", "", "YAML domain catalog (defaults to DOMAIN_CATALOG_PATH or the built-in set)")
	retrieveCmd.Flags().StringVarP(&retrieveDomain, "domain", "d", "", "domain label to filter by (required)")
	retrieveCmd.Flags().IntVarP(&retrieveLimit, "limit", "n", rag.DefaultTopK, "maximum number of documents")
	retrieveCmd.Flags().BoolVar(&retrieveJSON, "json", false, "output documents as JSON")
	_ = retrieveCmd.MarkFlagRequired("domain")
	rootCmd.AddCommand(domainsCmd, retrieveCmd)
}

func runDomains(cmd *cobra.Command, args []string) error {
	path := catalogPath
	if path == "" {
		path = config.CatalogPathFromEnv()
	}
	catalog := domain.DefaultCatalog()
	if path != "" {
		loaded, err := domain.LoadCatalog(path)
		if err != nil {
			return fmt.Errorf("load domain catalog: %w", err)
		}
		catalog = loaded
	}

	for _, e := range catalog.Entries() {
		tag := e.Tag
		if tag == "" {
			tag = "(no documents)"
		}
		cmd.Printf("%-24s %s\n", e.Label, tag)
	}
	return nil
}

func runRetrieve(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	catalog, err := loadCatalog(cfg)
	if err != nil {
		return err
	}
	vectors, err := newVectorStore(cfg)
	if err != nil {
		return err
	}
	defer vectors.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	docs, err := rag.NewRetriever(vectors, catalog).Retrieve(ctx, args[0], retrieveDomain, retrieveLimit)
	if err != nil {
		return fmt.Errorf("retrieve: %w", err)
	}

	if retrieveJSON {
		data, err := json.MarshalIndent(docs, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal documents: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(docs) == 0 {
		cmd.Println("No documents found.")
		return nil
	}
	for i, d := range docs {
		page := d.Metadata.Page
		if page == "" {
			page = "?"
		}
		cmd.Printf("[%d] %s p.%s (%.3f)\n", i+1, d.Metadata.SourceFile, page, d.Score)
		cmd.Println(d.Content)
		cmd.Println()
	}
	return nil
}
