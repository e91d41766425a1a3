package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/docgraph/internal/core/domain"
)

var (
	addFileType string
	addIndex    bool
	addEnqueue  bool
	addPriority string
	listLimit   int
)

var addCmd = &cobra.Command{
	Use:   "add [path]",
	Short: "Register a document for indexing",
	Long: `Copies a file into blob storage and registers it as a pending document.

The file type is taken from the extension unless --type is given. Use
--index to index immediately, or --enqueue to hand it to the worker.`,
	Args: cobra.ExactArgs(1),
	RunE: runAdd,
}

var documentCmd = &cobra.Command{
	Use:         "document",
	Short:       "Manage documents",
	Long:        `List, view or delete registered documents.`,
	Annotations: noQueue(),
}

var documentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents for the organization",
	Args:  cobra.NoArgs,
	RunE:  runDocumentList,
}

var documentGetCmd = &cobra.Command{
	Use:   "get [doc-id]",
	Short: "Show document info",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentGet,
}

var documentContentCmd = &cobra.Command{
	Use:   "content [doc-id]",
	Short: "Print indexed document text",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentContent,
}

var documentDeleteCmd = &cobra.Command{
	Use:   "delete [doc-id]",
	Short: "Soft-delete a document",
	Long:  `Tombstones the document. Its chunks are excluded from search immediately.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentDelete,
}

func init() {
	addCmd.Flags().StringVarP(&addFileType, "type", "t", "", "file type (default from extension)")
	addCmd.Flags().BoolVar(&addIndex, "index", false, "index the document immediately")
	addCmd.Flags().BoolVar(&addEnqueue, "enqueue", false, "enqueue an index job")
	addCmd.Flags().StringVar(&addPriority, "priority", string(domain.PriorityNormal), "job priority: high, normal or low")
	addCmd.MarkFlagsMutuallyExclusive("index", "enqueue")

	documentListCmd.Flags().IntVarP(&listLimit, "limit", "n", 50, "maximum number of documents")

	documentCmd.AddCommand(documentListCmd)
	documentCmd.AddCommand(documentGetCmd)
	documentCmd.AddCommand(documentContentCmd)
	documentCmd.AddCommand(documentDeleteCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(documentCmd)
}

func runAdd(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	fileType := addFileType
	if fileType == "" {
		fileType = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}
	if len(supportedTypes) > 0 && !containsType(supportedTypes, fileType) {
		return fmt.Errorf("file type %q: %w", fileType, domain.ErrUnsupportedType)
	}

	doc, err := documentService.Register(cmd.Context(), currentOrg(), filepath.Base(path), fileType, data)
	if err != nil {
		return fmt.Errorf("failed to register document: %w", err)
	}
	cmd.Printf("Registered %s as %s\n", doc.Filename, doc.ID)

	switch {
	case addIndex:
		if indexingService == nil {
			return errors.New("indexing service not configured")
		}
		result := indexingService.IndexDocument(cmd.Context(), doc.ID, domain.IndexOptions{})
		printIndexingResult(cmd, result)
		if !result.Success {
			return fmt.Errorf("indexing failed: %s", result.Error)
		}
	case addEnqueue:
		if queueService == nil {
			return errors.New("queue service not configured")
		}
		job, _, err := queueService.EnqueueIndexJob(cmd.Context(), doc.ID, false, domain.ParsePriority(addPriority))
		if err != nil {
			return fmt.Errorf("failed to enqueue: %w", err)
		}
		cmd.Printf("Enqueued job %s\n", job.ID)
	}
	return nil
}

func runDocumentList(cmd *cobra.Command, _ []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	docs, err := documentService.List(cmd.Context(), currentOrg(), listLimit)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	if len(docs) == 0 {
		cmd.Printf("No documents found for organization: %s\n", currentOrg())
		return nil
	}

	cmd.Printf("Documents for organization %s:\n\n", currentOrg())
	for i := range docs {
		cmd.Printf("  %s\n", docs[i].ID)
		cmd.Printf("    File:   %s\n", docs[i].Filename)
		cmd.Printf("    Status: %s\n", docs[i].IndexStatus)
		cmd.Println()
	}

	cmd.Printf("Total: %d documents\n", len(docs))
	return nil
}

func runDocumentGet(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	doc, err := documentService.Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	cmd.Printf("Document: %s\n\n", doc.ID)
	cmd.Printf("  File:     %s (%s)\n", doc.Filename, doc.FileType)
	cmd.Printf("  Org:      %s\n", doc.OrgID)
	cmd.Printf("  Status:   %s\n", doc.IndexStatus)
	if doc.IndexError != "" {
		cmd.Printf("  Error:    %s\n", doc.IndexError)
	}
	cmd.Printf("  Pages:    %d\n", doc.PageCount)
	cmd.Printf("  Chunks:   %d\n", doc.ChunkCount)
	cmd.Printf("  Tokens:   %d\n", doc.TokenCount)
	cmd.Printf("  Created:  %s\n", doc.CreatedAt.Format("2006-01-02 15:04:05"))
	if doc.IndexedAt != nil {
		cmd.Printf("  Indexed:  %s\n", doc.IndexedAt.Format("2006-01-02 15:04:05"))
	}

	if len(doc.Metadata) > 0 {
		cmd.Println("\n  Metadata:")
		for k, v := range doc.Metadata {
			cmd.Printf("    %s: %v\n", k, v)
		}
	}
	return nil
}

func runDocumentContent(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	content, err := documentService.GetContent(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get document content: %w", err)
	}

	cmd.Println(content)
	return nil
}

func runDocumentDelete(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	if err := documentService.Delete(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	cmd.Printf("Document %s deleted.\n", args[0])
	return nil
}

func containsType(types []string, fileType string) bool {
	for _, t := range types {
		if t == fileType {
			return true
		}
	}
	return false
}
