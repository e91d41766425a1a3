package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docgraph/internal/core/domain"
)

// Document Command Tests

func TestDocumentCmd_Use(t *testing.T) {
	assert.Equal(t, "document", documentCmd.Use)
}

func TestDocumentCmd_HasSubcommands(t *testing.T) {
	commands := documentCmd.Commands()
	commandNames := make([]string, 0, len(commands))
	for _, cmd := range commands {
		commandNames = append(commandNames, cmd.Name())
	}

	assert.Contains(t, commandNames, "list")
	assert.Contains(t, commandNames, "get")
	assert.Contains(t, commandNames, "content")
	assert.Contains(t, commandNames, "delete")
}

// Document List Tests

func TestDocumentListCmd_Executes(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	out, err := executeCommand("document", "list", "--org", "acme")

	require.NoError(t, err)
	assert.Contains(t, out, "Documents for organization acme")
	assert.Contains(t, out, "doc-1")
	assert.Contains(t, out, "q3-report.md")
	assert.Contains(t, out, "Total: 1 documents")
}

func TestDocumentListCmd_EmptyOrg(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	out, err := executeCommand("document", "list", "--org", "globex")

	require.NoError(t, err)
	assert.Contains(t, out, "No documents found for organization: globex")
}

func TestDocumentListCmd_RejectsArgs(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	_, err := executeCommand("document", "list", "extra")

	assert.Error(t, err)
}

// Document Get Tests

func TestDocumentGetCmd_RequiresExactlyOneArg(t *testing.T) {
	_, err := executeCommand("document", "get")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestDocumentGetCmd_ExecutesWithArg(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	out, err := executeCommand("document", "get", "doc-1")

	require.NoError(t, err)
	assert.Contains(t, out, "Document: doc-1")
	assert.Contains(t, out, "q3-report.md (md)")
	assert.Contains(t, out, "Status:   indexed")
	assert.Contains(t, out, "Chunks:   4")
}

func TestDocumentGetCmd_NotFound(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	_, err := executeCommand("document", "get", "missing")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// Document Content / Delete Tests

func TestDocumentContentCmd_ExecutesWithArg(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	out, err := executeCommand("document", "content", "doc-1")

	require.NoError(t, err)
	assert.Contains(t, out, "# Q3 Report")
}

func TestDocumentDeleteCmd_Executes(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	out, err := executeCommand("document", "delete", "doc-1")

	require.NoError(t, err)
	assert.Contains(t, out, "Document doc-1 deleted.")
	assert.Equal(t, []string{"doc-1"}, currentMocks.documents.deletedIDs())
}

func TestDocumentCmd_NoService(t *testing.T) {
	_, err := executeCommand("document", "list")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "document service not configured")
}

// Add Tests

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestAddCmd_RegistersDocument(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	path := writeTempFile(t, "Notes.MD", "# Notes")
	out, err := executeCommand("add", path)

	require.NoError(t, err)
	assert.Contains(t, out, "Registered Notes.MD as new-1")
	doc := currentMocks.documents.docs["new-1"]
	require.NotNil(t, doc)
	assert.Equal(t, "md", doc.FileType)
	assert.Equal(t, "acme", doc.OrgID)
}

func TestAddCmd_UnsupportedType(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	path := writeTempFile(t, "slides.pptx", "binary")
	_, err := executeCommand("add", path)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnsupportedType)
	assert.Empty(t, currentMocks.documents.registered())
}

func TestAddCmd_TypeOverride(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	path := writeTempFile(t, "README", "plain text")
	_, err := executeCommand("add", path, "--type", "txt")

	require.NoError(t, err)
	assert.Equal(t, "txt", currentMocks.documents.docs["new-1"].FileType)
}

func TestAddCmd_IndexImmediately(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	path := writeTempFile(t, "notes.txt", "hello")
	out, err := executeCommand("add", path, "--index")

	require.NoError(t, err)
	assert.Contains(t, out, "new-1 indexed: 4 chunks")
}

func TestAddCmd_Enqueue(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	path := writeTempFile(t, "notes.txt", "hello")
	out, err := executeCommand("add", path, "--enqueue", "--priority", "high")

	require.NoError(t, err)
	assert.Contains(t, out, "Enqueued job "+domain.IndexJobID("new-1"))
	job, ok := currentMocks.queue.job(domain.IndexJobID("new-1"))
	require.True(t, ok)
	assert.Equal(t, domain.PriorityHigh, job.Priority)
}

func TestAddCmd_IndexAndEnqueueExclusive(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	path := writeTempFile(t, "notes.txt", "hello")
	_, err := executeCommand("add", path, "--index", "--enqueue")

	assert.Error(t, err)
}

func TestAddCmd_MissingFile(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	_, err := executeCommand("add", filepath.Join(t.TempDir(), "nope.txt"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading")
}
