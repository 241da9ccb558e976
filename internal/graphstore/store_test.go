package graphstore

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TEST PLAN: graph store
//
// 1. ingesting a TypeScript file creates a file node, function nodes, and
//    contains/imports relationships
// 2. unsupported extensions still get a file node but no structure
// 3. re-ingesting a file retracts its previous contribution first
// 4. DeleteFileData removes the file's nodes and edges
// 5. ImportsOf and FunctionsIn answer from the live graph
// 6. extractor shapes: import forms, arrow functions, class methods

const sampleTS = `import { readFile } from 'fs/promises'
import path from 'path'
const legacy = require('./legacy')

export async function loadConfig(dir: string) {
  return readFile(path.join(dir, 'config.yml'))
}

export const parse = (raw: string) => JSON.parse(raw)

class Loader {
  async reload(): Promise<void> {
    await loadConfig('.')
  }
}
`

func TestIngestFile_TypeScript(t *testing.T) {
	t.Parallel()

	store := New(nil)
	result := store.IngestFile("demo", "src/config.ts", ".ts", sampleTS)

	require.True(t, result.Success)
	// 1 file + 3 functions + 3 modules
	assert.Equal(t, 7, result.NodesCreated)
	// 3 contains + 3 imports
	assert.Equal(t, 6, result.RelationshipsCreated)

	fns := store.FunctionsIn("demo", "src/config.ts")
	names := make([]string, 0, len(fns))
	for _, fn := range fns {
		names = append(names, fn.Name)
		assert.Positive(t, fn.StartLine)
	}
	assert.ElementsMatch(t, []string{"loadConfig", "parse", "reload"}, names)

	assert.ElementsMatch(t, []string{"fs/promises", "path", "./legacy"}, store.ImportsOf("demo", "src/config.ts"))
}

func TestIngestFile_UnsupportedExtension(t *testing.T) {
	t.Parallel()

	store := New(nil)
	result := store.IngestFile("demo", "main.go", ".go", "func main() {}")

	require.True(t, result.Success)
	assert.Equal(t, 1, result.NodesCreated)
	assert.Equal(t, 0, result.RelationshipsCreated)
	assert.Empty(t, store.FunctionsIn("demo", "main.go"))
}

func TestIngestFile_ReingestRetractsPrevious(t *testing.T) {
	t.Parallel()

	store := New(nil)
	store.IngestFile("demo", "a.ts", ".ts", "export function one() {}\nexport function two() {}")
	before := store.NodeCount()

	store.IngestFile("demo", "a.ts", ".ts", "export function one() {}")

	assert.Equal(t, before-1, store.NodeCount())
	fns := store.FunctionsIn("demo", "a.ts")
	require.Len(t, fns, 1)
	assert.Equal(t, "one", fns[0].Name)
}

func TestDeleteFileData(t *testing.T) {
	t.Parallel()

	store := New(nil)
	store.IngestFile("demo", "a.ts", ".ts", "import x from 'y'\nexport function f() {}")

	result := store.DeleteFileData("demo", "a.ts")
	require.True(t, result.Success)
	assert.Negative(t, result.NodesCreated)

	assert.Empty(t, store.FunctionsIn("demo", "a.ts"))
	assert.Empty(t, store.ImportsOf("demo", "a.ts"))
}

func TestNodeIDs(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "File:demo:src/a.ts", FileNodeID("demo", "src/a.ts"))
	assert.Equal(t, "Function:demo:src/a.ts:load:12", FunctionNodeID("demo", "src/a.ts", "load", 12))
	assert.Equal(t, "Module:demo:fs/promises", ModuleNodeID("demo", "fs/promises"))
}

func TestStructurallySupported(t *testing.T) {
	t.Parallel()

	for _, ext := range []string{".ts", ".tsx", ".js", ".jsx"} {
		assert.True(t, StructurallySupported(ext), ext)
	}
	for _, ext := range []string{".go", ".py", ".md", ""} {
		assert.False(t, StructurallySupported(ext), fmt.Sprintf("%q", ext))
	}
}

func TestExtractFunctions_Shapes(t *testing.T) {
	t.Parallel()

	src := "function plain() {}\n" +
		"export default function entry() {}\n" +
		"const arrow = async (x) => x\n" +
		"  if (cond) {\n" + // must not be read as a method
		"  handle(evt: Event): void {\n"

	fns := extractFunctions(src)
	names := make([]string, 0, len(fns))
	for _, fn := range fns {
		names = append(names, fn.Name)
	}
	assert.ElementsMatch(t, []string{"plain", "entry", "arrow", "handle"}, names)
}
