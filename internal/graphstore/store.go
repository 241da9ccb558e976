// Package graphstore maintains an optional in-memory code graph beside the
// vector index: file nodes, function nodes, and import relationships.
package graphstore

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/dominikbraun/graph"
)

// NodeKind distinguishes the vertex types in the code graph.
type NodeKind string

const (
	NodeFile     NodeKind = "file"
	NodeFunction NodeKind = "function"
	NodeModule   NodeKind = "module"
)

// Node is one vertex in the code graph.
type Node struct {
	ID         string
	Kind       NodeKind
	Repository string
	FilePath   string
	Name       string
	StartLine  int
}

// EdgeType labels a relationship between nodes.
type EdgeType string

const (
	EdgeContains EdgeType = "contains" // file contains function
	EdgeImports  EdgeType = "imports"  // file imports module
)

// IngestResult summarizes one file's contribution to the graph.
type IngestResult struct {
	NodesCreated         int
	RelationshipsCreated int
	Success              bool
}

// Store is the graph sink. All methods are safe for concurrent use.
// Ingestion failures are reported in results, never as pipeline errors:
// the graph is best-effort by contract.
type Store struct {
	logger *slog.Logger

	mu sync.Mutex
	g  graph.Graph[string, *Node]
	// fileNodes tracks the node IDs each ingested file produced so a later
	// delete or re-ingest can retract exactly its contribution.
	fileNodes map[string][]string
	edges     map[string][][2]string // file key -> edge endpoints
}

// New creates an empty graph store.
func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		logger:    logger,
		g:         graph.New(func(n *Node) string { return n.ID }, graph.Directed()),
		fileNodes: make(map[string][]string),
		edges:     make(map[string][][2]string),
	}
}

// FileNodeID returns the vertex ID for a repository file.
func FileNodeID(repository, filePath string) string {
	return fmt.Sprintf("File:%s:%s", repository, filePath)
}

// FunctionNodeID returns the vertex ID for a function declaration.
func FunctionNodeID(repository, filePath, name string, startLine int) string {
	return fmt.Sprintf("Function:%s:%s:%s:%d", repository, filePath, name, startLine)
}

// ModuleNodeID returns the vertex ID for an imported module specifier.
func ModuleNodeID(repository, specifier string) string {
	return fmt.Sprintf("Module:%s:%s", repository, specifier)
}

func fileKey(repository, filePath string) string {
	return repository + ":" + filePath
}

// IngestFile adds a file node plus whatever structure the extractor finds.
// Re-ingesting a path retracts the previous contribution first.
func (s *Store) IngestFile(repository, filePath, extension, content string) IngestResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleteFileLocked(repository, filePath)

	key := fileKey(repository, filePath)
	result := IngestResult{Success: true}

	fileID := FileNodeID(repository, filePath)
	if s.addNodeLocked(&Node{ID: fileID, Kind: NodeFile, Repository: repository, FilePath: filePath, Name: filePath}) {
		result.NodesCreated++
	}
	s.fileNodes[key] = append(s.fileNodes[key], fileID)

	if !StructurallySupported(extension) {
		return result
	}

	for _, fn := range extractFunctions(content) {
		fnID := FunctionNodeID(repository, filePath, fn.Name, fn.StartLine)
		if s.addNodeLocked(&Node{
			ID:         fnID,
			Kind:       NodeFunction,
			Repository: repository,
			FilePath:   filePath,
			Name:       fn.Name,
			StartLine:  fn.StartLine,
		}) {
			result.NodesCreated++
		}
		s.fileNodes[key] = append(s.fileNodes[key], fnID)

		if s.addEdgeLocked(fileID, fnID, EdgeContains) {
			result.RelationshipsCreated++
			s.edges[key] = append(s.edges[key], [2]string{fileID, fnID})
		}
	}

	for _, spec := range extractImports(content) {
		modID := ModuleNodeID(repository, spec)
		if s.addNodeLocked(&Node{ID: modID, Kind: NodeModule, Repository: repository, Name: spec}) {
			result.NodesCreated++
		}
		// Module nodes are shared between files; they are retracted with the
		// last file that references them, which a simple ownership list can't
		// express, so they stay until the repository is dropped.

		if s.addEdgeLocked(fileID, modID, EdgeImports) {
			result.RelationshipsCreated++
			s.edges[key] = append(s.edges[key], [2]string{fileID, modID})
		}
	}

	return result
}

// DeleteFileData retracts the file's nodes and edges from the graph.
func (s *Store) DeleteFileData(repository, filePath string) IngestResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	nodes, edges := s.deleteFileLocked(repository, filePath)
	return IngestResult{NodesCreated: -nodes, RelationshipsCreated: -edges, Success: true}
}

// ImportsOf returns the module specifiers a file imports, or nil when the
// file is not in the graph.
func (s *Store) ImportsOf(repository, filePath string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	adj, err := s.g.AdjacencyMap()
	if err != nil {
		return nil
	}

	var specs []string
	for target := range adj[FileNodeID(repository, filePath)] {
		node, err := s.g.Vertex(target)
		if err != nil || node.Kind != NodeModule {
			continue
		}
		specs = append(specs, node.Name)
	}
	return specs
}

// FunctionsIn returns the function nodes extracted from a file.
func (s *Store) FunctionsIn(repository, filePath string) []*Node {
	s.mu.Lock()
	defer s.mu.Unlock()

	var fns []*Node
	for _, id := range s.fileNodes[fileKey(repository, filePath)] {
		node, err := s.g.Vertex(id)
		if err != nil || node.Kind != NodeFunction {
			continue
		}
		fns = append(fns, node)
	}
	return fns
}

// NodeCount returns the number of vertices currently in the graph.
func (s *Store) NodeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, err := s.g.Order()
	if err != nil {
		return 0
	}
	return order
}

func (s *Store) addNodeLocked(n *Node) bool {
	if err := s.g.AddVertex(n); err != nil {
		// ErrVertexAlreadyExists is expected on shared nodes.
		return false
	}
	return true
}

func (s *Store) addEdgeLocked(from, to string, typ EdgeType) bool {
	if err := s.g.AddEdge(from, to, graph.EdgeAttribute("type", string(typ))); err != nil {
		s.logger.Debug("skipping graph edge", "from", from, "to", to, "error", err)
		return false
	}
	return true
}

func (s *Store) deleteFileLocked(repository, filePath string) (nodes, edges int) {
	key := fileKey(repository, filePath)

	for _, pair := range s.edges[key] {
		if err := s.g.RemoveEdge(pair[0], pair[1]); err == nil {
			edges++
		}
	}
	delete(s.edges, key)

	for _, id := range s.fileNodes[key] {
		if err := s.g.RemoveVertex(id); err == nil {
			nodes++
		}
	}
	delete(s.fileNodes, key)
	return nodes, edges
}
