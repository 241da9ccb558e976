package graphstore

import (
	"regexp"
	"strings"
)

// structurallySupported lists the extensions the lightweight extractor can
// pull imports and function declarations from. Files outside this set still
// get a file node, just no structure.
var structurallySupported = map[string]bool{
	".ts":  true,
	".tsx": true,
	".js":  true,
	".jsx": true,
}

var (
	importRe   = regexp.MustCompile(`(?m)^\s*import\s+(?:[\w*{},\s]+\s+from\s+)?['"]([^'"]+)['"]`)
	requireRe  = regexp.MustCompile(`(?m)require\(\s*['"]([^'"]+)['"]\s*\)`)
	functionRe = regexp.MustCompile(`(?m)^\s*(?:export\s+)?(?:default\s+)?(?:async\s+)?function\s+(\w+)`)
	arrowRe    = regexp.MustCompile(`(?m)^\s*(?:export\s+)?(?:const|let|var)\s+(\w+)\s*=\s*(?:async\s*)?(?:\([^)]*\)|\w+)\s*=>`)
	methodRe   = regexp.MustCompile(`(?m)^\s{2,}(?:public\s+|private\s+|protected\s+|static\s+|async\s+)*(\w+)\s*\([^)]*\)\s*(?::\s*[\w<>\[\]|,\s.]+)?\s*\{`)
)

// extractedFunction is one function-like declaration with its start line.
type extractedFunction struct {
	Name      string
	StartLine int
}

// StructurallySupported reports whether the extractor understands files
// with the given extension (leading dot included).
func StructurallySupported(extension string) bool {
	return structurallySupported[strings.ToLower(extension)]
}

// extractImports returns the module specifiers imported by the source.
func extractImports(content string) []string {
	seen := make(map[string]bool)
	var specs []string
	for _, re := range []*regexp.Regexp{importRe, requireRe} {
		for _, m := range re.FindAllStringSubmatch(content, -1) {
			if !seen[m[1]] {
				seen[m[1]] = true
				specs = append(specs, m[1])
			}
		}
	}
	return specs
}

// reservedMethodNames are control-flow keywords that the method pattern
// would otherwise misread as declarations.
var reservedMethodNames = map[string]bool{
	"if": true, "for": true, "while": true, "switch": true, "catch": true, "return": true,
}

// extractFunctions returns function-like declarations with 1-based start
// lines. Duplicate names at different lines are kept; the line number
// disambiguates them.
func extractFunctions(content string) []extractedFunction {
	type key struct {
		name string
		line int
	}
	seen := make(map[key]bool)
	var fns []extractedFunction

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		for _, re := range []*regexp.Regexp{functionRe, arrowRe, methodRe} {
			m := re.FindStringSubmatch(line)
			if m == nil || reservedMethodNames[m[1]] {
				continue
			}
			k := key{name: m[1], line: i + 1}
			if seen[k] {
				continue
			}
			seen[k] = true
			fns = append(fns, extractedFunction{Name: m[1], StartLine: i + 1})
			break
		}
	}
	return fns
}
