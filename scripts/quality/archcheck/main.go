package main

import (
	"bufio"
	"cmp"
	"fmt"
	"io"
	"os"
	"os/exec"
	"slices"
	"strings"
)

const modulePrefix = "tg-harvest/"

// importEdgesTemplate prints one "importer|imported" line per production or
// test import of a package.
const importEdgesTemplate = `{{range .Imports}}{{$.ImportPath}}|{{.}}{{"\n"}}{{end}}` +
	`{{range .TestImports}}{{$.ImportPath}}|{{.}}{{"\n"}}{{end}}` +
	`{{range .XTestImports}}{{$.ImportPath}}|{{.}}{{"\n"}}{{end}}`

// layerRule forbids importer packages under one prefix from importing packages
// under another.
type layerRule struct {
	importer  string
	forbidden string
}

var layerRules = []layerRule{
	{importer: "pkg/harvest", forbidden: "internal/"},
	{importer: "pkg/harvest", forbidden: "cmd/"},
	{importer: "internal/console", forbidden: "internal/"},
	{importer: "internal/console", forbidden: "pkg/"},
	{importer: "internal/scheduler", forbidden: "internal/driver"},
	{importer: "internal/scheduler", forbidden: "internal/orchestrator"},
	{importer: "internal/orchestrator", forbidden: "internal/driver"},
	{importer: "internal/storage", forbidden: "internal/driver"},
	{importer: "internal/driver", forbidden: "internal/orchestrator"},
}

type importEdge struct {
	importer string
	imported string
}

type violation struct {
	edge   importEdge
	reason string
}

func (v violation) String() string {
	return fmt.Sprintf("%s -> %s (%s)", v.edge.importer, v.edge.imported, v.reason)
}

func main() {
	out, err := exec.Command("go", "list", "-test", "-f", importEdgesTemplate, "./...").Output()
	if err != nil {
		fmt.Fprintf(os.Stderr, "arch-check: go list: %v\n", err)
		os.Exit(1)
	}

	edges, err := parseImportEdges(strings.NewReader(string(out)))
	if err != nil {
		fmt.Fprintf(os.Stderr, "arch-check: %v\n", err)
		os.Exit(1)
	}

	if !report(os.Stdout, findViolations(edges)) {
		os.Exit(1)
	}
}

func parseImportEdges(r io.Reader) ([]importEdge, error) {
	var edges []importEdge

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		importer, imported, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "|")
		if !ok || importer == "" || imported == "" {
			continue
		}
		edges = append(edges, importEdge{importer: importer, imported: imported})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan go list output: %w", err)
	}

	return edges, nil
}

// findViolations returns one entry per offending edge, ordered by importer and
// then by imported package.
func findViolations(edges []importEdge) []violation {
	var violations []violation
	for _, edge := range edges {
		if reason := violationReason(edge.importer, edge.imported); reason != "" {
			violations = append(violations, violation{edge: edge, reason: reason})
		}
	}

	compare := func(a, b violation) int {
		return cmp.Or(
			cmp.Compare(a.edge.importer, b.edge.importer),
			cmp.Compare(a.edge.imported, b.edge.imported),
		)
	}
	slices.SortFunc(violations, compare)

	return slices.CompactFunc(violations, func(a, b violation) bool { return compare(a, b) == 0 })
}

// report prints the outcome and reports whether the import graph is clean.
func report(w io.Writer, violations []violation) bool {
	if len(violations) == 0 {
		_, _ = fmt.Fprintln(w, "arch-check: passed")
		return true
	}

	_, _ = fmt.Fprintf(w, "arch-check: %d architecture violation(s):\n", len(violations))
	for _, v := range violations {
		_, _ = fmt.Fprintf(w, "  - %s\n", v)
	}

	return false
}

func violationReason(importer, imported string) string {
	for _, rule := range layerRules {
		if strings.HasPrefix(importer, modulePrefix+rule.importer) &&
			strings.HasPrefix(imported, modulePrefix+rule.forbidden) {
			return fmt.Sprintf("%s must not import %s*", rule.importer, strings.TrimSuffix(rule.forbidden, "/")+"/")
		}
	}

	return ""
}
