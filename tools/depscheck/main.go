package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
)

type packageInfo struct {
	ImportPath string
	Imports    []string
}

// rule forbids packages under From from importing anything under a prefix
// in Forbidden.
type rule struct {
	From      string
	Forbidden []string
}

// The combo core stays free of transport and process wiring so the
// simulate command and the server drive the same code.
var rules = []rule{
	{From: "ccw/server/internal/clips", Forbidden: []string{"ccw/server/internal/combo", "ccw/server/internal/sim", "ccw/server/internal/net", "ccw/server/internal/app", "github.com/gorilla/websocket"}},
	{From: "ccw/server/internal/input", Forbidden: []string{"ccw/server/internal/combo", "ccw/server/internal/sim", "ccw/server/internal/net", "ccw/server/internal/app", "github.com/gorilla/websocket"}},
	{From: "ccw/server/internal/combo", Forbidden: []string{"ccw/server/internal/sim", "ccw/server/internal/net", "ccw/server/internal/app", "github.com/gorilla/websocket"}},
	{From: "ccw/server/internal/sim", Forbidden: []string{"ccw/server/internal/net", "ccw/server/internal/app", "github.com/gorilla/websocket"}},
	{From: "ccw/server/logging", Forbidden: []string{"ccw/server/internal/"}},
}

func main() {
	cmd := exec.Command("go", "list", "-json", "./internal/...", "./logging/...")
	cmd.Env = os.Environ()
	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			os.Stderr.Write(exitErr.Stderr)
		}
		fmt.Fprintf(os.Stderr, "depscheck: failed to list packages: %v\n", err)
		os.Exit(1)
	}

	violations, err := check(bytes.NewReader(output), rules)
	if err != nil {
		fmt.Fprintf(os.Stderr, "depscheck: failed to decode package info: %v\n", err)
		os.Exit(1)
	}

	if len(violations) > 0 {
		fmt.Fprintln(os.Stderr, "depscheck: found forbidden imports:")
		for _, violation := range violations {
			fmt.Fprintf(os.Stderr, "  %s\n", violation)
		}
		os.Exit(1)
	}
}

// check decodes the `go list -json` stream in r and reports every import
// that breaks one of rules, sorted.
func check(r io.Reader, rules []rule) ([]string, error) {
	decoder := json.NewDecoder(r)

	var violations []string
	for {
		var pkg packageInfo
		if err := decoder.Decode(&pkg); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}

		for _, rule := range rules {
			if !within(pkg.ImportPath, rule.From) {
				continue
			}
			for _, imp := range pkg.Imports {
				for _, forbidden := range rule.Forbidden {
					if within(imp, forbidden) {
						violations = append(violations, fmt.Sprintf("%s -> %s", pkg.ImportPath, imp))
					}
				}
			}
		}
	}

	sort.Strings(violations)
	return violations, nil
}

// within reports whether path is prefix or lies beneath it. A prefix ending
// in "/" matches any path starting with it.
func within(path, prefix string) bool {
	if strings.HasSuffix(prefix, "/") {
		return strings.HasPrefix(path, prefix)
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
