// Package bashmatch parses a bash command line into its constituent
// commands and matches them against the glob-like approval patterns
// remembered by the approval pipeline ("git commit *", "npm *", "*").
//
// Grounded on internal/permission/bash_parser.go and
// internal/permission/wildcard.go from the teacher's permission checker,
// adapted to serve the new per-session ApprovedBashPatterns list in
// internal/domain/state instead of the teacher's global Checker.
package bashmatch

import (
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// Command is one parsed command invocation within a (possibly compound)
// bash command line.
type Command struct {
	Name       string
	Args       []string
	Subcommand string
}

// Parse splits a bash command line into its constituent commands,
// including any chained via pipes, &&, ;, and so on.
func Parse(command string) ([]Command, error) {
	parser := syntax.NewParser(syntax.Variant(syntax.LangBash), syntax.KeepComments(false))

	file, err := parser.Parse(strings.NewReader(command), "")
	if err != nil {
		return nil, fmt.Errorf("bashmatch: parse command: %w", err)
	}

	var commands []Command
	syntax.Walk(file, func(node syntax.Node) bool {
		if call, ok := node.(*syntax.CallExpr); ok {
			if cmd := extractCommand(call); cmd != nil {
				commands = append(commands, *cmd)
			}
		}
		return true
	})

	return commands, nil
}

func extractCommand(call *syntax.CallExpr) *Command {
	if len(call.Args) == 0 {
		return nil
	}

	cmd := &Command{Name: wordToString(call.Args[0])}
	if cmd.Name == "" {
		return nil
	}

	for _, arg := range call.Args[1:] {
		argStr := wordToString(arg)
		cmd.Args = append(cmd.Args, argStr)
		if cmd.Subcommand == "" && !strings.HasPrefix(argStr, "-") {
			cmd.Subcommand = argStr
		}
	}

	return cmd
}

func wordToString(word *syntax.Word) string {
	var sb strings.Builder
	for _, part := range word.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			sb.WriteString(p.Value)
		case *syntax.SglQuoted:
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, qp := range p.Parts {
				if lit, ok := qp.(*syntax.Lit); ok {
					sb.WriteString(lit.Value)
				}
			}
		case *syntax.ParamExp:
			sb.WriteString("$" + p.Param.Value)
		case *syntax.CmdSubst:
			sb.WriteString("$()")
		}
	}
	return sb.String()
}

// BuildPattern returns the pattern a "remember this command" approval
// should store: "git commit *" for a command with a subcommand, "ls *"
// otherwise.
func BuildPattern(cmd Command) string {
	if cmd.Subcommand != "" {
		return cmd.Name + " " + cmd.Subcommand + " *"
	}
	return cmd.Name + " *"
}

// MatchesPattern reports whether cmd is covered by pattern, which takes
// the form "name sub *", "name *", "name", or the universal "*".
func MatchesPattern(pattern string, cmd Command) bool {
	parts := strings.Split(pattern, " ")
	if len(parts) == 0 {
		return false
	}

	if parts[0] == "*" && len(parts) == 1 {
		return true
	}

	if parts[0] != cmd.Name {
		return false
	}

	if len(parts) == 1 {
		return len(cmd.Args) == 0
	}

	if parts[len(parts)-1] == "*" {
		for i := 1; i < len(parts)-1; i++ {
			argIndex := i - 1
			if argIndex >= len(cmd.Args) {
				return false
			}
			if parts[i] != "*" && parts[i] != cmd.Args[argIndex] {
				return false
			}
		}
		return true
	}

	if len(parts)-1 != len(cmd.Args) {
		return false
	}
	for i := 1; i < len(parts); i++ {
		if parts[i] != cmd.Args[i-1] {
			return false
		}
	}
	return true
}

// AnyMatches reports whether command (a full, possibly compound, bash
// command line) matches any of the given approval patterns: every parsed
// sub-command must be individually covered.
func AnyMatches(command string, patterns []string) bool {
	commands, err := Parse(command)
	if err != nil || len(commands) == 0 {
		return false
	}

	for _, cmd := range commands {
		covered := false
		for _, pattern := range patterns {
			if MatchesPattern(pattern, cmd) {
				covered = true
				break
			}
		}
		if !covered {
			return false
		}
	}
	return true
}
