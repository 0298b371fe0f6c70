package llm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/flowforge-io/core/pkg/contracts"
)

// Constraints are the hard limits a generation attempt must respect.
// They are rebuilt before every attempt: each repair round tightens them
// with the names the previous attempt got wrong.
type Constraints struct {
	AllowedConnectors []string `json:"allowedConnectors"`
	AllowedFunctions  []string `json:"allowedFunctions"`
	ForbiddenNames    []string `json:"forbiddenNames,omitempty"`
	Attempt           int      `json:"attempt"`
	MaxRules          int      `json:"maxRules,omitempty"`
}

// BuildConstraints derives the allowlist from the live catalog. Functions
// are listed as "connector.function" so the generator cannot pair a real
// function with the wrong connector.
func BuildConstraints(lc contracts.LiveContext) *Constraints {
	c := &Constraints{Attempt: 1}
	for _, conn := range lc.Connectors {
		if conn.Status == contracts.StatusDeprecated {
			continue
		}
		c.AllowedConnectors = append(c.AllowedConnectors, conn.ID)
		for _, fn := range conn.Functions {
			if fn.Status == contracts.StatusDeprecated {
				continue
			}
			c.AllowedFunctions = append(c.AllowedFunctions, conn.ID+"."+fn.ID)
		}
	}
	sort.Strings(c.AllowedConnectors)
	sort.Strings(c.AllowedFunctions)
	return c
}

// Tighten produces the constraints for the next repair attempt: same
// allowlist, plus the names the previous attempt invented.
func (c *Constraints) Tighten(rejectedNames []string) *Constraints {
	next := &Constraints{
		AllowedConnectors: c.AllowedConnectors,
		AllowedFunctions:  c.AllowedFunctions,
		Attempt:           c.Attempt + 1,
		MaxRules:          c.MaxRules,
	}
	seen := make(map[string]bool, len(c.ForbiddenNames))
	for _, n := range c.ForbiddenNames {
		seen[n] = true
		next.ForbiddenNames = append(next.ForbiddenNames, n)
	}
	for _, n := range rejectedNames {
		if n != "" && !seen[n] {
			seen[n] = true
			next.ForbiddenNames = append(next.ForbiddenNames, n)
		}
	}
	sort.Strings(next.ForbiddenNames)
	return next
}

// Preamble renders the constraints as prompt text prepended to the
// generation request.
func (c *Constraints) Preamble() string {
	var b strings.Builder
	b.WriteString("You may only reference the following connectors: ")
	b.WriteString(strings.Join(c.AllowedConnectors, ", "))
	b.WriteString(".\nYou may only reference the following functions: ")
	b.WriteString(strings.Join(c.AllowedFunctions, ", "))
	b.WriteString(".\n")
	if len(c.ForbiddenNames) > 0 {
		fmt.Fprintf(&b, "The following names do not exist and must not appear again: %s.\n",
			strings.Join(c.ForbiddenNames, ", "))
	}
	if c.MaxRules > 0 {
		fmt.Fprintf(&b, "Produce at most %d rules.\n", c.MaxRules)
	}
	return b.String()
}
