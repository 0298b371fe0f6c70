package dag

import (
	"sort"
	"time"

	"github.com/flowforge-io/core/pkg/contracts"
)

// connectionTTL is the validity window granted to warmed-up connections.
const connectionTTL = 24 * time.Hour

// computePreload collects the resources that must be warmed up before the
// graph runs: one connection per distinct connector referenced anywhere in
// the graph, plus one schema resource per node whose config embeds a schema.
//
// Resource ids are derived from their subjects, not generated, so the IR's
// preload list is stable across compilations of the same graph.
func computePreload(g *contracts.Graph, now time.Time) []contracts.PreloadResource {
	connectors := make(map[string]bool)
	for _, n := range g.Nodes {
		if n.Connector != "" {
			connectors[n.Connector] = true
		}
	}

	ids := make([]string, 0, len(connectors))
	for c := range connectors {
		ids = append(ids, c)
	}
	sort.Strings(ids)

	var resources []contracts.PreloadResource
	for _, c := range ids {
		resources = append(resources, contracts.PreloadResource{
			ID:        "connection:" + c,
			Kind:      contracts.PreloadConnection,
			SubjectID: c,
			ExpiresAt: now.Add(connectionTTL),
		})
	}

	for _, n := range g.Nodes {
		if n.Config == nil {
			continue
		}
		if _, ok := n.Config["schema"]; !ok {
			continue
		}
		resources = append(resources, contracts.PreloadResource{
			ID:        "schema:" + n.ID,
			Kind:      contracts.PreloadSchema,
			SubjectID: n.ID,
			ExpiresAt: now.Add(connectionTTL),
		})
	}

	return resources
}
