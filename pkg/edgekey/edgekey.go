// Package edgekey encodes directed road-network edges as canonical string keys
// and folds two-way closures into a single record for display.
package edgekey

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ritzau/bluecity/pkg/logging"
	"gonum.org/v1/gonum/graph/simple"
)

// Separator joins the two endpoints of a key. Node ids are non-negative
// integers, so it never appears inside an endpoint.
const Separator = "-"

// ErrInvalidKey is returned by Parse for anything Encode could not have produced
var ErrInvalidKey = errors.New("invalid edge key")

// Encode returns the canonical key "{u}-{v}" of the directed edge u->v
func Encode(u, v int64) string {
	return strconv.FormatInt(u, 10) + Separator + strconv.FormatInt(v, 10)
}

// Parse splits a key back into its endpoints
func Parse(key string) (u, v int64, err error) {
	left, right, ok := strings.Cut(key, Separator)
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	u, err = parseNode(left)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	v, err = parseNode(right)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return u, v, nil
}

func parseNode(s string) (int64, error) {
	if s == "" || s[0] == '+' {
		return 0, ErrInvalidKey
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, ErrInvalidKey
	}
	return n, nil
}

// Reverse swaps the endpoints of a key. Unparseable keys are returned unchanged.
func Reverse(key string) string {
	u, v, err := Parse(key)
	if err != nil {
		return key
	}
	return Encode(v, u)
}

// Consolidated is one physical road segment in the removed set
type Consolidated struct {
	U               int64  `json:"u"`
	V               int64  `json:"v"`
	Key             string `json:"key"`
	IsBidirectional bool   `json:"isBidirectional"` // the reverse direction is also in the set
}

// ConsolidateBidirectional emits one record per physical segment: a key and its
// reverse collapse into a single record marked bidirectional. Duplicate and
// malformed keys are skipped. Output order follows the first occurrence in
// keys; callers sort for display.
func ConsolidateBidirectional(keys []string) []Consolidated {
	g := simple.NewDirectedGraph()
	type edge struct {
		u, v int64
		key  string
	}

	edges := make([]edge, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, key := range keys {
		if seen[key] {
			continue
		}
		u, v, err := Parse(key)
		if err != nil {
			logging.Debug("skipping malformed edge key", "edge", key)
			continue
		}
		seen[key] = true
		edges = append(edges, edge{u: u, v: v, key: key})

		// Self loops cannot be stored in a simple graph and have no reverse
		if u != v {
			g.SetEdge(g.NewEdge(simple.Node(u), simple.Node(v)))
		}
	}

	visited := make(map[string]bool, len(edges))
	result := make([]Consolidated, 0, len(edges))
	for _, e := range edges {
		if visited[e.key] {
			continue
		}
		visited[e.key] = true

		bidirectional := e.u != e.v && g.HasEdgeFromTo(e.v, e.u)
		if bidirectional {
			visited[Encode(e.v, e.u)] = true
		}
		result = append(result, Consolidated{
			U:               e.u,
			V:               e.v,
			Key:             e.key,
			IsBidirectional: bidirectional,
		})
	}
	return result
}
