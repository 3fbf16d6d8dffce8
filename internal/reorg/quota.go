package reorg

// quota.go provides the default reorg policy: remove the lowest-relevance
// entries of any (node, result_type) pair whose bytes exceed the configured
// per-node quota. Co-location moves are left to a puzzle-affinity policy
// not required by the default; this one never proposes any.

import (
	"fmt"
	"sort"

	"github.com/umr-dbs/mapping-cache/internal/wire"
	"github.com/umr-dbs/mapping-cache/pkg/cachecore"
)

// PolicyByName resolves a configured reorg policy name
// (indexserver.reorg.strategy).
func PolicyByName(name string, quotaBytes int64) (QuotaPolicy, error) {
	switch name {
	case "", "lowest-relevance":
		return NewLowestRelevancePolicy(quotaBytes, 0), nil
	default:
		return nil, fmt.Errorf("unknown reorg policy %q", name)
	}
}

// DefaultQuotaBytes bounds how many bytes one node may hold per result type
// before reorg starts shedding its least relevant entries.
const DefaultQuotaBytes = 512 << 20 // 512 MiB

// LowestRelevancePolicy removes the lowest-relevance entries of every
// over-quota (node, result type) pair until that pair is back under quota.
type LowestRelevancePolicy struct {
	// QuotaBytes is the per-node, per-type byte ceiling
	// (indexserver.reorg quota).
	QuotaBytes int64
	// MaxRemovePerRound bounds how many entries one reorg round evicts,
	// keeping a single slow round from flooding the cluster with REORG
	// traffic.
	MaxRemovePerRound int
}

// NewLowestRelevancePolicy constructs the default policy; zero arguments
// select the defaults.
func NewLowestRelevancePolicy(quotaBytes int64, maxRemovePerRound int) *LowestRelevancePolicy {
	if quotaBytes <= 0 {
		quotaBytes = DefaultQuotaBytes
	}
	if maxRemovePerRound <= 0 {
		maxRemovePerRound = 64
	}
	return &LowestRelevancePolicy{QuotaBytes: quotaBytes, MaxRemovePerRound: maxRemovePerRound}
}

func (p *LowestRelevancePolicy) Name() string { return "lowest-relevance" }

type ownerKey struct {
	nodeID     string
	resultType cachecore.ResultType
}

// Plan groups the snapshot by (node, type), and for every group over
// QuotaBytes walks its entries ascending by relevance, proposing removals
// until the group is back under quota or the per-round cap is hit.
func (p *LowestRelevancePolicy) Plan(snapshot []EntrySnapshot) ([]wire.ReorgMove, []RemovePlan) {
	groups := make(map[ownerKey][]EntrySnapshot)
	totals := make(map[ownerKey]int64)
	for _, e := range snapshot {
		k := ownerKey{nodeID: e.Node.NodeID, resultType: e.ResultType}
		groups[k] = append(groups[k], e)
		totals[k] += e.SizeBytes
	}

	var removes []RemovePlan
	for k, entries := range groups {
		excess := totals[k] - p.QuotaBytes
		if excess <= 0 {
			continue
		}
		sort.Slice(entries, func(i, j int) bool {
			if entries[i].Relevance != entries[j].Relevance {
				return entries[i].Relevance < entries[j].Relevance
			}
			return entries[i].Key.EntryID < entries[j].Key.EntryID
		})
		for _, e := range entries {
			if excess <= 0 || len(removes) >= p.MaxRemovePerRound {
				break
			}
			removes = append(removes, RemovePlan{Node: e.Node, ResultType: e.ResultType, Key: e.Key})
			excess -= e.SizeBytes
		}
		if len(removes) >= p.MaxRemovePerRound {
			break
		}
	}
	return nil, removes
}
