package reorg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umr-dbs/mapping-cache/internal/indexsrv"
	"github.com/umr-dbs/mapping-cache/pkg/cachecore"
)

func snap(nodeID string, rt cachecore.ResultType, id cachecore.EntryID, size int64, relevance float64) EntrySnapshot {
	return EntrySnapshot{
		Node:       indexsrv.NodeRef{NodeID: nodeID, Host: "10.0.0.1", Port: 9100},
		ResultType: rt,
		Key:        cachecore.Key{SemanticID: "op1", EntryID: id},
		SizeBytes:  size,
		Relevance:  relevance,
	}
}

func TestLowestRelevancePolicyUnderQuotaProposesNothing(t *testing.T) {
	p := NewLowestRelevancePolicy(1000, 0)
	moves, removes := p.Plan([]EntrySnapshot{
		snap("n1", cachecore.Raster, 1, 400, 0.9),
		snap("n1", cachecore.Raster, 2, 400, 0.1),
	})
	assert.Empty(t, moves)
	assert.Empty(t, removes)
}

func TestLowestRelevancePolicyRemovesLeastRelevantFirst(t *testing.T) {
	p := NewLowestRelevancePolicy(1000, 0)
	_, removes := p.Plan([]EntrySnapshot{
		snap("n1", cachecore.Raster, 1, 600, 0.9),
		snap("n1", cachecore.Raster, 2, 600, 0.1),
		snap("n1", cachecore.Raster, 3, 600, 0.5),
	})
	// 1800 bytes against a 1000-byte quota: shedding the two least relevant
	// entries (relevance 0.1, then 0.5) brings the group back under.
	require.Len(t, removes, 2)
	assert.EqualValues(t, 2, removes[0].Key.EntryID)
	assert.EqualValues(t, 3, removes[1].Key.EntryID)
}

func TestLowestRelevancePolicyGroupsByNodeAndType(t *testing.T) {
	p := NewLowestRelevancePolicy(1000, 0)
	_, removes := p.Plan([]EntrySnapshot{
		snap("n1", cachecore.Raster, 1, 1500, 0.1),
		snap("n2", cachecore.Raster, 2, 100, 0.0), // different node, under quota
		snap("n1", cachecore.Point, 3, 100, 0.0),  // different type, under quota
	})
	require.Len(t, removes, 1)
	assert.EqualValues(t, 1, removes[0].Key.EntryID)
}

func TestLowestRelevancePolicyHonorsPerRoundCap(t *testing.T) {
	p := NewLowestRelevancePolicy(100, 2)
	_, removes := p.Plan([]EntrySnapshot{
		snap("n1", cachecore.Raster, 1, 500, 0.1),
		snap("n1", cachecore.Raster, 2, 500, 0.2),
		snap("n1", cachecore.Raster, 3, 500, 0.3),
		snap("n1", cachecore.Raster, 4, 500, 0.4),
	})
	assert.Len(t, removes, 2)
}
