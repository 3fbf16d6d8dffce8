package cachecore

// admission.go implements the admission strategy: a stateless
// do_cache(profile, size) decision, selected once at node startup and never
// changed mid-run.

import (
	"fmt"

	"github.com/umr-dbs/mapping-cache/internal/cacheerr"
)

// AdmissionStrategy decides whether a freshly computed artifact is worth
// storing.
type AdmissionStrategy interface {
	DoCache(profile Profile, sizeBytes int64) bool
	Name() string
}

// CacheAll always admits.
type CacheAll struct{}

func (CacheAll) DoCache(Profile, int64) bool { return true }
func (CacheAll) Name() string                { return "cache-all" }

// Never never admits.
type Never struct{}

func (Never) DoCache(Profile, int64) bool { return false }
func (Never) Name() string                { return "never" }

// CostThreshold admits iff cost(profile) >= tau.
type CostThreshold struct {
	Tau float64
}

func (c CostThreshold) DoCache(p Profile, _ int64) bool { return p.Cost() >= c.Tau }
func (c CostThreshold) Name() string                    { return "cost-threshold" }

// SizeBounded admits iff size <= smax.
type SizeBounded struct {
	SMax int64
}

func (s SizeBounded) DoCache(_ Profile, size int64) bool { return size <= s.SMax }
func (s SizeBounded) Name() string                       { return "size-bounded" }

// BoolOp composes two strategies with AND/OR.
type BoolOp uint8

const (
	OpAnd BoolOp = iota
	OpOr
)

// Composable combines two admission strategies with an AND/OR operator.
type Composable struct {
	A, B AdmissionStrategy
	Op   BoolOp
}

func (c Composable) DoCache(p Profile, size int64) bool {
	a := c.A.DoCache(p, size)
	b := c.B.DoCache(p, size)
	if c.Op == OpAnd {
		return a && b
	}
	return a || b
}

func (c Composable) Name() string {
	op := "and"
	if c.Op == OpOr {
		op = "or"
	}
	return fmt.Sprintf("(%s %s %s)", c.A.Name(), op, c.B.Name())
}

func unknownRelevance(name string) error {
	return cacheerr.New(cacheerr.Argument, "RelevanceByName", fmt.Errorf("unknown relevance function %q", name))
}

func unknownAdmission(name string) error {
	return cacheerr.New(cacheerr.Argument, "AdmissionByName", fmt.Errorf("unknown admission strategy %q", name))
}

// AdmissionByName resolves a configured admission strategy name
// (nodeserver.cache.strategy). CostThreshold and SizeBounded variants are not
// nameable this way since they carry a parameter; construct them directly
// when a threshold/size limit is configured.
func AdmissionByName(name string) (AdmissionStrategy, error) {
	switch name {
	case "", "cache-all", "cacheall":
		return CacheAll{}, nil
	case "never":
		return Never{}, nil
	default:
		return nil, unknownAdmission(name)
	}
}
