package cachecore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// CacheAll always admits regardless of profile/size.
func TestCacheAllAlwaysAdmits(t *testing.T) {
	a := CacheAll{}
	assert.True(t, a.DoCache(Profile{}, 0))
	assert.True(t, a.DoCache(Profile{CPUMillis: 1e9}, 1<<40))
}

// Never always rejects.
func TestNeverAlwaysRejects(t *testing.T) {
	n := Never{}
	assert.False(t, n.DoCache(Profile{CPUMillis: 1e9}, 1))
	assert.False(t, n.DoCache(Profile{}, 0))
}

func TestCostThreshold(t *testing.T) {
	c := CostThreshold{Tau: 100}
	assert.False(t, c.DoCache(Profile{CPUMillis: 99}, 10))
	assert.True(t, c.DoCache(Profile{CPUMillis: 100}, 10))
}

func TestSizeBounded(t *testing.T) {
	s := SizeBounded{SMax: 1000}
	assert.True(t, s.DoCache(Profile{}, 1000))
	assert.False(t, s.DoCache(Profile{}, 1001))
}

func TestComposableAndOr(t *testing.T) {
	costy := CostThreshold{Tau: 50}
	small := SizeBounded{SMax: 100}

	and := Composable{A: costy, B: small, Op: OpAnd}
	assert.True(t, and.DoCache(Profile{CPUMillis: 60}, 50))
	assert.False(t, and.DoCache(Profile{CPUMillis: 60}, 500))

	or := Composable{A: costy, B: small, Op: OpOr}
	assert.True(t, or.DoCache(Profile{CPUMillis: 60}, 500))
	assert.False(t, or.DoCache(Profile{CPUMillis: 1}, 500))
}

func TestAdmissionByName(t *testing.T) {
	a, err := AdmissionByName("cache-all")
	assert := assert.New(t)
	assert.NoError(err)
	assert.Equal("cache-all", a.Name())

	a, err = AdmissionByName("never")
	assert.NoError(err)
	assert.Equal("never", a.Name())

	_, err = AdmissionByName("bogus")
	assert.Error(err)
}
