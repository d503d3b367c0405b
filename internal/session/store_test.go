package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryUnknownKeyIsEmpty(t *testing.T) {
	s := New(10, 0, 0)
	assert.Empty(t, s.History("nobody"))
	assert.Equal(t, 1, s.Len())
}

func TestAppendKeepsLastN(t *testing.T) {
	s := New(10, 0, 0)
	for i := 0; i < 12; i++ {
		s.Append("t", fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
	}

	h := s.History("t")
	require.Len(t, h, 10)
	assert.Equal(t, Exchange{Query: "q2", Answer: "a2"}, h[0])
	assert.Equal(t, Exchange{Query: "q11", Answer: "a11"}, h[9])
}

func TestHistoryLengthGrowsToLimit(t *testing.T) {
	s := New(10, 0, 0)
	for n := 1; n <= 15; n++ {
		// before the n-th query the history holds min(n-1, 10) exchanges
		assert.Len(t, s.History("t"), min(n-1, 10))
		s.Append("t", "q", "a")
	}
}

func TestHistoryReturnsCopy(t *testing.T) {
	s := New(10, 0, 0)
	s.Append("t", "q", "a")

	h := s.History("t")
	h[0].Answer = "mutated"

	assert.Equal(t, "a", s.History("t")[0].Answer)
}

func TestSessionsAreIsolated(t *testing.T) {
	s := New(10, 0, 0)
	s.Append("a", "qa", "aa")
	s.Append("b", "qb", "ab")

	assert.Equal(t, []Exchange{{Query: "qa", Answer: "aa"}}, s.History("a"))
	assert.Equal(t, []Exchange{{Query: "qb", Answer: "ab"}}, s.History("b"))
}

func TestConcurrentAppend(t *testing.T) {
	s := New(10, 0, 0)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Append("shared", fmt.Sprintf("q%d", i), "a")
			_ = s.History("shared")
		}(i)
	}
	wg.Wait()

	assert.Len(t, s.History("shared"), 10)
}

func TestLRUEviction(t *testing.T) {
	s := New(10, 2, 0)
	s.Append("a", "q", "a")
	s.Append("b", "q", "a")
	s.Append("c", "q", "a")

	assert.Equal(t, 2, s.Len())
	assert.Empty(t, s.History("a"))
}

func TestTTLEviction(t *testing.T) {
	s := New(10, 0, 50*time.Millisecond)
	s.Append("t", "q", "a")

	assert.Eventually(t, func() bool { return s.Len() == 0 }, 2*time.Second, 20*time.Millisecond)
	assert.Empty(t, s.History("t"))
}

func TestActiveThreadOutlivesTTL(t *testing.T) {
	s := New(10, 0, 300*time.Millisecond)
	for i := 0; i < 5; i++ {
		s.Append("t", fmt.Sprintf("q%d", i), "a")
		time.Sleep(100 * time.Millisecond)
	}

	// each access restarts the idle timer, so nothing has expired
	h := s.History("t")
	require.Len(t, h, 5)
	assert.Equal(t, "q0", h[0].Query)
}

func TestDefaultLimit(t *testing.T) {
	assert.Equal(t, DefaultHistoryLimit, New(0, 0, 0).Limit())
}
