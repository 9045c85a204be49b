package idgen

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextIDUnique(t *testing.T) {
	Init(1)

	const n = 10000
	seen := make(map[int64]bool, n)
	for i := 0; i < n; i++ {
		id := NextID()
		assert.False(t, seen[id], "重复ID: %d", id)
		assert.Positive(t, id)
		seen[id] = true
	}
}

func TestNextIDConcurrent(t *testing.T) {
	Init(1)

	const goroutines = 10
	const perGoroutine = 1000

	var mu sync.Mutex
	seen := make(map[int64]bool, goroutines*perGoroutine)

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				id := NextID()
				mu.Lock()
				assert.False(t, seen[id])
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
}

func TestGeneratedNoFormats(t *testing.T) {
	Init(1)

	orderNo := GenerateOrderNo()
	assert.True(t, strings.HasPrefix(orderNo, "ORD"))
	assert.Len(t, orderNo, 3+14+8)

	entryNo := GenerateEntryNo()
	assert.True(t, strings.HasPrefix(entryNo, "TXN"))
	assert.Len(t, entryNo, 3+14+8)

	adjustNo := GenerateAdjustNo()
	assert.True(t, strings.HasPrefix(adjustNo, "ADJ"))
	assert.Len(t, adjustNo, 3+14+8)
}

func TestGenerateReferralCode(t *testing.T) {
	Init(1)

	code := GenerateReferralCode()
	assert.True(t, strings.HasPrefix(code, "UA"))
	assert.Len(t, code, 10)

	// 不含易混淆字符
	for _, r := range code[2:] {
		assert.NotContains(t, "01OI", string(r))
	}
}
