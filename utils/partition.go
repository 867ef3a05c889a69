package utils

import (
	"runtime"
	"sync"
)

// RowPartition splits [0,MaxIndex) into ParallelDegree contiguous ranges, with a maximum
// imbalance of one row between ranges
type RowPartition struct {
	MaxIndex       int
	ParallelDegree int
	Ranges         [][2]int // Beginning and end index of each range
}

func NewRowPartition(parallelDegree, maxIndex int) (rp *RowPartition) {
	if parallelDegree < 1 {
		parallelDegree = 1
	}
	rp = &RowPartition{
		MaxIndex:       maxIndex,
		ParallelDegree: parallelDegree,
		Ranges:         make([][2]int, parallelDegree),
	}
	var (
		size      = maxIndex / parallelDegree
		remainder = maxIndex % parallelDegree
		start     int
	)
	for n := 0; n < parallelDegree; n++ {
		end := start + size
		if n < remainder { // spread the remainder over the first ranges
			end++
		}
		rp.Ranges[n] = [2]int{start, end}
		start = end
	}
	return
}

// DefaultParallelDegree bounds the goroutine count by the processors and the work available
func DefaultParallelDegree(procLimit, maxIndex int) (np int) {
	np = runtime.NumCPU()
	if procLimit > 0 && procLimit < np {
		np = procLimit
	}
	if np > maxIndex {
		np = maxIndex
	}
	if np < 1 {
		np = 1
	}
	return
}

func (rp *RowPartition) Range(n int) (min, max int) { return rp.Ranges[n][0], rp.Ranges[n][1] }

// Run calls f once per range, concurrently when there is more than one range
func (rp *RowPartition) Run(f func(min, max int)) {
	if rp.ParallelDegree == 1 {
		f(0, rp.MaxIndex)
		return
	}
	var wg sync.WaitGroup
	for n := 0; n < rp.ParallelDegree; n++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			f(rp.Range(n))
		}(n)
	}
	wg.Wait()
}
