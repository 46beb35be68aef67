package util

import (
	"context"
	"sync"
)

// ProcessItemsWithThreadPool runs processFunc over every item using at most maxThreadCount goroutines.
// Items are handed out in slice order together with their index. Once ctx is done, remaining items are
// drained without being processed.
func ProcessItemsWithThreadPool[K any](ctx context.Context, maxThreadCount int, itemsToProcess []K, processFunc func(int, K)) {
	wg := &sync.WaitGroup{}
	processChannel := make(chan indexedItem[K])

	for i := 0; i < Min(len(itemsToProcess), maxThreadCount); i++ {
		wg.Add(1)
		go poolWorker(ctx, wg, processChannel, processFunc)
	}

	for i, item := range itemsToProcess {
		processChannel <- indexedItem[K]{index: i, item: item}
	}

	close(processChannel)
	wg.Wait()
}

type indexedItem[K any] struct {
	index int
	item  K
}

func poolWorker[K any](ctx context.Context, wg *sync.WaitGroup, itemsToProcess chan indexedItem[K], processFunc func(int, K)) {
	defer wg.Done()

	for i := range itemsToProcess {
		// Skip processing once context is finished
		if ctx.Err() != nil {
			continue
		}
		processFunc(i.index, i.item)
	}
}
