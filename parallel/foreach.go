package parallel

import "context"
import "sync"

// ForEach executes a for loop with a limited number of concurrent goroutines.
// Each goroutine processes one integer, from 0 to length.
func ForEach(length, limit int, body func(i int)) {
	_ = ForEachContext(context.Background(), length, limit, func(i int) error {
		body(i)
		return nil
	})
}

// ForEachContext is ForEach which stops scheduling new iterations once ctx is
// done or a body returns an error. The first error (or ctx.Err()) is returned
// after all started iterations have finished.
func ForEachContext(ctx context.Context, length, limit int, body func(i int) error) error {
	if limit <= 0 {
		limit = 1
	}
	if length <= 0 {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		sem   = make(chan struct{}, limit)
		wg    sync.WaitGroup
		once  sync.Once
		first error
	)
	fail := func(err error) {
		once.Do(func() { first = err })
		cancel()
	}

loop:
	for i := 0; i < length; i++ {
		if err := ctx.Err(); err != nil {
			fail(err)
			break
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			fail(ctx.Err())
			break loop
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := body(i); err != nil {
				fail(err)
			}
		}(i)
	}

	wg.Wait()
	return first
}
