package broker

import "sync"

// defaultExecWorkers bounds concurrent command execution when not configured.
const defaultExecWorkers = 4

// execPool is a fixed-size pool of workers dedicated to blocking subprocess
// waits. Keeping those waits off the broker goroutine means a long-running
// command never stalls connects, disconnects, or other sessions' messages.
type execPool struct {
	tasks chan func()
	quit  chan struct{}
	wg    sync.WaitGroup
}

func newExecPool(workers int) *execPool {
	p := &execPool{
		tasks: make(chan func(), 64),
		quit:  make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

func (p *execPool) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.quit:
			return
		case task := <-p.tasks:
			select {
			case <-p.quit:
				return
			default:
			}
			task()
		}
	}
}

// trySubmit enqueues a task without blocking. It reports false when the
// backlog is full; the caller holds on to the command until a slot frees.
func (p *execPool) trySubmit(task func()) bool {
	select {
	case p.tasks <- task:
		return true
	default:
		return false
	}
}

// close stops the workers after their current task. Queued tasks are
// abandoned; the broker is shutting down along with them.
func (p *execPool) close() {
	close(p.quit)
	p.wg.Wait()
}
