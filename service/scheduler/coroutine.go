package scheduler

import (
	"fmt"
)

type signalKind int

const (
	signalYield signalKind = iota
	signalBlock
	signalExit
)

func (k signalKind) String() string {
	switch k {
	case signalYield:
		return "yield"
	case signalBlock:
		return "block"
	}
	return "exit"
}

// signal is what a coroutine reports when it hands control back.
type signal struct {
	kind signalKind
	err  error
}

// abortSignal unwinds a parked coroutine whose scheduler was closed.
type abortSignal struct{}

// coroutine is the saved execution state of a task.  The goroutine is
// started on the first switchTo and parks on resume whenever it yields or
// blocks.  Fields are only touched by whichever side holds control.
type coroutine struct {
	body    func() error
	resume  chan bool
	suspend chan signal
	exited  chan struct{}
	started bool
	done    bool
	aborted bool
}

func newCoroutine(body func() error) *coroutine {
	return &coroutine{
		body:    body,
		resume:  make(chan bool),
		suspend: make(chan signal),
		exited:  make(chan struct{}),
	}
}

// switchTo transfers control to the coroutine and waits until it parks or
// returns.
func (c *coroutine) switchTo() signal {
	if !c.started {
		c.started = true
		go c.run()
	} else {
		c.resume <- true
	}
	sig := <-c.suspend
	if sig.kind == signalExit {
		c.done = true
	}
	return sig
}

func (c *coroutine) run() {
	defer close(c.exited)
	sig := signal{kind: signalExit}
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(abortSignal); ok {
				return
			}
			sig.err = fmt.Errorf("%w: %v", ErrTaskPanic, r)
		}
		if c.aborted {
			return
		}
		c.suspend <- sig
	}()
	sig.err = c.body()
}

// park hands control back to the scheduler and waits to be resumed.
func (c *coroutine) park(kind signalKind) {
	if c.aborted {
		panic(abortSignal{})
	}
	c.suspend <- signal{kind: kind}
	if !<-c.resume {
		panic(abortSignal{})
	}
}

// abort unwinds a parked coroutine and waits for its goroutine to exit.
func (c *coroutine) abort() {
	if !c.started || c.done || c.aborted {
		return
	}
	c.aborted = true
	close(c.resume)
	<-c.exited
}
