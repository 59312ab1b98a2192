// Package pipeline provides a small composable concurrent pipeline: named
// stages ("processes") are wired together and run concurrently, the same
// approach described in S. Lampa's "Patterns for composable concurrent
// pipelines in Go" that the teacher's own src/pipeline package is built on.
// This module repurposes it as a fixed-size worker pool (see RunWorkers)
// instead of the teacher's read/sketch/align/genotype stage chain, since a
// dictionary build has one embarrassingly parallel stage - scanning each
// input piece into minimizer runs - rather than a streaming chain of them.
package pipeline

import "sync"

// BUFFERSIZE is the channel buffer size used by pipeline stages.
const BUFFERSIZE int = 64

// process is the interface every pipeline stage implements.
type process interface {
	Run()
}

// Pipeline chains processes together: all but the last run in their own
// goroutine, the last runs in the foreground so Run blocks until the whole
// chain has drained.
type Pipeline struct {
	processes []process
}

// NewPipeline returns an empty pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{}
}

// AddProcess appends a single stage to the pipeline.
func (p *Pipeline) AddProcess(proc process) {
	p.processes = append(p.processes, proc)
}

// AddProcesses appends multiple stages to the pipeline, in order.
func (p *Pipeline) AddProcesses(procs ...process) {
	for _, proc := range procs {
		p.AddProcess(proc)
	}
}

// Run starts every stage, blocking until the last one returns.
func (p *Pipeline) Run() {
	for i, proc := range p.processes {
		if i < len(p.processes)-1 {
			go proc.Run()
		} else {
			proc.Run()
		}
	}
}

// GetNumProcesses returns the number of stages registered in the pipeline.
func (p *Pipeline) GetNumProcesses() int {
	return len(p.processes)
}

// worker is a pipeline stage that repeatedly pulls a job index from jobs
// and applies fn to it, recording the first error it sees.
type worker struct {
	jobs <-chan int
	fn   func(int) error
	wg   *sync.WaitGroup
	once *sync.Once
	err  *error
}

func (w *worker) Run() {
	defer w.wg.Done()
	for i := range w.jobs {
		if err := w.fn(i); err != nil {
			w.once.Do(func() { *w.err = err })
		}
	}
}

// RunWorkers applies fn to every index in [0,n) across numWorkers
// concurrent workers wired together as a Pipeline, and returns the first
// error fn produced, if any. It is the dictionary package's parallel
// piece-scan accelerator.
func RunWorkers(n, numWorkers int, fn func(i int) error) error {
	if n <= 0 {
		return nil
	}
	if numWorkers < 1 {
		numWorkers = 1
	}
	if numWorkers > n {
		numWorkers = n
	}

	jobs := make(chan int, BUFFERSIZE)
	var wg sync.WaitGroup
	var once sync.Once
	var firstErr error

	p := NewPipeline()
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		p.AddProcess(&worker{jobs: jobs, fn: fn, wg: &wg, once: &once, err: &firstErr})
	}

	go func() {
		for i := 0; i < n; i++ {
			jobs <- i
		}
		close(jobs)
	}()

	runDone := make(chan struct{})
	go func() {
		p.Run()
		close(runDone)
	}()

	wg.Wait()
	<-runDone
	return firstErr
}
