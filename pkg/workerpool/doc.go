// Package workerpool runs agent decision tasks on long-lived per-agent workers.
//
// Each agent id gets at most one worker goroutine, created on first use and
// kept warm between rounds. Busy workers hold one unit of pool capacity; a
// submit that needs capacity waits on a weighted semaphore. Every task carries
// a hard timeout: when it fires the worker is terminated and its bookkeeping
// dropped, so anything the worker reports afterwards is discarded.
//
// Max bounds busy workers, not live ones. A worker that finishes its task
// gives its slot back and stays warm, so Stats().Total can exceed Max while
// Stats().Active never does.
//
// Workers report on a single pool-wide channel. Results are matched to the
// pending task by agent id, worker instance id and task id.
package workerpool
