// Package engine executes built graphs.
//
// A run walks the graph's units (single nodes, or whole cycle groups) in
// dependency order. Units whose dependencies have all succeeded are pushed
// onto a ready channel drained by a fixed pool of workers, so independent
// branches run in parallel. A cycle unit re-executes its members in
// topological order once per iteration, strictly sequentially, seeding each
// iteration from the previous one through the re-entry mappings and stopping
// when the convergence predicate holds or max_iterations is reached.
//
// Every execution is recorded in the Result Store under
// (run id, node id, iteration). Downstream inputs, the previous-iteration
// state a cycle member sees, and all inspection APIs read from there.
//
// Failure handling:
//   - a failing node outside cycle groups aborts the run; units not yet
//     started are SKIPPED, running ones are awaited, and Execute returns a
//     *RunFailedError
//   - a failing cycle member aborts only its group; the group's downstream is
//     SKIPPED and a *CycleExecutionError is returned once the unaffected
//     branches finish
//   - cancellation and timeouts skip everything not yet running and return
//     *RunCancelledError, *RunTimeoutError or *CycleTimeoutError
package engine
