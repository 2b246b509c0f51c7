// Package pipeline runs the stages of one snapshot in sequence.
//
// A Run carries the state of a snapshot from stage to stage: the live or
// fetched document, the cloned root resource, the per-run model.Snapshot and
// finally the output markup. The standard stages are capture, crawl, dry,
// finish and render; DefaultPipeline wires them in that order.
//
// Cancellation does not stop the pipeline. The crawl stage stops fetching
// when the context is done, and the remaining stages still run so that
// whatever was collected is dried, finished and rendered.
//
// BatchProcessor archives several URLs concurrently with errgroup.
package pipeline
