// Package jobs runs the content scan: the single, process-wide job that pulls
// items needing content from the library store and drives each one through
// the tagging pipeline.
//
// The Engine owns the job descriptor (active flag, counters, current item,
// token usage) and exposes it only through Status snapshots. Start launches a
// supervised run goroutine and returns a Run whose progress.Stream carries
// start, progress, error and complete events; consumers may detach from the
// stream at any time without affecting the job.
//
// Items are processed one at a time. Each item runs behind its own recover
// boundary so a bad file is recorded on the item as a sentinel tag/summary
// pair instead of ending the run. A panic escaping the item boundary is
// caught by the run supervisor, which marks the in-flight item as crashed.
// Stop is cooperative and takes effect at the next batch boundary.
package jobs
