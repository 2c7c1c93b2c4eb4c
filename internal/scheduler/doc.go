// Package scheduler owns the worker pool. Each worker repeatedly claims
// one eligible job, runs the fetch stage then the transcode stage, and
// maps every outcome to a disposition: retry after a cooldown, terminal
// failure, cascade deletion, or success. The claim step is serialized by
// an in-process mutex so two workers can never take the same job.
package scheduler
