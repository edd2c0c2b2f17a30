// Package pipeline runs the multi-stage article generation workflow.
//
// Each topic passes through the stages in a fixed order. Soft stages record a
// warning and let the run continue with degraded output; hard stages abort
// the run after the failed execution status has been written. Chunks are
// generated strictly one after another because every chunk prompt lists the
// headings emitted by the chunks before it.
package pipeline
