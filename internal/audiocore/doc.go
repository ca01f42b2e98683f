// Package audiocore is the streaming core of the recorder: the AudioBlock and
// channel Item types, the stage interfaces, and the Pipeline that runs one
// source, one processor and one sink joined by two bounded channels.
//
//	Source --(channel A)--> Processor --(channel B)--> Sink
//
// Every Start builds fresh channels and fresh stage instances through a
// StageFactory, so a restart never sees state from the previous run.
//
// Control items travel in band. Flush discards queued data in each stage and is
// forwarded downstream; Terminate is forwarded downstream and ends each stage.
// A graceful Stop cancels only the source, after which the pipeline emits
// Terminate on channel A. An immediate Stop cancels every stage.
//
// Producers never block on a full channel: the block is dropped and counted.
package audiocore
