// Package outcome defines the stage result taxonomy shared by the
// scheduler and the subprocess adapters. Adapters classify every
// expected failure into a Kind and return it as a value; only genuinely
// unexpected errors cross the scheduler boundary as plain errors.
package outcome
