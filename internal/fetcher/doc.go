// Package fetcher drives the external download tool for one item: it
// spawns the tool, scrapes its progress bar and failure markers, and on
// success registers the produced files as managed attachments.
package fetcher
