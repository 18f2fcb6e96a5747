// Package store persists what one simulation mode hands to the next: the
// final activation row of a field, written as a timestamped gob+gzip blob,
// and the stimulus list, written as a JSON parameter record.
//
// Both loaders return ErrNotFound when nothing matches, which is fatal to
// recall mode.
package store
