// Package event delivers detector events to any number of subscribers.
//
// The bus has a single producer, the audio path, and never blocks it: each
// subscriber owns a bounded queue and events that do not fit are dropped and
// reported through the drop hook.
package event
