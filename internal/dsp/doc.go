// Package dsp turns fixed-size audio blocks into dominant-frequency estimates.
package dsp
