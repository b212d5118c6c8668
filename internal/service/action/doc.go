// Package action runs the operator command configured for tone reports.
package action
