// Package checkpoint saves the phases of a post that finished, so an
// interrupted run can skip them when it is resumed.
//
// A checkpoint is written only when a phase completes; partial phases are
// never saved because pagination always restarts from the first page.
// Files live under the configured checkpoint directory, one per post:
//
//	<dir>/<shortcode>.checkpoint.json
//
// Writes go to a temporary file that is synced and renamed into place.
package checkpoint
