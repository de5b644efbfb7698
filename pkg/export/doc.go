// Package export writes a retrieved post and its interactions to disk.
//
// Three formats are supported:
//
//	xlsx  spreadsheet with a post summary block and one row per interaction
//	txt   usernames only, one per line, in retrieval order
//	json  the post summary and interactions as a single document
//
// Interactions are written exactly as retrieved. Duplicates produced by a
// restarted phase are kept.
package export
