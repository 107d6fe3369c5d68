// Package filesystem reads documents from a local checkout and watches it.
//
// ContentSource serves files below a checkout root for one repository.
// Watcher follows the checkout with fsnotify and turns bursts of file
// changes into push triggers, so a developer editing the PRD or the code
// it describes gets the same evolution a pushed commit would cause.
package filesystem
