// Package driven lists what the services need from the outside world.
//
// DocumentStore, SchedulerStore and ConfigStore must always be wired.
// The rest may be nil, and the operations that need them return the
// matching domain error instead:
//
//   - TextGenerator: distill, detect, sync, align and export
//   - ContentSource: sync, align and drift. Distill runs without repository context.
//   - IssueTracker: export to work items
//   - Notifier: conflict alerts and version notifications
//
// Interfaces here import only the domain package.
package driven
