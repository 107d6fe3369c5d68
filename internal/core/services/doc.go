// Package services implements the driving ports on top of the driven ones.
//
// Operations that change a document build the complete result in memory
// and hand it to the DocumentStore in one call, so a failed or cancelled
// run leaves nothing half-written.
package services
