// Package pipeline implements the approval state machine over the vault.
//
// A sweep walks three stages. Needs_Action records each get a plan in
// Plans; records mentioning a sensitive action additionally get an
// approval request in Pending_Approval, everything else auto-processes.
// Approved records are executed and archived, Rejected records archived
// without execution, and both verdicts land in the audit trail attributed
// to the human. Due scheduled tasks fire at the end of each sweep.
package pipeline
