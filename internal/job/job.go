// Package job gives the supervisory workflow layer a collaborator
// shape to register against, adapted from original_source's
// arangod/Agency/Job.h. spec.md §1 calls the supervision job scaffolding
// out of scope for specification; this package models only the Job/
// JobContext contract the original header exposes (Create/Start/
// Status, a store snapshot, a transact helper) and implements no
// supervision policy — no FailedServer, CleanOutServer, or any other
// concrete job ever lives here.
package job

import (
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/ehz500/arangodb/internal/store"
)

// Status mirrors the original's JOB_STATUS enum.
type Status int

const (
	Todo Status = iota
	Pending
	Finished
	Failed
	NotFound
)

func (s Status) String() string {
	switch s {
	case Todo:
		return "TODO"
	case Pending:
		return "PENDING"
	case Finished:
		return "FINISHED"
	case Failed:
		return "FAILED"
	default:
		return "NOTFOUND"
	}
}

// Context carries everything a Job needs without reaching for global
// state (spec.md §9 "pass them to the constructors as abstract
// capability handles"): a read-only snapshot of the tree at job-create
// time, the submit path for the transaction it eventually produces,
// and the job's own identity.
type Context struct {
	Snapshot json.RawMessage
	Submit   store.Submitter

	JobId        string
	Creator      string
	AgencyPrefix string
}

// Job is the contract the original Job.h exposes: a job can be asked
// whether it already exists in the tree, be created, be started, and
// report its current status. This package never implements one —
// cmd/agencyd has somewhere realistic to register a cleanup job
// against, but the policy deciding what that job does stays out of
// scope (spec.md §1 Non-goals).
type Job interface {
	Exists(ctx Context) Status
	Create(ctx Context) error
	Start(ctx Context) error
	Status(ctx Context) Status
}

// Transact submits a single transaction through ctx's Submitter and
// reports whether it applied, mirroring the original's free function
// `transact(Agent*, Builder const&, bool waitForCommit)`: build one
// transaction envelope, submit it, and (by construction, since Submit
// is synchronous in this rewrite) the result is known before return.
func Transact(ctx Context, txn store.Transaction) (bool, error) {
	if ctx.Submit == nil {
		return false, fmt.Errorf("job: context has no submitter")
	}

	results := ctx.Submit.Submit([]store.Transaction{txn})
	if len(results) != 1 {
		return false, fmt.Errorf("job: expected 1 result, got %d", len(results))
	}

	log.WithFields(log.Fields{"jobId": ctx.JobId, "creator": ctx.Creator, "applied": results[0]}).
		Debug("job: transact")

	return results[0], nil
}
