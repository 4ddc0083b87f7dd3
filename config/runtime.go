package config

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

// Environment variables consulted when building the edit stamp.
const (
	EnvRunID        = "EDDATA_RUN_ID"
	EnvAirflowRunID = "AIRFLOW_CTX_DAG_RUN_ID"
	EnvUser         = "USER"
)

// RunOptions carries the per-invocation switches into every component that writes.
type RunOptions struct {
	// DryRun disables all mutating calls; reads and matching still run.
	DryRun bool
	// Verbose enables per-row logging.
	Verbose bool
	// EditStamp is written into the edit_stamp column of every inserted or updated row.
	EditStamp string
}

// NewRunOptions builds RunOptions with an edit stamp derived from the environment.
func NewRunOptions(dryRun, verbose bool) RunOptions {
	return RunOptions{
		DryRun:    dryRun,
		Verbose:   verbose,
		EditStamp: EditStamp(time.Now()),
	}
}

// EditStamp identifies who changed a row and when.
// A scheduler run id wins over the timestamp; USER falls back to a short random id.
func EditStamp(now time.Time) string {
	user := os.Getenv(EnvUser)
	if user == "" {
		user = uuid.NewString()[:8]
	}

	for _, name := range []string{EnvRunID, EnvAirflowRunID} {
		if runID := os.Getenv(name); runID != "" {
			return fmt.Sprintf("%s-%s", runID, user)
		}
	}

	return fmt.Sprintf("%s-%s", now.UTC().Format("2006-01-02T15-04-05"), user)
}
