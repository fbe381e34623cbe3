package constants

// RunStatus is the canonical status for rows in runs.
type RunStatus string

// Stable values (store these exact strings in DB).
const (
	RunStatusRunning  RunStatus = "RUNNING"  // in progress
	RunStatusOK       RunStatus = "OK"       // all materials refined
	RunStatusDegraded RunStatus = "DEGRADED" // completed, but at least one record skipped AI refinement
	RunStatusFailed   RunStatus = "FAILED"   // terminal failure before any output
)

// CandidateSource tags which retrieval path produced a candidate passage.
type CandidateSource string

const (
	SourceKeyword  CandidateSource = "keyword"
	SourceSemantic CandidateSource = "semantic"
	SourceBoth     CandidateSource = "both"
)
