package constants

// DocumentStatus is the per-document outcome reported with every analysis result.
type DocumentStatus string

const (
	DocumentStatusOK     DocumentStatus = "OK"     // metrics computed
	DocumentStatusFailed DocumentStatus = "FAILED" // a stage failed, see the error field
)

// Stage names a pipeline step; used in errors, logs and metrics labels.
type Stage string

const (
	StageExtract Stage = "extract"
	StageParse   Stage = "parse"
	StageCompute Stage = "compute"
	StageNarrate Stage = "narrate"
)
