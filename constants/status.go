package constants

// FileStatus is the aggregate extraction status stored on files rows.
type FileStatus string

// Stable values (store these exact strings in DB).
const (
	FileStatusPending  FileStatus = "PENDING"  // not every unit has been persisted yet
	FileStatusComplete FileStatus = "COMPLETE" // every unit extracted
	FileStatusDegraded FileStatus = "DEGRADED" // finished, some units failed
	FileStatusFailed   FileStatus = "FAILED"   // finished, every unit failed
)

// Recognition defaults.
const (
	DefaultLang        = "eng"
	DefaultRenderScale = 2.0
	// PointsPerInch converts a render scale into the DPI MuPDF expects.
	PointsPerInch = 72.0
)
