package models

// FilePlacement assigns one source file to an account and a logical
// destination path.
type FilePlacement struct {
	AccountID string
	RelPath   string
	Path      string
	Size      int64
}

// AllocationDecision is the full placement for one transfer request.
// Produced once by the allocator, consumed once by the command
// generator, persisted only after the external tool reports success.
type AllocationDecision struct {
	Placements []FilePlacement
}

// CommandOp is the kind of external invocation a command performs.
type CommandOp string

const (
	OpCopy   CommandOp = "copy"
	OpDelete CommandOp = "delete"
)

// Command is one structured external-tool invocation: a full argument
// vector plus the include-file lines it references. Nothing here is
// shell-quoted; serialization stays at the executor boundary.
type Command struct {
	AccountID    string
	Op           CommandOp
	Source       string
	Args         []string
	IncludeLines []string
	Files        []FilePlacement
}

// UploadedObject is the executor's confirmation for one file.
type UploadedObject struct {
	Path     string
	RemoteID string
	Size     int64
}
