package workflow

import "github.com/rotisserie/eris"

// ErrWorkflowTerminated is returned when an operation targets a case that
// already reached a terminal stage. The case record is left unchanged.
var ErrWorkflowTerminated = eris.New("workflow: case already in a terminal stage")

// ErrCaseExists is returned when Start is called for a thread that already
// has an active (non-terminal) run.
var ErrCaseExists = eris.New("workflow: case already exists for this claim")

// ErrAwaitingHuman is returned when a paused case is resumed without the
// human confirmation it is waiting for.
var ErrAwaitingHuman = eris.New("workflow: case is paused for human action; resume with confirmation")
