package errors

import "fmt"

var (
	ErrNameTaken           = fmt.Errorf("participant name already taken")
	ErrParticipantNotFound = fmt.Errorf("participant not found")
	ErrMessageNotFound     = fmt.Errorf("message not found")
	ErrWorkerPanic         = fmt.Errorf("worker panic")
	ErrEmptyWords          = fmt.Errorf("no words have been found")
)
