package bus

import "fmt"

// Default COMMS subjects.
const (
	SubjectStorage = "service.storage.v1"
	SubjectNotify  = "storage.notify"
)

// BuildServiceSubject builds a COMMS subject for a versioned bus service.
func BuildServiceSubject(name string, version int) string {
	return fmt.Sprintf("service.%s.v%d", name, version)
}

// BuildNotifySubject builds the change-event subject for a record kind and
// event name (created, updated, deleted).
func BuildNotifySubject(kind, event string) string {
	return fmt.Sprintf("%s.%s.%s", SubjectNotify, kind, event)
}
