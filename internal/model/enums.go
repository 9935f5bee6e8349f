package model

// Generation status
type GenerationStatus string

const (
	GenerationStatusQueued     GenerationStatus = "queued"
	GenerationStatusSubmitting GenerationStatus = "submitting"
	GenerationStatusPolling    GenerationStatus = "polling"
	GenerationStatusReady      GenerationStatus = "ready"
	GenerationStatusFailed     GenerationStatus = "failed"
	GenerationStatusCanceled   GenerationStatus = "canceled"
)

// Terminal reports whether no further work happens for a generation in s
func (s GenerationStatus) Terminal() bool {
	switch s {
	case GenerationStatusReady, GenerationStatusFailed, GenerationStatusCanceled:
		return true
	}
	return false
}

// DefaultModel is the remote model version used when a request names none
const DefaultModel = "chirp-v3-5"
