package app

// AppState represents the different views/modes of the application.
type AppState int

const (
	Running AppState = iota
	Finished
	ShowError
	Exiting
)

// Region statuses shown in the table.
const (
	StatusQueued   = "Queued"
	StatusLoading  = "Loading"
	StatusComplete = "Complete"
)
