package ports

// Interactor is the terminal seen by the application layer
type Interactor interface {
	Output(message string)
	Outputf(format string, args ...interface{})
	Warning(message string)
	Error(message string, err error)
	Confirm(message string, defaultValue bool) (bool, error)
}
