package app

// viewState tracks which screen the program is showing.
type viewState int

const (
	converting viewState = iota
	exiting
)
