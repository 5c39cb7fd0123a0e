package app

// Key binding constants used in handleKey.
const (
	KeyQuit      = "q"
	KeyQuitUpper = "Q"
	KeyCtrlC     = "ctrl+c"
	KeySpace     = " "
	KeyUpload    = "u"
	KeyCorrect   = "c"
	KeyFix       = "f"
	KeyWeights   = "w"
	KeyExport    = "e"
	KeyCompare   = "v"
	KeyUp        = "up"
	KeyDown      = "down"
	KeyJ         = "j"
	KeyK         = "k"
	KeyPlus      = "+"
	KeyMinus     = "-"
	KeyEnter     = "enter"
	KeyEscape    = "esc"
	KeyBackspace = "backspace"
)
