package app

const (
	Name            = "menulink"
	SourceURL       = "https://git.skobk.in/skobkin/menulink"
	ConfigFilename  = "config.toml"
	JournalFilename = "journal.db"
	LogFilename     = "menulink.log"
)
