package domain

// AppInfo describes one installed application. ID matches the identifier the
// foreground probe reports for the running program.
type AppInfo struct {
	ID       string
	Name     string
	Exec     string
	Icon     string
	Desktop  string
	Terminal bool
}
