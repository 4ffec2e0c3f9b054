//go:build !linux && !darwin

package out

type noDesktop struct{}

func platformDesktopCommands() desktopCommands {
	return noDesktop{}
}

func (noDesktop) notify(string, string, string) []string { return nil }
func (noDesktop) play(string) []string                   { return nil }
func (noDesktop) open(string) []string                   { return nil }
