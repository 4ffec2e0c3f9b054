//go:build darwin

package out

import "strconv"

type darwinDesktop struct{}

func platformDesktopCommands() desktopCommands {
	return darwinDesktop{}
}

func (darwinDesktop) notify(title, message, _ string) []string {
	script := "display notification " + strconv.Quote(message) + " with title " + strconv.Quote(title) + ` sound name "default"`
	return []string{"osascript", "-e", script}
}

func (darwinDesktop) play(path string) []string {
	return []string{"afplay", path}
}

func (darwinDesktop) open(path string) []string {
	return []string{"open", path}
}
