//go:build linux

package out

type linuxDesktop struct{}

func platformDesktopCommands() desktopCommands {
	return linuxDesktop{}
}

func (linuxDesktop) notify(title, message, icon string) []string {
	argv := []string{"notify-send", "--app-name=appguard", "--urgency=critical"}
	if icon != "" {
		argv = append(argv, "--icon="+icon)
	}
	return append(argv, title, message)
}

func (linuxDesktop) play(path string) []string {
	return []string{"paplay", path}
}

func (linuxDesktop) open(path string) []string {
	return []string{"xdg-open", path}
}
