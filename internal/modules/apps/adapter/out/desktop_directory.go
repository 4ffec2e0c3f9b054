package out

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"appguard/internal/modules/apps/domain"
	appsout "appguard/internal/modules/apps/port/out"
)

// DesktopDirectory lists applications from XDG .desktop entries.
type DesktopDirectory struct {
	roots []string
}

func NewDesktopDirectory(roots ...string) appsout.Directory {
	if len(roots) == 0 {
		roots = DefaultRoots()
	}
	return &DesktopDirectory{roots: roots}
}

// DefaultRoots returns $XDG_DATA_HOME and $XDG_DATA_DIRS application folders.
func DefaultRoots() []string {
	var roots []string
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dataHome = filepath.Join(home, ".local", "share")
		}
	}
	if dataHome != "" {
		roots = append(roots, filepath.Join(dataHome, "applications"))
	}
	dataDirs := os.Getenv("XDG_DATA_DIRS")
	if dataDirs == "" {
		dataDirs = "/usr/local/share:/usr/share"
	}
	for _, dir := range strings.Split(dataDirs, ":") {
		if dir != "" {
			roots = append(roots, filepath.Join(dir, "applications"))
		}
	}
	return roots
}

func (d *DesktopDirectory) List(ctx context.Context) ([]domain.AppInfo, error) {
	seen := map[string]struct{}{}
	out := []domain.AppInfo{}
	for _, root := range d.roots {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		matches, err := filepath.Glob(filepath.Join(root, "*.desktop"))
		if err != nil {
			return nil, fmt.Errorf("glob desktop entries: %w", err)
		}
		for _, path := range matches {
			info, ok := parseDesktopEntry(path)
			if !ok {
				continue
			}
			// Earlier roots shadow later ones, as in the XDG lookup order.
			if _, dup := seen[info.ID]; dup {
				continue
			}
			seen[info.ID] = struct{}{}
			out = append(out, info)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

func parseDesktopEntry(path string) (domain.AppInfo, bool) {
	file, err := os.Open(path)
	if err != nil {
		return domain.AppInfo{}, false
	}
	defer file.Close()

	info := domain.AppInfo{Desktop: path}
	inEntry := false
	hidden := false
	kind := ""
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			inEntry = line == "[Desktop Entry]"
			continue
		}
		if !inEntry {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "Name":
			info.Name = strings.TrimSpace(value)
		case "Exec":
			info.Exec = strings.TrimSpace(value)
		case "Icon":
			info.Icon = strings.TrimSpace(value)
		case "Type":
			kind = strings.TrimSpace(value)
		case "Terminal":
			info.Terminal = strings.EqualFold(strings.TrimSpace(value), "true")
		case "NoDisplay", "Hidden":
			if strings.EqualFold(strings.TrimSpace(value), "true") {
				hidden = true
			}
		}
	}
	if hidden || kind != "Application" || info.Exec == "" {
		return domain.AppInfo{}, false
	}
	info.ID = execID(info.Exec)
	if info.ID == "" {
		return domain.AppInfo{}, false
	}
	if info.Name == "" {
		info.Name = info.ID
	}
	return info, true
}

// execID reduces an Exec line to the program basename the probe reports.
func execID(exec string) string {
	fields := strings.Fields(exec)
	for len(fields) > 0 && (fields[0] == "env" || strings.Contains(fields[0], "=")) {
		fields = fields[1:]
	}
	if len(fields) == 0 {
		return ""
	}
	return filepath.Base(strings.Trim(fields[0], `"`))
}
