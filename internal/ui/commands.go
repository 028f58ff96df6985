package ui

import (
	"fmt"
	"strings"

	"openworker/internal/pathguard"
)

const CommandPrefix = `\`

const helpText = "Commands:\n" +
	" \\add <path>      allow the assistant to use a folder\n" +
	" \\rm <path>       revoke a folder\n" +
	" \\folders         list allowed folders\n" +
	" \\list_servers    list connected tool servers\n" +
	" \\clear           clear the screen"

// CommandResult is the outcome of one slash command.
type CommandResult struct {
	Output string
	Err    bool
	// Clear asks the UI to wipe the transcript on screen.
	Clear bool
}

// FolderSetter receives the new folder list after \add and \rm.
type FolderSetter interface {
	UpdateFolders(folders []string)
}

// Commands runs the backslash commands typed into the input box.
type Commands struct {
	Folders FolderStore
	Servers ServerLister
	Session FolderSetter
}

// IsCommand reports whether input should be handled by Run rather than sent
// to the model.
func IsCommand(input string) bool {
	input = strings.TrimSpace(input)
	return strings.HasPrefix(input, CommandPrefix) && len(strings.Fields(input[len(CommandPrefix):])) > 0
}

// Run executes one command line. The caller checks IsCommand first.
func (c *Commands) Run(input string) CommandResult {
	line := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(input), CommandPrefix))
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "help":
		return CommandResult{Output: helpText}
	case "list_servers":
		return c.listServers()
	case "folders":
		return c.listFolders()
	case "add":
		if arg == "" {
			return CommandResult{Output: `Usage: \add <path>`, Err: true}
		}
		return c.addFolder(arg)
	case "rm":
		if arg == "" {
			return CommandResult{Output: `Usage: \rm <path>`, Err: true}
		}
		return c.removeFolder(arg)
	case "clear":
		return CommandResult{Clear: true}
	default:
		return CommandResult{Output: "Unknown command: " + cmd, Err: true}
	}
}

func (c *Commands) listServers() CommandResult {
	if c.Servers == nil {
		return CommandResult{Output: "Connected Servers: none"}
	}
	infos := c.Servers.Providers()
	if len(infos) == 0 {
		return CommandResult{Output: "Connected Servers: none"}
	}
	lines := make([]string, len(infos))
	for i, p := range infos {
		lines[i] = fmt.Sprintf("- %s (%d tools)", p.Name, p.Tools)
	}
	return CommandResult{Output: "Connected Servers:\n" + strings.Join(lines, "\n")}
}

func (c *Commands) listFolders() CommandResult {
	folders, err := c.Folders.ListFolders()
	if err != nil {
		return CommandResult{Output: fmt.Sprintf("Error listing folders: %v", err), Err: true}
	}
	if len(folders) == 0 {
		return CommandResult{Output: "Tracked Folders: none"}
	}
	lines := make([]string, len(folders))
	for i, f := range folders {
		lines[i] = "- " + f
	}
	return CommandResult{Output: "Tracked Folders:\n" + strings.Join(lines, "\n")}
}

func (c *Commands) addFolder(path string) CommandResult {
	canonical, err := pathguard.CanonicalDir(path)
	if err != nil {
		return CommandResult{Output: fmt.Sprintf("Error: cannot add %s: %v", path, err), Err: true}
	}
	if err := c.Folders.AddFolder(canonical); err != nil {
		return CommandResult{Output: fmt.Sprintf("Error adding folder: %v", err), Err: true}
	}
	if res, ok := c.refresh(); !ok {
		return res
	}
	return CommandResult{Output: "Added " + canonical}
}

func (c *Commands) removeFolder(path string) CommandResult {
	// Stored folders are canonical; a folder that no longer exists can still
	// be removed by the exact text it was stored under.
	target := path
	if canonical, err := pathguard.CanonicalizeTarget(path); err == nil {
		target = canonical
	}
	if err := c.Folders.RemoveFolder(target); err != nil {
		return CommandResult{Output: fmt.Sprintf("Error removing folder: %v", err), Err: true}
	}
	if target != path {
		_ = c.Folders.RemoveFolder(path)
	}
	if res, ok := c.refresh(); !ok {
		return res
	}
	return CommandResult{Output: "Removed " + target}
}

// refresh pushes the stored folder list into the session.
func (c *Commands) refresh() (CommandResult, bool) {
	folders, err := c.Folders.ListFolders()
	if err != nil {
		return CommandResult{Output: fmt.Sprintf("Error listing folders: %v", err), Err: true}, false
	}
	if c.Session != nil {
		c.Session.UpdateFolders(folders)
	}
	return CommandResult{}, true
}
