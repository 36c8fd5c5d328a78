package trial

import (
	"regexp"
	"slices"
	"strings"
)

var (
	commandSeparators = regexp.MustCompile(`\s*(?:;|&&|\|\||\|)\s*`)

	destructivePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?:^|\s)mkfs(?:\.[a-z0-9]+)?(?:\s|$)`),
		regexp.MustCompile(`(?:^|\s)format\s+[a-z]:`),
		regexp.MustCompile(`:\(\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;\s*:`),
		regexp.MustCompile(`(?:^|\s)dd\s.*\bof=/dev/(?:sd|hd|nvme|xvd|vd|disk|mmcblk)`),
		regexp.MustCompile(`>\s*/dev/(?:sd|hd|nvme|xvd|vd|disk|mmcblk)[a-z0-9]*`),
	}

	worldWritableModes = []string{"777", "0777", "a+rwx", "ugo+rwx", "o+rwx"}

	shells = []string{"sh", "bash", "zsh", "dash", "ksh"}
)

// IsDestructiveCommand reports whether command matches the destructive
// command denylist: recursive root deletes, filesystem formats, fork bombs,
// raw device writes and world-writable chmod of the root. Scripts passed to a
// shell with -c are checked as commands of their own.
func IsDestructiveCommand(command string) bool {
	normalized := strings.ToLower(strings.Join(strings.Fields(command), " "))
	if normalized == "" {
		return false
	}
	for _, pattern := range destructivePatterns {
		if pattern.MatchString(normalized) {
			return true
		}
	}
	for _, segment := range commandSeparators.Split(normalized, -1) {
		args := stripPrefixCommands(strings.Fields(segment))
		if len(args) == 0 {
			continue
		}
		if script, ok := shellScript(args); ok && IsDestructiveCommand(script) {
			return true
		}
		switch args[0] {
		case "rm":
			if hasRecursiveFlag(args[1:]) && targetsRoot(args[1:]) {
				return true
			}
		case "chmod":
			if targetsRoot(args[1:]) && hasAnyArg(args[1:], worldWritableModes) {
				return true
			}
		}
	}
	return false
}

// stripPrefixCommands drops wrappers such as sudo so the real program is
// args[0].
func stripPrefixCommands(args []string) []string {
	for len(args) > 0 {
		switch args[0] {
		case "sudo", "doas", "env", "nohup", "command", "exec":
			args = args[1:]
		default:
			if strings.HasPrefix(args[0], "/") && strings.Count(args[0], "/") > 1 {
				args[0] = args[0][strings.LastIndex(args[0], "/")+1:]
			}
			return args
		}
	}
	return args
}

// shellScript returns the script of a `sh -c <script>` style invocation with
// its surrounding quotes removed.
func shellScript(args []string) (string, bool) {
	if !slices.Contains(shells, args[0]) {
		return "", false
	}
	for i, arg := range args[1:] {
		if strings.HasPrefix(arg, "-") && !strings.HasPrefix(arg, "--") && strings.Contains(arg, "c") {
			script := strings.Trim(strings.Join(args[i+2:], " "), `"'`)
			return script, script != ""
		}
	}
	return "", false
}

func hasRecursiveFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--recursive" {
			return true
		}
		if strings.HasPrefix(arg, "-") && !strings.HasPrefix(arg, "--") && strings.Contains(arg, "r") {
			return true
		}
	}
	return false
}

func targetsRoot(args []string) bool {
	return hasAnyArg(args, []string{"/", "/*", "/."})
}

func hasAnyArg(args, wanted []string) bool {
	for _, arg := range args {
		if slices.Contains(wanted, strings.Trim(arg, `"'`)) {
			return true
		}
	}
	return false
}
