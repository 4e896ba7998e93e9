package commands

// countVerbosity counts -v / --verbose occurrences and returns the
// remaining args for flag parsing.
func countVerbosity(args []string) (int, []string) {
	verbosity := 0
	filtered := make([]string, 0, len(args))
	for _, arg := range args {
		if arg == "-v" || arg == "--verbose" {
			verbosity++
		} else {
			filtered = append(filtered, arg)
		}
	}
	return verbosity, filtered
}
