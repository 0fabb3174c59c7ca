package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/ini.v1"
)

// ExportFilenameKey is the only key the orchestrator reads from the
// collaborators' INI file.
const ExportFilenameKey = "export_filename"

// ReadExportFilename returns the export_filename value of the given section.
//
// A missing section or key is not an error and yields "". A missing or
// unparsable file yields "" together with the reason. The value itself is
// never validated: quotes, backticks and trailing backslashes come back as
// written.
func ReadExportFilename(path, section string) (string, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	f, err := ini.LoadSources(ini.LoadOptions{
		// Match the collaborators' parser: keys are case-insensitive and
		// values keep '#', ';', surrounding quotes and a trailing backslash.
		InsensitiveKeys:         true,
		IgnoreInlineComment:     true,
		IgnoreContinuation:      true,
		PreserveSurroundedQuote: true,
		SkipUnrecognizableLines: true,
	}, verbatimValues(src))
	if err != nil {
		return "", fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	sec, err := f.GetSection(section)
	if err != nil {
		return "", nil
	}
	if !sec.HasKey(ExportFilenameKey) {
		return "", nil
	}

	value := sec.Key(ExportFilenameKey).String()
	return strings.TrimSpace(strings.TrimRight(value, "\r")), nil
}

// verbatimValues wraps every value that starts with a backtick or """ in an
// extra pair of backticks. ini.v1 reads those prefixes as raw or multi-line
// strings and returns what lies between the first and the last backtick, so
// the wrapped value comes back unchanged.
func verbatimValues(src []byte) []byte {
	lines := bytes.Split(src, []byte("\n"))
	for i, raw := range lines {
		line := strings.TrimRight(string(raw), "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.ContainsRune("[#;", rune(trimmed[0])) {
			continue
		}
		delim := strings.IndexAny(line, "=:")
		if delim < 0 {
			continue
		}
		value := strings.TrimSpace(line[delim+1:])
		if strings.HasPrefix(value, "`") || strings.HasPrefix(value, `"""`) {
			lines[i] = []byte(line[:delim+1] + " `" + value + "`")
		}
	}
	return bytes.Join(lines, []byte("\n"))
}
