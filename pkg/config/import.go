package config

import (
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/runrunrun/rrr/pkg/pattern"
	"github.com/runrunrun/rrr/pkg/rule"
)

const desktopExt = ".desktop"

// Desktop-entry field codes (%f, %u, ...) mark where file arguments would be
// placed; the executor has its own placeholder, so they are stripped.
var fieldCodeRegexp = regexp.MustCompile(`%[fFuUdDnNickvm]`)

// Extensions for MIME types the stdlib table may not cover. Values carry the
// leading dot, matching [mime.ExtensionsByType].
var extraExtensions = map[string][]string{
	"application/pdf":  {".pdf"},
	"audio/flac":       {".flac"},
	"audio/mpeg":       {".mp3"},
	"audio/ogg":        {".ogg"},
	"image/bmp":        {".bmp"},
	"image/gif":        {".gif"},
	"image/jpeg":       {".jpeg", ".jpg"},
	"image/png":        {".png"},
	"image/tiff":       {".tif", ".tiff"},
	"image/webp":       {".webp"},
	"text/markdown":    {".md"},
	"text/plain":       {".txt"},
	"video/mp4":        {".mp4"},
	"video/webm":       {".webm"},
	"video/x-matroska": {".mkv"},
}

// importTarget synthesizes rules from desktop-entry metadata. Directories
// are visited recursively in lexicographic order; files without the
// `.desktop` extension are skipped.
func (l *Loader) importTarget(target string, origin rule.Origin) error {
	path, err := expandPath(target)
	if err != nil {
		return fmt.Errorf("import %q: %w", target, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("import %q: %w", target, err)
	}

	if info.IsDir() {
		return l.importDir(path, origin)
	}

	if filepath.Ext(path) != desktopExt {
		return nil
	}

	return l.importDesktop(path, origin)
}

func (l *Loader) importDir(dir string, origin rule.Origin) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("import %q: %w", dir, err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		path := filepath.Join(dir, name)

		if entry.IsDir() {
			if err := l.importDir(path, origin); err != nil {
				return err
			}

			continue
		}

		if filepath.Ext(name) != desktopExt {
			continue
		}

		if err := l.importDesktop(path, origin); err != nil {
			return err
		}
	}

	return nil
}

// importDesktop reads one desktop-entry file and adds a glob rule per
// inferred file extension. Entries missing the Exec or MimeType fields are
// skipped silently: partial desktop-entry catalogs are expected, and
// importing is best-effort.
func (l *Loader) importDesktop(path string, origin rule.Origin) error {
	// MimeType values are `;`-separated, which ini would otherwise treat as
	// an inline comment.
	f, err := ini.LoadSources(ini.LoadOptions{IgnoreInlineComment: true}, path)
	if err != nil {
		return fmt.Errorf("import %q: %w", path, err)
	}

	sec, err := f.GetSection("Desktop Entry")
	if err != nil {
		slog.Debug("skipping desktop entry without a Desktop Entry section",
			slog.String("path", path))

		return nil
	}

	execCmd := sec.Key("Exec").String()
	mimeTypes := sec.Key("MimeType").String()

	if execCmd == "" || mimeTypes == "" {
		slog.Debug("skipping desktop entry missing Exec or MimeType",
			slog.String("path", path))

		return nil
	}

	template := stripFieldCodes(execCmd)

	for _, mimeType := range strings.Split(mimeTypes, ";") {
		mimeType = strings.TrimSpace(mimeType)
		if mimeType == "" {
			continue
		}

		for _, ext := range extensionsForMIME(mimeType) {
			l.addRule(&rule.Rule{
				Pattern:  pattern.MustCompile("*"+ext, l.caseSensitive),
				Template: template,
				Origin: rule.Origin{
					File:     origin.File,
					Line:     origin.Line,
					Imported: path,
				},
			})
		}
	}

	return nil
}

func stripFieldCodes(execCmd string) string {
	stripped := fieldCodeRegexp.ReplaceAllString(execCmd, "")
	stripped = strings.ReplaceAll(stripped, "%%", "%")

	return strings.Join(strings.Fields(stripped), " ")
}

// extensionsForMIME returns the sorted extension globs for a MIME type,
// combining the stdlib table with the built-in supplement.
func extensionsForMIME(mimeType string) []string {
	seen := map[string]struct{}{}

	if exts, err := mime.ExtensionsByType(mimeType); err == nil {
		for _, ext := range exts {
			seen[strings.ToLower(ext)] = struct{}{}
		}
	}

	for _, ext := range extraExtensions[mimeType] {
		seen[ext] = struct{}{}
	}

	exts := make([]string, 0, len(seen))
	for ext := range seen {
		exts = append(exts, ext)
	}

	sort.Strings(exts)

	return exts
}
