package core

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	manifestInclude = regexp.MustCompile(`<include [^>]+/>[ \t]*\n?`)
	xmlComment      = regexp.MustCompile(`(?s)<!--.*?-->`)
	manifestAnchor  = regexp.MustCompile(`<changeSet\s+author="\$\{author\}"\s+id="configdb_ver_2_10_0"\s*>`)
)

// includeBlock is the comment and include element added for one fragment.
func includeBlock(fragment, ticket, label string) string {
	ticket = strings.ReplaceAll(strings.TrimSpace(ticket), "--", "-")
	return fmt.Sprintf("<!-- below are for %s %s-->\n<include file=%q relativeToChangelogFile=\"true\"/>\n", ticket, label, fragment)
}

// UpdateManifest registers fragment (a path relative to the manifest) in the
// dev manifest at name. The include goes after the last existing include, or
// before the configdb_ver_2_10_0 changeSet when there is none. A manifest
// that already includes fragment is left untouched and false is returned. A
// missing manifest is created.
func UpdateManifest(name, fragment, ticket, label string) (bool, error) {
	block := includeBlock(fragment, ticket, label)

	data, err := os.ReadFile(name)
	if errors.Is(err, fs.ErrNotExist) {
		content := changelogHeader + "\n" + block + "\n</databaseChangeLog>\n"
		if err := writeFileAtomic(name, []byte(content)); err != nil {
			return false, &FileError{Path: name, Err: err}
		}
		return true, nil
	}
	if err != nil {
		return false, &FileError{Path: name, Err: err}
	}

	content := string(data)
	if strings.Contains(xmlComment.ReplaceAllString(content, ""), `<include file="`+fragment+`"`) {
		return false, nil
	}

	if pos, ok := lastInclude(content); ok {
		content = content[:pos] + block + content[pos:]
	} else if loc := manifestAnchor.FindStringIndex(content); loc != nil {
		content = content[:loc[0]] + block + "\n" + content[loc[0]:]
	} else {
		return false, &FileError{Path: name, Err: ErrManifestAnchor}
	}

	if err := writeFileAtomic(name, []byte(content)); err != nil {
		return false, &FileError{Path: name, Err: err}
	}
	return true, nil
}

// lastInclude returns the offset just past the last include element that is
// not inside an XML comment.
func lastInclude(content string) (int, bool) {
	comments := xmlComment.FindAllStringIndex(content, -1)
	commented := func(at int) bool {
		for _, c := range comments {
			if at >= c[0] && at < c[1] {
				return true
			}
		}
		return false
	}

	matches := manifestInclude.FindAllStringIndex(content, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		if !commented(matches[i][0]) {
			return matches[i][1], true
		}
	}
	return 0, false
}

// writeFileAtomic replaces name through a temporary file in the same directory.
func writeFileAtomic(name string, data []byte) error {
	dir := filepath.Dir(name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(name)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), name)
}
