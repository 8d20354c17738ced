package core

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/JonMunkholm/dqgen/internal/schema"
)

// yearCodeBase is subtracted from the calendar year to form the year code
// (2026 -> 3, 2027 -> 4), so each year keeps its own version family.
const yearCodeBase = 2023

// Version is a Y_M_N file version stamp.
type Version struct {
	YearCode int
	Month    int
	Seq      int
}

func (v Version) String() string {
	return fmt.Sprintf("%d_%d_%d", v.YearCode, v.Month, v.Seq)
}

// YearCode returns the short year code used in file and manifest names.
func YearCode(t time.Time) int {
	return t.Year() - yearCodeBase
}

// ManifestName returns the dev manifest file name for the period containing t.
func ManifestName(t time.Time) string {
	return fmt.Sprintf("dev-%d.%d.0.xml", YearCode(t), int(t.Month()))
}

// NextVersion scans dir for files of table's family and returns the next
// stamp for the period of now: one past the highest sequence recorded for the
// same year code and month, or sequence 1. A missing directory counts as empty.
func NextVersion(dir string, table schema.Table, now time.Time) (Version, error) {
	v := Version{YearCode: YearCode(now), Month: int(now.Month()), Seq: 1}

	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return v, nil
	}
	if err != nil {
		return Version{}, &FileError{Path: dir, Err: err}
	}

	re := table.VersionPattern()
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := re.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		seq, err := strconv.Atoi(m[3])
		if err != nil || year != v.YearCode || month != v.Month {
			continue
		}
		if seq >= v.Seq {
			v.Seq = seq + 1
		}
	}
	return v, nil
}
