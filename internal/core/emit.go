package core

// emit.go writes the versioned CSV data file and the Liquibase changelog
// fragment that loads it, then registers the fragment in the dev manifest.

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"os"
	"path"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/JonMunkholm/dqgen/internal/logging"
	"github.com/JonMunkholm/dqgen/internal/schema"
)

const changelogHeader = `<?xml version="1.0" encoding="UTF-8" standalone="no"?>
<databaseChangeLog xmlns="http://www.liquibase.org/xml/ns/dbchangelog" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"
                   xmlns:pro="http://www.liquibase.org/xml/ns/pro"
                   xsi:schemaLocation="http://www.liquibase.org/xml/ns/dbchangelog
                                       http://www.liquibase.org/xml/ns/dbchangelog/dbchangelog-latest.xsd
                                       http://www.liquibase.org/xml/ns/pro
                                       http://www.liquibase.org/xml/ns/pro/liquibase-pro-latest.xsd">
`

var fragmentTemplate = template.Must(template.New("fragment").Funcs(template.FuncMap{
	"attr": xmlAttr,
}).Parse(changelogHeader + `
    <changeSet author="${author}" id="{{attr .ChangeSetID}}" >
        <loadUpdateData tableName="{{.Table.Name}}"
                        file="{{.File}}"
                        encoding="UTF-8"
                        separator=","
                        quotchar='"'
                        primaryKey="{{.Table.PrimaryKey}}"
                        relativeToChangelogFile="true">
{{- range $i, $c := .Table.Columns}}
            <column index="{{$i}}" name="{{$c.Name}}" type="{{$c.Type}}"/>
{{- end}}
        </loadUpdateData>
    </changeSet>

</databaseChangeLog>
`))

func xmlAttr(s string) (string, error) {
	var b bytes.Buffer
	if err := xml.EscapeText(&b, []byte(s)); err != nil {
		return "", err
	}
	return b.String(), nil
}

// EmitRequest is one batch to write for one tenant directory.
type EmitRequest struct {
	Table   schema.Table
	Dir     string // tenant changelog directory holding dev manifests
	DataDir string // fragment subdirectory of Dir
	Ticket  string
	Records []Record
}

// EmitResult lists what Emit wrote.
type EmitResult struct {
	Version         string   `json:"version,omitempty"`
	Files           []string `json:"files"`
	Manifest        string   `json:"manifest,omitempty"`
	ManifestUpdated bool     `json:"manifest_updated"`
}

// Emitter writes output files. Now supplies the clock for version stamps and
// manifest periods.
type Emitter struct {
	Now func() time.Time
}

// NewEmitter returns an emitter using the wall clock.
func NewEmitter() *Emitter {
	return &Emitter{Now: time.Now}
}

// Emit writes req.Records as a new CSV/XML version pair and adds the XML to
// the period's dev manifest. An empty batch writes nothing. The first failing
// write aborts with a *FileError; files written before it are left in place.
func (e *Emitter) Emit(ctx context.Context, req EmitRequest) (*EmitResult, error) {
	log := logging.FromContext(ctx)
	res := &EmitResult{Files: []string{}}

	if len(req.Records) == 0 {
		log.Warn("nothing to emit", "table", req.Table.Name, "ticket", req.Ticket)
		return res, nil
	}

	now := e.Now()
	dataPath := filepath.Join(req.Dir, req.DataDir)
	if err := os.MkdirAll(dataPath, 0o755); err != nil {
		return res, &FileError{Path: dataPath, Err: err}
	}

	v, err := NextVersion(dataPath, req.Table, now)
	if err != nil {
		return res, err
	}
	res.Version = v.String()

	csvName := req.Table.FileName(res.Version, "csv")
	csvPath := filepath.Join(dataPath, csvName)
	if err := writeNewFile(csvPath, renderCSV(req.Table, req.Records)); err != nil {
		return res, &FileError{Path: csvPath, Version: res.Version, Err: err}
	}
	res.Files = append(res.Files, csvPath)

	xmlName := req.Table.FileName(res.Version, "xml")
	xmlPath := filepath.Join(dataPath, xmlName)
	fragment, err := renderFragment(req.Table, res.Version, req.Ticket, csvName)
	if err != nil {
		return res, &FileError{Path: xmlPath, Version: res.Version, Err: err}
	}
	if err := writeNewFile(xmlPath, fragment); err != nil {
		return res, &FileError{Path: xmlPath, Version: res.Version, Err: err}
	}
	res.Files = append(res.Files, xmlPath)

	res.Manifest = filepath.Join(req.Dir, ManifestName(now))
	include := path.Join(filepath.ToSlash(req.DataDir), xmlName)
	res.ManifestUpdated, err = UpdateManifest(res.Manifest, include, req.Ticket, req.Table.ManifestLabel)
	if err != nil {
		var fe *FileError
		if errors.As(err, &fe) {
			fe.Version = res.Version
		}
		return res, err
	}

	log.Info("changelog written",
		"table", req.Table.Name,
		"version", res.Version,
		"rows", len(req.Records),
		"csv", csvPath,
		"manifest", res.Manifest,
		"manifest_updated", res.ManifestUpdated,
	)
	return res, nil
}

// ChangeSetID returns the changeSet id of a fragment.
func ChangeSetID(t schema.Table, version, ticket string) string {
	return t.ChangeSetPrefix + version + "__" + strings.TrimSpace(ticket)
}

func renderFragment(t schema.Table, version, ticket, csvName string) ([]byte, error) {
	var b bytes.Buffer
	err := fragmentTemplate.Execute(&b, struct {
		Table       schema.Table
		ChangeSetID string
		File        string
	}{t, ChangeSetID(t, version, ticket), csvName})
	return b.Bytes(), err
}

// renderCSV writes a header row and one row per record in declared column
// order. Every field is quoted; NULL is an empty quoted field.
func renderCSV(t schema.Table, records []Record) []byte {
	var b bytes.Buffer
	writeQuotedRow(&b, t.ColumnNames())

	row := make([]string, len(t.Columns))
	for _, r := range records {
		for i, c := range t.Columns {
			row[i] = r.Get(c.Name)
		}
		writeQuotedRow(&b, row)
	}
	return b.Bytes()
}

func writeQuotedRow(b *bytes.Buffer, fields []string) {
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(f, `"`, `""`))
		b.WriteByte('"')
	}
	b.WriteByte('\n')
}

// writeNewFile refuses to overwrite an existing version file.
func writeNewFile(name string, data []byte) error {
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
