package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/JonMunkholm/dqgen/internal/core"
)

func TestRun_ValidatesBeforeConnecting(t *testing.T) {
	tests := []struct {
		name    string
		opts    options
		wantErr error
		wantMsg string
	}{
		{
			name:    "unknown workflow",
			opts:    options{workflow: "purge"},
			wantErr: core.ErrUnknownWorkflow,
		},
		{
			name:    "missing files",
			opts:    options{workflow: "configure", workbook: "m.xlsx"},
			wantErr: core.ErrInvalidRequest,
		},
		{
			name:    "missing database",
			opts:    options{workflow: "add-update", workbook: "m.xlsx", requests: "r.csv"},
			wantMsg: "DATABASE_URL is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := run(context.Background(), tt.opts)
			if err == nil {
				t.Fatal("run() error = nil")
			}
			if res != nil {
				t.Errorf("run() result = %+v, want nil", res)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("run() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantMsg != "" && !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("run() error = %v, want %q", err, tt.wantMsg)
			}
		})
	}
}

func TestRootCmd_Flags(t *testing.T) {
	cmd := newRootCmd()
	err := cmd.ParseFlags([]string{"--workflow", "configure", "--workbook", "m.xlsx", "--requests", "r.csv", "--apply", "--json"})
	if err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}

	flags := cmd.Flags()
	for name, want := range map[string]string{"workflow": "configure", "workbook": "m.xlsx", "requests": "r.csv"} {
		if got, _ := flags.GetString(name); got != want {
			t.Errorf("--%s = %q, want %q", name, got, want)
		}
	}
	for _, name := range []string{"apply", "json"} {
		if got, _ := flags.GetBool(name); !got {
			t.Errorf("--%s = false, want true", name)
		}
	}
	if got, _ := flags.GetDuration("timeout"); got != core.DefaultRunTimeout {
		t.Errorf("--timeout = %s, want %s", got, core.DefaultRunTimeout)
	}
}

func TestRootCmd_RequiredFlags(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--workflow", "add-update"})
	cmd.SetOut(&bytes.Buffer{})

	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "required flag") {
		t.Fatalf("Execute() error = %v, want a required flag error", err)
	}
}

func TestRootCmd_RunErrorIsReturned(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--workflow", "purge", "--workbook", "m.xlsx", "--requests", "r.csv"})
	var out bytes.Buffer
	cmd.SetOut(&out)

	err := cmd.ExecuteContext(context.Background())
	if !errors.Is(err, core.ErrUnknownWorkflow) {
		t.Fatalf("Execute() error = %v, want %v", err, core.ErrUnknownWorkflow)
	}
	if out.Len() != 0 {
		t.Errorf("output = %q, want nothing when the run never started", out.String())
	}
}

func sampleResult() *core.RunResult {
	return &core.RunResult{
		RunID:    "run-1",
		Workflow: core.WorkflowAddUpdate,
		Rules:    3,
		Groups: []core.GroupResult{{
			Tenant: "common",
			Ticket: "DQ-5",
			Rows: []core.RowResult{
				{Line: 2, BusinessKey: "DQ-100", Outcome: core.OutcomeInserted, ID: 42},
				{Line: 3, BusinessKey: "DQ-404", Outcome: core.OutcomeSkippedNotFound, Reason: "not in master workbook"},
			},
			Emit: &core.EmitResult{Version: "3_5_1"},
		}},
		Files: []string{"data/load_validation_rules_data_ver_3_5_1.csv"},
	}
}

func TestPrintResult_Text(t *testing.T) {
	var buf bytes.Buffer
	if err := printResult(&buf, sampleResult(), false); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"run run-1 (add-update)", "version 3_5_1", "INSERTED", "42", "not in master workbook", "load_validation_rules_data_ver_3_5_1.csv"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintResult_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := printResult(&buf, sampleResult(), true); err != nil {
		t.Fatal(err)
	}
	var got core.RunResult
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if got.RunID != "run-1" || len(got.Groups) != 1 {
		t.Errorf("decoded = %+v", got)
	}
}
