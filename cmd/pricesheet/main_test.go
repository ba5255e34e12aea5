package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/JonMunkholm/pricesheet/internal/importer"
	"github.com/JonMunkholm/pricesheet/internal/ledger"
)

func TestClassifyCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipe.csv")
	csv := "Fiberglass Pipe Insulation\nCOPPER,IRON,1/2\",3/4\"\n2\",-,12.50,15.00\n"
	if err := os.WriteFile(path, []byte(csv), 0o644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"classify", path, "--json"})
	if err := root.Execute(); err != nil {
		t.Fatalf("classify error = %v", err)
	}

	var p importer.Preview
	if err := json.Unmarshal(out.Bytes(), &p); err != nil {
		t.Fatalf("decode %q: %v", out.String(), err)
	}
	if p.Layout != "pipe_insulation" || len(p.Products) != 1 || len(p.Products[0].Records) != 2 {
		t.Errorf("preview = %+v", p)
	}
	if p.Products[0].Name != "pipe" {
		t.Errorf("product = %q, want file name", p.Products[0].Name)
	}
}

func TestClassifyCommandUnrecognized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.csv")
	os.WriteFile(path, []byte("Just some notes\nabout insulation\n"), 0o644)

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"classify", path})
	if err := root.Execute(); err == nil {
		t.Fatal("classify of prose succeeded")
	}
	if !strings.Contains(out.String(), "CLS001") || !strings.Contains(out.String(), "0: Just some notes") {
		t.Errorf("output = %q", out.String())
	}
}

func TestPrintReport(t *testing.T) {
	report := importer.BatchReport{
		Total:     2,
		Completed: 1,
		NoData:    1,
		Results: []importer.SheetResult{
			{SheetID: "p1", Outcome: importer.OutcomeCompleted, Summary: &ledger.Summary{Layout: "board", Products: 2, Variants: 3}},
			{SheetID: "p2", Outcome: importer.OutcomeNoData},
		},
	}
	var out bytes.Buffer
	if err := printReport(&out, false, report); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"p1", "board: 2 products, 3 variants", "p2", "no_data", "2 sheets: 1 completed"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("report missing %q:\n%s", want, out.String())
		}
	}
}

func TestCommandsRegistered(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"run", "next", "sheet", "status", "preview", "classify", "forget", "reset", "migrate", "serve"} {
		if c, _, err := root.Find([]string{name}); err != nil || c.Name() != name {
			t.Errorf("command %q not registered", name)
		}
	}
}
