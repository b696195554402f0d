package dataset

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"
)

func sampleRecords() []Record {
	return []Record{
		{
			ID:          0,
			Molecules:   Molecules{SELFIES: []string{}, SMILES: []string{"CCO"}},
			GroundTruth: "C2H6O",
			Messages: []Message{
				{Role: RoleSystem, Content: SystemPrompt},
				{Role: RoleUser, Content: "What is the formula of the molecule <molecule_2d> ?"},
			},
		},
		{
			ID:          1,
			Molecules:   Molecules{SELFIES: []string{}, SMILES: []string{"C"}},
			GroundTruth: "CH4",
			Messages:    []Message{{Role: RoleUser, Content: "C"}},
		},
	}
}

func TestWriteJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.jsonl")
	if err := WriteJSONL(path, sampleRecords()); err != nil {
		t.Fatalf("WriteJSONL: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(data, []byte(`\u003c`)) {
		t.Error("molecule token was HTML-escaped")
	}

	var got []Record
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("line %q: %v", scanner.Text(), err)
		}
		got = append(got, rec)
	}
	if len(got) != 2 || got[1].GroundTruth != "CH4" {
		t.Fatalf("records = %+v", got)
	}
}

func TestWriteParquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.parquet")
	if err := WriteParquet(path, sampleRecords()); err != nil {
		t.Fatalf("WriteParquet: %v", err)
	}

	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		t.Fatal(err)
	}
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, new(parquetRow), 1)
	if err != nil {
		t.Fatalf("NewParquetReader: %v", err)
	}
	defer pr.ReadStop()

	if n := pr.GetNumRows(); n != 2 {
		t.Fatalf("rows = %d, want 2", n)
	}
	rows := make([]parquetRow, 2)
	if err := pr.Read(&rows); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if rows[0].GroundTruth != "C2H6O" || rows[1].ID != 1 {
		t.Errorf("rows = %+v", rows)
	}
	var msgs []Message
	if err := json.Unmarshal([]byte(rows[0].Messages), &msgs); err != nil || len(msgs) != 2 {
		t.Errorf("messages column = %q (%v)", rows[0].Messages, err)
	}
}

func TestWriteResult(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out")
	res := &Result{Splits: map[string][]Record{"train": sampleRecords()}}
	paths, err := WriteResult(out, res, true)
	if err != nil {
		t.Fatalf("WriteResult: %v", err)
	}
	if len(paths) != 6 {
		t.Fatalf("paths = %v", paths)
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("missing %s", p)
		}
	}
}
