package mssql

import (
	"strings"
	"testing"
)

func TestDriverURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"mssql://sa:pw@localhost:1433/master", "sqlserver://sa:pw@localhost:1433/master"},
		{"sqlserver://sa:pw@localhost:1433", "sqlserver://sa:pw@localhost:1433"},
		{"Server=db;Database=orders;", "Server=db;Database=orders;"},
	}

	for _, test := range tests {
		if got := driverURL(test.input); got != test.expected {
			t.Errorf("driverURL(%q) = %q, expected %q", test.input, got, test.expected)
		}
	}
}

func TestSplitBatches(t *testing.T) {
	script := `CREATE TABLE users (id INT PRIMARY KEY)
GO
CREATE INDEX idx_users ON users (id)
go
ALTER TABLE users ADD name NVARCHAR(255)`

	batches := splitBatches(script)
	if len(batches) != 3 {
		t.Fatalf("expected 3 batches, got %d: %q", len(batches), batches)
	}
	if !strings.Contains(batches[0], "CREATE TABLE") {
		t.Errorf("first batch wrong: %q", batches[0])
	}
	if !strings.Contains(batches[1], "CREATE INDEX") {
		t.Errorf("GO separator should be case insensitive: %q", batches[1])
	}
	if !strings.Contains(batches[2], "ALTER TABLE") {
		t.Errorf("trailing batch should be kept: %q", batches[2])
	}
}

func TestSplitBatchesNoSeparator(t *testing.T) {
	batches := splitBatches("SELECT 1")
	if len(batches) != 1 || batches[0] != "SELECT 1" {
		t.Errorf("single batch expected, got %q", batches)
	}
}

func TestSplitBatchesEmptyScript(t *testing.T) {
	if batches := splitBatches("\nGO\n\nGO\n"); len(batches) != 0 {
		t.Errorf("separator-only script should yield no batches, got %q", batches)
	}
}
