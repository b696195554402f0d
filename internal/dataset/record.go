package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Molecules lists the structures referenced by a record. The modality
// builder reads SMILES from here when the prompt carries MoleculeToken.
type Molecules struct {
	SELFIES []string `json:"selfies"`
	SMILES  []string `json:"smiles"`
}

// Record is one conversation in the instruction-tuning format.
type Record struct {
	ID          int       `json:"id"`
	Molecules   Molecules `json:"molecules"`
	GroundTruth string    `json:"ground_truth"`
	Messages    []Message `json:"messages"`
}

// Pair is a raw input/output row of a name conversion source file.
type Pair struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// ReadPairs reads a JSON lines file of {"input","output"} objects.
//
// Blank lines are ignored. Lines that are not valid JSON or lack either
// field are returned as a count of skipped rows rather than an error.
func ReadPairs(path string) (pairs []Pair, skipped int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var p Pair
		if err := json.Unmarshal([]byte(line), &p); err != nil {
			skipped++
			continue
		}
		p.Input = strings.TrimSpace(p.Input)
		p.Output = strings.TrimSpace(p.Output)
		if p.Input == "" || p.Output == "" {
			skipped++
			continue
		}
		pairs = append(pairs, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("read %s: %w", path, err)
	}
	return pairs, skipped, nil
}
