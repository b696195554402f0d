// Package dataset builds instruction-tuning conversations for the molecule
// name conversion tasks.
//
// Source rows are {"input","output"} pairs under
// <data>/<split>/name_conversion-<task>.jsonl. Train and dev rows become
// system/user/assistant conversations with a randomly chosen phrasing; test
// rows stop at the user turn and may carry a few-shot block. Output is
// reproducible for a given seed.
package dataset

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"strings"

	"github.com/bioagent/molft/internal/logger"
)

// Task selects the conversion direction.
type Task string

const (
	TaskI2S Task = "i2s" // IUPAC name -> SMILES
	TaskS2F Task = "s2f" // SMILES -> molecular formula
)

// Format is the textual molecule representation used when the molecule is
// written inline instead of as MoleculeToken.
type Format string

const (
	FormatSMILES  Format = "smiles"
	FormatSELFIES Format = "selfies"
)

// Splits are the dataset partitions, in build order.
var Splits = []string{"train", "dev", "test"}

// Options configure a build.
type Options struct {
	Task   Task
	Format Format

	// Token writes MoleculeToken in prompts instead of the molecule text.
	Token bool

	// FewShot is the number of worked examples prepended to test prompts.
	FewShot int

	Seed int64
}

// Validate rejects unsupported combinations.
func (o Options) Validate() error {
	switch o.Task {
	case TaskI2S, TaskS2F:
	default:
		return fmt.Errorf("unknown task %q (want i2s or s2f)", o.Task)
	}
	switch o.Format {
	case FormatSMILES:
	case FormatSELFIES:
		if o.Task == TaskS2F && !o.Token {
			return fmt.Errorf("selfies encoding is not available; drop --token=false or use --format smiles")
		}
	default:
		return fmt.Errorf("unknown format %q (want smiles or selfies)", o.Format)
	}
	if o.FewShot < 0 {
		return fmt.Errorf("few-shot count cannot be negative")
	}
	return nil
}

func (o Options) templates() []Template {
	if o.Task == TaskS2F {
		return S2FTemplates
	}
	return I2STemplates
}

// SourcePath returns the input file of a split.
func SourcePath(dataDir, split string, task Task) string {
	return filepath.Join(dataDir, split, fmt.Sprintf("name_conversion-%s.jsonl", task))
}

// Result holds the built records per split.
type Result struct {
	Splits map[string][]Record

	// Skipped counts source rows that could not be converted.
	Skipped map[string]int
}

// Total returns the number of built records.
func (r *Result) Total() int {
	n := 0
	for _, recs := range r.Splits {
		n += len(recs)
	}
	return n
}

// Builder turns source pairs into conversation records.
type Builder struct {
	opts Options
	rng  *rand.Rand
}

// NewBuilder validates opts and seeds the template sampler.
func NewBuilder(opts Options) (*Builder, error) {
	if opts.Format == "" {
		opts.Format = FormatSMILES
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Builder{opts: opts, rng: rand.New(rand.NewSource(opts.Seed))}, nil
}

// Build reads every split from dataDir and converts it.
//
// Few-shot examples for test prompts are drawn from the train split.
//
// Returns:
//   - Result with records and skip counts per split
//   - Error if a split file cannot be read
func (b *Builder) Build(dataDir string) (*Result, error) {
	sources := make(map[string][]Pair, len(Splits))
	res := &Result{Splits: map[string][]Record{}, Skipped: map[string]int{}}

	for _, split := range Splits {
		pairs, skipped, err := ReadPairs(SourcePath(dataDir, split, b.opts.Task))
		if err != nil {
			return nil, err
		}
		sources[split] = pairs
		res.Skipped[split] = skipped
	}

	for _, split := range Splits {
		var shots []Pair
		if split == "test" {
			shots = sources["train"]
		}
		records, skipped := b.BuildSplit(split, sources[split], shots)
		res.Splits[split] = records
		res.Skipped[split] += skipped
		logger.Info("%s: %d records (%d skipped)", split, len(records), res.Skipped[split])
	}
	return res, nil
}

// BuildSplit converts one split. Test splits get prompt-only records;
// shotPool supplies their few-shot examples.
func (b *Builder) BuildSplit(split string, pairs, shotPool []Pair) ([]Record, int) {
	records := make([]Record, 0, len(pairs))
	skipped := 0
	for id, p := range pairs {
		var (
			rec Record
			err error
		)
		if split == "test" {
			rec, err = b.testRecord(id, p, b.sampleShots(shotPool))
		} else {
			rec, err = b.trainRecord(id, p)
		}
		if err != nil {
			logger.Debug("%s row %d skipped: %v", split, id, err)
			skipped++
			continue
		}
		records = append(records, rec)
	}
	return records, skipped
}

// molecule returns the prompt text and molecule list for a source input.
func (b *Builder) molecule(input string) (string, Molecules, error) {
	if b.opts.Task == TaskI2S {
		return input, Molecules{SELFIES: []string{}, SMILES: []string{}}, nil
	}
	if err := checkSMILES(input); err != nil {
		return "", Molecules{}, err
	}
	mols := Molecules{SELFIES: []string{}, SMILES: []string{input}}
	if b.opts.Token {
		return MoleculeToken, mols, nil
	}
	return input, mols, nil
}

func (b *Builder) pick() Template {
	t := b.opts.templates()
	return t[b.rng.Intn(len(t))]
}

func (b *Builder) trainRecord(id int, p Pair) (Record, error) {
	text, mols, err := b.molecule(p.Input)
	if err != nil {
		return Record{}, err
	}
	t := b.pick()
	return Record{
		ID:          id,
		Molecules:   mols,
		GroundTruth: p.Output,
		Messages: []Message{
			{Role: RoleSystem, Content: SystemPrompt},
			{Role: RoleUser, Content: strings.ReplaceAll(t.Input, "<INPUT>", text)},
			{Role: RoleAssistant, Content: strings.ReplaceAll(t.Output, "<OUTPUT>", p.Output)},
		},
	}, nil
}

func (b *Builder) testRecord(id int, p Pair, shots []Pair) (Record, error) {
	text, mols, err := b.molecule(p.Input)
	if err != nil {
		return Record{}, err
	}
	t := b.pick()
	content := strings.ReplaceAll(t.Input, "<INPUT>", text)
	if len(shots) > 0 {
		content = FewShotBlock(shots) + "\n" + content
	}
	return Record{
		ID:          id,
		Molecules:   mols,
		GroundTruth: p.Output,
		Messages: []Message{
			{Role: RoleSystem, Content: SystemPrompt},
			{Role: RoleUser, Content: content},
		},
	}, nil
}

// FewShotBlock renders worked examples, one per line, after FewShotPrompt.
func FewShotBlock(shots []Pair) string {
	lines := make([]string, 0, len(shots)+1)
	lines = append(lines, FewShotPrompt)
	for i, s := range shots {
		lines = append(lines, fmt.Sprintf("Few-shot example %d: %s -> %s", i+1, s.Input, s.Output))
	}
	return strings.Join(lines, "\n")
}

func (b *Builder) sampleShots(pool []Pair) []Pair {
	n := b.opts.FewShot
	if n == 0 || len(pool) == 0 {
		return nil
	}
	if n > len(pool) {
		n = len(pool)
	}
	shots := make([]Pair, n)
	for i, j := range b.rng.Perm(len(pool))[:n] {
		shots[i] = pool[j]
	}
	return shots
}

// checkSMILES rejects inputs that cannot be SMILES strings: empty,
// containing whitespace or characters outside the SMILES alphabet, or with
// unbalanced brackets.
func checkSMILES(s string) error {
	if s == "" {
		return fmt.Errorf("empty SMILES")
	}
	parens, brackets := 0, 0
	for _, c := range s {
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		case c == '(':
			parens++
		case c == ')':
			parens--
		case c == '[':
			brackets++
		case c == ']':
			brackets--
		case strings.ContainsRune("=#+-@/\\.%:*$~", c):
		default:
			return fmt.Errorf("invalid SMILES character %q in %q", c, s)
		}
		if parens < 0 || brackets < 0 {
			return fmt.Errorf("unbalanced SMILES %q", s)
		}
	}
	if parens != 0 || brackets != 0 {
		return fmt.Errorf("unbalanced SMILES %q", s)
	}
	return nil
}
