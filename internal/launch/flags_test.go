package launch

import (
	"reflect"
	"testing"
)

func TestFlagListKeepsInsertionOrder(t *testing.T) {
	f := &FlagList{}
	f.Set("b", "1")
	f.SetInt("a", 2)
	f.SetBool("c", true)
	f.Set("b", "3")

	want := []string{"--b", "3", "--a", "2", "--c", "True"}
	if got := f.Args(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Args() = %v, want %v", got, want)
	}
}

func TestFlagListConditionalSetters(t *testing.T) {
	f := &FlagList{}
	f.SetIfNotEmpty("empty", "")
	f.SetIntIfPositive("zero", 0)
	f.SetIntIfPositive("neg", -1)
	if f.Len() != 0 {
		t.Fatalf("expected no flags, got %v", f.Names())
	}
	f.SetBool("off", false)
	if v, _ := f.Get("off"); v != "False" {
		t.Fatalf("SetBool(false) = %q, want False", v)
	}
}

func TestSetFloatShortestForm(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{2e-5, "2e-05"},
		{0.001, "0.001"},
		{0.03, "0.03"},
		{0, "0"},
		{0.2, "0.2"},
	}
	for _, tt := range tests {
		f := &FlagList{}
		f.SetFloat("x", tt.in)
		if v, _ := f.Get("x"); v != tt.want {
			t.Errorf("SetFloat(%v) = %q, want %q", tt.in, v, tt.want)
		}
	}
}

func TestApplyOverrides(t *testing.T) {
	f := &FlagList{}
	f.SetFloat("learning_rate", 2e-5)
	f.SetInt("num_train_epochs", 3)

	err := f.ApplyOverrides([]string{"learningRate=1e-4", "--seed=7", "gradient-checkpointing="})
	if err != nil {
		t.Fatalf("ApplyOverrides: %v", err)
	}

	want := []string{
		"--learning_rate", "1e-4",
		"--num_train_epochs", "3",
		"--seed", "7",
		"--gradient_checkpointing",
	}
	if got := f.Args(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Args() = %v, want %v", got, want)
	}
}

func TestApplyOverridesRejectsMalformed(t *testing.T) {
	for _, p := range []string{"noequals", "=value", ""} {
		f := &FlagList{}
		if err := f.ApplyOverrides([]string{p}); err == nil {
			t.Errorf("ApplyOverrides(%q) succeeded, want error", p)
		}
	}
}

func TestNormalizeFlagName(t *testing.T) {
	tests := map[string]string{
		"learning_rate":      "learning_rate",
		"learningRate":       "learning_rate",
		"max-length":         "max_length",
		"--seed":             "seed",
		"modelMaxLength":     "model_max_length",
		"TF32":               "tf32",
		" num_train_epochs ": "num_train_epochs",
	}
	for in, want := range tests {
		if got := NormalizeFlagName(in); got != want {
			t.Errorf("NormalizeFlagName(%q) = %q, want %q", in, got, want)
		}
	}
}
