package vad

import "testing"

func TestNewTrimmer_RequiresModel(t *testing.T) {
	if _, err := NewTrimmer("", 0.5, 300); err == nil {
		t.Fatal("expected error without model path")
	}
}
