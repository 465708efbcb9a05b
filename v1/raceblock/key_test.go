package raceblock

import (
	"fmt"
	"testing"
	"time"
)

func TestKeyIsConsistent(t *testing.T) {
	k := time.Now().String()
	if got := Key(k); got != "race_block_"+k {
		t.Fatalf("unexpected key %q", got)
	}
	if Key(k) != Key(k) {
		t.Fatal("key must be deterministic")
	}
}

func TestKeyIsInjective(t *testing.T) {
	seen := make(map[string]string)
	for i := 0; i < 1000; i++ {
		k := fmt.Sprintf("job-%d", i)
		sk := Key(k)
		if prev, ok := seen[sk]; ok {
			t.Fatalf("%q and %q collide on %q", prev, k, sk)
		}
		seen[sk] = k
	}
}
