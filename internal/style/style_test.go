package style

import (
	"strings"
	"testing"
)

func TestParseKnownIdentifiers(t *testing.T) {
	for _, id := range []string{"modern", "techmag", "zen", "nyt", "minimal", "literary", "logic", "qbit", "deepblue"} {
		st, err := Parse(id)
		if err != nil {
			t.Errorf("Parse(%q): %v", id, err)
			continue
		}
		if string(st) != id {
			t.Errorf("Parse(%q) = %q", id, st)
		}
	}
}

func TestParseDefaultsAndRejects(t *testing.T) {
	st, err := Parse("  ")
	if err != nil || st != Default {
		t.Fatalf("Parse blank = %q, %v; want default", st, err)
	}
	if st, err := Parse("MoDeRn"); err != nil || st != ModernWeChat {
		t.Fatalf("Parse is not case-insensitive: %q, %v", st, err)
	}
	if _, err := Parse("baroque"); err == nil {
		t.Fatal("expected error for unknown style")
	}
}

func TestCatalogEntriesAreComplete(t *testing.T) {
	for st, def := range catalog {
		if def.name == "" {
			t.Errorf("%s: empty name", st)
		}
		if !strings.Contains(def.instruction, "STYLE TARGET") {
			t.Errorf("%s: instruction missing style target", st)
		}
		if def.decoration.WrapperStyle == "" || def.decoration.ImageStyle == "" {
			t.Errorf("%s: incomplete decoration: %+v", st, def.decoration)
		}
	}
}

func TestInstructionFallsBackToDefault(t *testing.T) {
	if Instruction(Style("nope")) != Instruction(Default) {
		t.Fatal("unknown style should fall back to the default instruction")
	}
	if DecorationFor(Style("nope")) != DecorationFor(Default) {
		t.Fatal("unknown style should fall back to the default decoration")
	}
}
