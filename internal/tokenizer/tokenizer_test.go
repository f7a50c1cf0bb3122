package tokenizer

import (
	"strings"
	"testing"
)

// The assertions below hold for both the tiktoken path and the rune-estimate
// fallback, so the suite passes on hosts without a cached vocabulary.

func TestCount(t *testing.T) {
	t.Run("empty is zero", func(t *testing.T) {
		if got := Count(""); got != 0 {
			t.Errorf("Count(\"\") = %d, want 0", got)
		}
	})

	t.Run("non-empty is positive", func(t *testing.T) {
		for _, text := range []string{"hi", "hello world", "中文字"} {
			if got := Count(text); got < 1 {
				t.Errorf("Count(%q) = %d, want >= 1", text, got)
			}
		}
	})

	t.Run("grows with repetition", func(t *testing.T) {
		short := strings.Repeat("word ", 10)
		long := strings.Repeat("word ", 1000)
		if Count(long) <= Count(short) {
			t.Errorf("Count(long) = %d, Count(short) = %d; want long > short",
				Count(long), Count(short))
		}
	})
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("word ", 1000)

	t.Run("short text untouched", func(t *testing.T) {
		got, cut := Truncate("one two three", 500)
		if cut || got != "one two three" {
			t.Errorf("Truncate() = (%q, %v), want unchanged", got, cut)
		}
	})

	t.Run("long text is cut", func(t *testing.T) {
		got, cut := Truncate(long, 10)
		if !cut {
			t.Fatal("expected truncation")
		}
		if len(got) >= len(long) {
			t.Errorf("truncated text is not shorter: %d >= %d", len(got), len(long))
		}
	})

	t.Run("result is a prefix of the input", func(t *testing.T) {
		got, cut := Truncate(long, 10)
		if !cut {
			t.Fatal("expected truncation")
		}
		if !strings.HasPrefix(long, got) {
			t.Errorf("truncated text %q is not a prefix of the input", got)
		}
	})

	t.Run("result fits the budget", func(t *testing.T) {
		got, cut := Truncate(long, 10)
		if !cut {
			t.Fatal("expected truncation")
		}
		if n := Count(got); n > 10 {
			t.Errorf("truncated text counts %d tokens, want <= 10", n)
		}
	})

	t.Run("truncation is idempotent", func(t *testing.T) {
		once, _ := Truncate(long, 10)
		twice, cut := Truncate(once, 10)
		if cut {
			t.Error("second truncation should be a no-op")
		}
		if twice != once {
			t.Errorf("second truncation changed the text: %q != %q", twice, once)
		}
	})

	t.Run("tighter limit cuts more", func(t *testing.T) {
		wide, _ := Truncate(long, 100)
		narrow, _ := Truncate(long, 10)
		if len(narrow) >= len(wide) {
			t.Errorf("limit 10 kept %d bytes, limit 100 kept %d; want narrow < wide",
				len(narrow), len(wide))
		}
	})

	t.Run("non-positive limit leaves text untouched", func(t *testing.T) {
		got, cut := Truncate("anything at all", 0)
		if cut || got != "anything at all" {
			t.Errorf("Truncate(.., 0) = (%q, %v), want unchanged", got, cut)
		}
	})

	t.Run("empty text", func(t *testing.T) {
		got, cut := Truncate("", 10)
		if cut || got != "" {
			t.Errorf("Truncate(\"\", 10) = (%q, %v)", got, cut)
		}
	})

	t.Run("text without whitespace still truncates", func(t *testing.T) {
		text := strings.Repeat("中", 500)
		got, cut := Truncate(text, 10)
		if !cut {
			t.Fatal("expected truncation")
		}
		if !strings.HasPrefix(text, got) {
			t.Error("truncated text is not a prefix of the input")
		}
	})
}
