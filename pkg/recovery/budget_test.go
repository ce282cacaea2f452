package recovery

import "testing"

func TestBudgetEscalatesOnThreshold(t *testing.T) {
	b := NewBudgets(3)

	if b.Fail(KindStuck) {
		t.Fatal("first failure must not escalate")
	}
	if b.Fail(KindStuck) {
		t.Fatal("second failure must not escalate")
	}
	if !b.Fail(KindStuck) {
		t.Fatal("third consecutive failure must escalate")
	}
}

func TestBudgetResetsAfterEscalation(t *testing.T) {
	b := NewBudgets(3)

	b.Fail(KindStuck)
	b.Fail(KindStuck)
	b.Fail(KindStuck)

	if got := b.Consecutive(KindStuck); got != 0 {
		t.Fatalf("expected counter reset after escalation, got %d", got)
	}
	if b.Fail(KindStuck) {
		t.Fatal("failure after escalation reset must not escalate again")
	}
}

func TestBudgetsAreIndependentPerKind(t *testing.T) {
	b := NewBudgets(3)

	b.Fail(KindStuck)
	b.Fail(KindStuck)
	b.Fail(KindTemplateFail)

	if got := b.Consecutive(KindStuck); got != 2 {
		t.Errorf("expected stuck streak 2, got %d", got)
	}
	if got := b.Consecutive(KindTemplateFail); got != 1 {
		t.Errorf("expected template-fail streak 1, got %d", got)
	}
}

func TestBudgetReset(t *testing.T) {
	b := NewBudgets(3)

	b.Fail(KindStuck)
	b.Fail(KindStuck)
	b.Reset(KindStuck)

	if got := b.Consecutive(KindStuck); got != 0 {
		t.Fatalf("expected 0 after reset, got %d", got)
	}
}

func TestBudgetResetAll(t *testing.T) {
	b := NewBudgets(3)

	b.Fail(KindStuck)
	b.Fail(KindTemplateFail)
	b.ResetAll()

	if b.Consecutive(KindStuck) != 0 || b.Consecutive(KindTemplateFail) != 0 {
		t.Fatal("expected all counters cleared")
	}
}

func TestBudgetDefaultThreshold(t *testing.T) {
	b := NewBudgets(0)

	b.Fail(KindStuck)
	b.Fail(KindStuck)
	if !b.Fail(KindStuck) {
		t.Fatal("zero threshold should default to 3")
	}
}
