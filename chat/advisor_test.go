package chat

import (
	"context"
	"errors"
	"testing"
)

type recordingAdvisor struct {
	name  string
	trace *[]string
	fail  error
}

func (a *recordingAdvisor) Name() string { return a.name }

func (a *recordingAdvisor) Advise(ctx context.Context, turn *TurnContext, next AdviseFunc) error {
	*a.trace = append(*a.trace, a.name+":before")
	if a.fail != nil {
		return a.fail
	}
	if err := next(ctx, turn); err != nil {
		return err
	}
	*a.trace = append(*a.trace, a.name+":after")
	return nil
}

func TestRunChainOrder(t *testing.T) {
	var trace []string
	advisors := []Advisor{
		&recordingAdvisor{name: "first", trace: &trace},
		&recordingAdvisor{name: "second", trace: &trace},
	}
	terminal := func(context.Context, *TurnContext) error {
		trace = append(trace, "terminal")
		return nil
	}

	if err := runChain(context.Background(), advisors, terminal, &TurnContext{}); err != nil {
		t.Fatalf("run chain: %v", err)
	}

	want := []string{"first:before", "second:before", "terminal", "second:after", "first:after"}
	if len(trace) != len(want) {
		t.Fatalf("trace = %v, want %v", trace, want)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Fatalf("trace = %v, want %v", trace, want)
		}
	}
}

func TestRunChainShortCircuit(t *testing.T) {
	var trace []string
	boom := errors.New("boom")
	advisors := []Advisor{
		&recordingAdvisor{name: "first", trace: &trace},
		&recordingAdvisor{name: "second", trace: &trace, fail: boom},
	}
	terminalRan := false
	terminal := func(context.Context, *TurnContext) error {
		terminalRan = true
		return nil
	}

	err := runChain(context.Background(), advisors, terminal, &TurnContext{})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if terminalRan {
		t.Fatal("terminal ran after an advisor failed")
	}
}
