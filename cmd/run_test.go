package cmd

import "testing"

func TestResolveCouncilConfig_RequiresConfigOrModels(t *testing.T) {
	runConfigPath = ""
	runModels = nil

	_, _, _, err := resolveCouncilConfig()
	if err == nil {
		t.Fatal("expected error when neither --config nor --models is set")
	}
}

func TestResolveCouncilConfig_AdHocModels(t *testing.T) {
	runConfigPath = ""
	runModels = []string{"openai/gpt-4o", "anthropic/claude-3.5-sonnet"}
	runSystemPrompt = "be concise"
	runRounds = 2
	defer func() {
		runModels = nil
		runSystemPrompt = ""
		runRounds = 1
	}()

	cc, rate, burst, err := resolveCouncilConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cc.Options.Models) != 2 {
		t.Fatalf("expected 2 models, got %d", len(cc.Options.Models))
	}
	if cc.SystemPrompt != "be concise" {
		t.Errorf("expected system prompt carried over, got %q", cc.SystemPrompt)
	}
	if cc.Options.Rounds != 2 {
		t.Errorf("expected rounds 2, got %d", cc.Options.Rounds)
	}
	if rate != 0 || burst != 1 {
		t.Errorf("expected unlimited ad-hoc rate limit (0, 1), got (%v, %v)", rate, burst)
	}
}
