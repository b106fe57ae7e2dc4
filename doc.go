// Package automaton provides spawn control for child automatons running in
// isolated sandboxes.
//
// A parent automaton uses an Orchestrator to:
//
//   - Spawn children, subject to a minimum spawn interval and a ceiling on
//     live (non-dead) children
//   - Provision each child's sandbox: runtime install, genesis config,
//     constitution propagation
//   - Start children and poll their self-reported status
//   - Deposit messages in a child's inbox
//
// # Quick Start
//
//	store, err := store.OpenSQLite(automaton.DefaultDBPath())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	docker, err := container.NewManager()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	orch := automaton.NewOrchestrator(store, docker,
//	    automaton.WithMaxChildren(3),
//	    automaton.WithMinSpawnInterval(10*time.Minute),
//	)
//
//	child, err := orch.Spawn(ctx, parent, automaton.GenesisConfig{
//	    Name:          "Scout One",
//	    GenesisPrompt: "Survey the market and report back.",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := orch.Start(ctx, child.ID); err != nil {
//	    log.Fatal(err)
//	}
//
// # Lifecycle
//
// A child is created in StatusSpawning. Start moves it to StatusRunning.
// Poll runs the child's status command and adopts the first of "dead",
// "sleeping" or "running" found in the output, in that order. If the
// sandbox cannot be reached the child becomes StatusUnknown and Poll
// returns UnreachableMessage instead of an error.
//
// # Errors
//
// Spawn checks limits before any remote call and fails with a
// *RateLimitError or *QuotaError. Failures after the sandbox exists are
// returned as a *ChildError wrapping ErrProvisioningFailed; the partially
// provisioned child stays persisted for inspection. Use errors.Is and
// errors.As to classify.
package automaton
