package automaton

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/monkeygold/automaton")

// Spawn provisions a new child for parent from genesis. The steps run in
// order and the first failure aborts the rest. Nothing is rolled back: a
// sandbox or record created before the failure stays in place and the
// returned *ChildError names the child.
func (o *Orchestrator) Spawn(ctx context.Context, parent Identity, genesis GenesisConfig) (*ChildRecord, error) {
	ctx, span := tracer.Start(ctx, "automaton.Spawn",
		trace.WithAttributes(attribute.String("child.name", genesis.Name)))
	defer span.End()

	started := time.Now()
	child, err := o.spawn(ctx, parent, genesis)
	spawnsTotal.WithLabelValues(outcome(err)).Inc()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	spawnDuration.Observe(time.Since(started).Seconds())
	span.SetAttributes(attribute.String("child.id", child.ID), attribute.String("sandbox.id", child.SandboxID))
	return child, nil
}

func (o *Orchestrator) spawn(ctx context.Context, parent Identity, genesis GenesisConfig) (*ChildRecord, error) {
	if strings.TrimSpace(genesis.Name) == "" {
		return nil, &ChildError{Op: "spawn", Err: fmt.Errorf("%w: child name is required", ErrInvalidInput)}
	}

	child, err := o.reserve(ctx, genesis)
	if err != nil {
		return nil, err
	}
	log := o.logger.With("child", child.ID, "sandbox", child.SandboxID)
	log.Info("child record created", "name", child.Name)

	if err := o.step(ctx, "install_runtime", func(ctx context.Context) error {
		return o.installRuntime(ctx, child)
	}); err != nil {
		return nil, provisioningError(child.ID, "install runtime", err)
	}

	if err := o.step(ctx, "write_genesis", func(ctx context.Context) error {
		return o.writeGenesis(ctx, parent, genesis, child)
	}); err != nil {
		return nil, provisioningError(child.ID, "write genesis config", err)
	}

	if err := o.step(ctx, "propagate_constitution", func(ctx context.Context) error {
		return o.propagateConstitution(ctx, child)
	}); err != nil {
		return nil, provisioningError(child.ID, "propagate constitution", err)
	}

	modID, err := uuid.NewV7()
	if err != nil {
		return nil, &ChildError{ChildID: child.ID, Op: "record modification", Err: err}
	}
	mod := ModificationRecord{
		ID:          modID.String(),
		Timestamp:   o.now(),
		Type:        ModificationChildSpawn,
		Description: fmt.Sprintf("Spawned child %q (%s) in sandbox %s", child.Name, child.ID, child.SandboxID),
		Reversible:  false,
	}
	if err := o.store.InsertModification(ctx, mod); err != nil {
		return nil, &ChildError{ChildID: child.ID, Op: "record modification", Err: err}
	}

	log.Info("child spawned", "name", child.Name)
	o.emit(ctx, Event{
		Type:      EventSpawned,
		ChildID:   child.ID,
		Name:      child.Name,
		SandboxID: child.SandboxID,
		Status:    child.Status,
	})
	return child, nil
}

// reserve runs the limit checks, creates the sandbox and persists the child
// record. It holds spawnMu throughout so that concurrent spawns observe each
// other's records.
func (o *Orchestrator) reserve(ctx context.Context, genesis GenesisConfig) (*ChildRecord, error) {
	o.spawnMu.Lock()
	defer o.spawnMu.Unlock()

	children, err := o.store.Children(ctx)
	if err != nil {
		return nil, fmt.Errorf("load children: %w", err)
	}
	if err := o.checkLimits(children); err != nil {
		o.logger.Info("spawn denied", "name", genesis.Name, "reason", err)
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("allocate child id: %w", err)
	}
	childID := id.String()

	var info *SandboxInfo
	err = o.step(ctx, "create_sandbox", func(ctx context.Context) error {
		var err error
		info, err = o.sandbox.CreateSandbox(ctx, DefaultSandboxSpec(SandboxName(genesis.Name)))
		return err
	})
	if err != nil {
		return nil, provisioningError(childID, "create sandbox", err)
	}

	child := &ChildRecord{
		ID:                childID,
		Name:              genesis.Name,
		SandboxID:         info.ID,
		GenesisPrompt:     genesis.GenesisPrompt,
		CreatorMessage:    genesis.CreatorMessage,
		FundedAmountCents: 0,
		Status:            StatusSpawning,
		CreatedAt:         o.now(),
	}
	if err := o.store.InsertChild(ctx, *child); err != nil {
		return nil, &ChildError{ChildID: childID, Op: "persist record", Err: err}
	}
	return child, nil
}

func (o *Orchestrator) installRuntime(ctx context.Context, child *ChildRecord) error {
	if _, err := o.exec(ctx, child.SandboxID, o.commands.InstallRuntime, o.timeouts.Install); err != nil {
		return err
	}
	if o.commands.InstallOptional == "" {
		return nil
	}
	if _, err := o.exec(ctx, child.SandboxID, o.commands.InstallOptional, o.timeouts.Install); err != nil {
		o.logger.Warn("optional runtime install failed", "child", child.ID, "error", err)
	}
	return nil
}

func (o *Orchestrator) writeGenesis(ctx context.Context, parent Identity, genesis GenesisConfig, child *ChildRecord) error {
	doc := genesisDocument{
		Name:           genesis.Name,
		GenesisPrompt:  genesis.GenesisPrompt,
		CreatorMessage: genesis.CreatorMessage,
		CreatorAddress: parent.Address,
		ParentAddress:  parent.Address,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return o.writeFile(ctx, child.SandboxID, o.paths.Config, data)
}

// propagateConstitution copies the local policy document into the sandbox
// and makes it read-only. A missing local document is skipped.
func (o *Orchestrator) propagateConstitution(ctx context.Context, child *ChildRecord) error {
	if o.constitutionPath == "" {
		return nil
	}
	data, err := os.ReadFile(o.constitutionPath)
	if errors.Is(err, fs.ErrNotExist) {
		o.logger.Debug("no local constitution, skipping propagation", "child", child.ID, "path", o.constitutionPath)
		return nil
	}
	if err != nil {
		return err
	}

	if err := o.writeFile(ctx, child.SandboxID, o.paths.Constitution, data); err != nil {
		return err
	}
	_, err = o.exec(ctx, child.SandboxID, "chmod 444 "+shellQuote(o.paths.Constitution), o.timeouts.File)
	return err
}

// step runs fn inside a child span named after the provisioning step.
func (o *Orchestrator) step(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := tracer.Start(ctx, "automaton.spawn."+name)
	defer span.End()

	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}
