// Package container provides a Docker-backed sandbox provider for child
// automatons.
//
// Each sandbox is a long-lived container on a dedicated bridge network,
// sized with CPU and memory limits (and optionally a disk quota). Commands
// are exec'd through "sh -c"; files are copied in as single-entry tar
// streams.
//
// # Graceful Degradation
//
// When Docker is unavailable, NewManager still returns a Manager whose
// IsAvailable reports false; every sandbox operation then fails with
// ErrUnavailable.
//
// # Example
//
//	cm, err := container.NewManager(
//	    container.WithNetworkName("automaton-net"),
//	    container.WithDefaultImage("debian:bookworm-slim"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer cm.Close()
//
//	sb, err := cm.CreateSandbox(ctx, automaton.DefaultSandboxSpec("scout-one"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	res, err := cm.Exec(ctx, sb.ID, "uname -a", 10*time.Second)
package container
