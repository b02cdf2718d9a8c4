// Package kernsim is a hosted simulator of a minimal kernel: a fixed arena
// of physical pages handed out by a bitmap-backed page allocator, and a
// cooperative round-robin scheduler whose tasks run on stacks carved from
// that arena.
//
// The root Service is the harness wiring both together with a console sink:
//
//	srv, _ := kernsim.New(kernsim.WithConfig(config))
//	defer srv.Close(ctx)
//	_, _ = srv.Spawn(ctx, func(task *scheduler.Task) error {
//		run, err := task.Allocate(2)
//		if err != nil {
//			return err
//		}
//		_ = task.WriteLine("allocated " + run.String())
//		return task.Yield()
//	})
//	status, err := srv.RunUntilIdle(ctx)
//
// A fatal allocator fault (double free, out-of-range free) halts the
// harness: it reports the fault on the console and refuses further work.
// Each Service owns its state, so independent simulations can share a
// process.
package kernsim
