// Package perf is the public entry point for writing drove attacks in Go.
//
// An attack is a set of task sets. Each task set describes the behaviour of
// one kind of simulated user: the tasks it runs, how it picks between them
// and how long it waits in between.
//
//	index := perf.NewTaskSet("Index").
//	    Register(perf.NewTask("home", func(ctx context.Context, u *perf.User) error {
//	        _, err := u.Get(ctx, "/")
//	        return err
//	    }))
//
//	opts := perf.DefaultOptions()
//	opts.BaseURL = "http://localhost:8080"
//	opts.Users = 50
//	opts.HatchRate = 10
//	opts.RunTime = time.Minute
//
//	result, err := perf.Run(ctx, opts, index)
//
// Users are spread across task sets by weight, hatched at HatchRate and
// stopped together once RunTime elapses or ctx is cancelled. The returned
// Result holds the aggregated request statistics.
//
// Attack files (YAML or JSON) are loaded with LoadAttack, which returns task
// sets built from the declarative request steps in the file.
package perf
