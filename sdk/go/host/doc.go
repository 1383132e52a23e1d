// Package host is the public surface of the host process that snippets can
// reference. Snippets import it like any other package:
//
//	import "github.com/ppiankov/livecode/sdk/go/host"
//
//	host.Logf(ctx, "starting with %d params", len(params))
//	if err := host.Delay(ctx, 2*time.Second); err != nil {
//	    return err
//	}
//	return host.Go(ctx, func(ctx context.Context) (any, error) {
//	    return 42, nil
//	})
//
// Every call that can block takes the ctx handed to the snippet entry point,
// so cancelling an execution unwinds the snippet at these points.
package host
