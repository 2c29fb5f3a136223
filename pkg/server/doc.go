// Package server runs Programs over WebSocket and streams their trees to
// remote clients as Mount and Patch frames.
//
// # Sessions
//
// Each connection runs in a Session. A session owns the last rendered tree
// and its event registry, and all of that state lives on a single loop
// goroutine: the read side of the connection decodes frames and posts work
// to the loop, the loop routes events, calls Program.Update, renders
// Program.View, diffs it and sends the patch.
//
// Every Mount and Patch frame carries a sequence number. A Mount restarts
// the run; each patch is the previous sequence plus one.
//
// # Event Processing
//
// When a client sends an event:
//  1. The read loop decodes the Event frame
//  2. The event is posted to the session loop
//  3. The registry decodes its payload and maps the message
//  4. Program.Update receives the message
//  5. Program.View renders the next tree (validated in debug mode)
//  6. vdom.Diff produces the patch
//  7. The patch is encoded, recorded in the history and journal, and sent
//
// # Resume
//
// A session survives its connection for SessionConfig.ResumeWindow. The
// upgrade response carries the session ID in the X-Vtree-Session header;
// a client reconnecting to /live?session=<id>&seq=<n> receives every
// buffered frame after n, or a fresh Mount when the history no longer
// reaches back that far. A client that diverges sends a Remount control
// frame and receives a Mount.
//
// # Example Usage
//
//	srv := server.New(nil, func() server.Program { return &counter{} },
//	    server.WithMetrics(metrics.New()),
//	)
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Thread Safety
//
//   - Session.mu protects the connection and every write to it
//   - The session loop serializes all tree and program access
//   - SessionManager uses RWMutex for the session map
package server
