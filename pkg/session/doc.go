// Package session binds one transport channel to one reactive store.
//
// Each Session runs a single event loop goroutine that exclusively owns its
// store: inbound messages, dispatched callbacks and teardown all execute on
// that goroutine, in order. Closing a session drops queued work, unmounts
// the application handler and disposes the store, so no reactive callback
// fires afterwards.
//
// A Manager is the only state shared between sessions. It tracks live
// sessions, enforces a per-IP limit and broadcasts messages:
//
//	m := session.NewManager(session.ManagerConfig{MaxSessionsPerIP: 20})
//	s, err := session.Accept(w, r, handler, session.Config{App: "counter"})
//	if err != nil {
//	    return
//	}
//	if err := m.Add(s); err != nil {
//	    s.Close(protocol.CloseRateLimited, err.Error())
//	}
//	s.Start()
//	<-s.Done()
package session
